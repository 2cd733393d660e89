// Package filter narrows a list of tracked events for display.
//
// Criteria combine with AND; multiple values inside one criterion combine
// with OR:
//   - Date range (From/To, inclusive)
//   - Title substrings (case-insensitive)
//   - Location substrings (case-insensitive)
//   - Weekends only (Friday/Saturday by default)
//
// Example usage:
//
//	f := filter.New(loc)
//	f.Titles = []string{"jazz"}
//	f.From, f.To, _ = filter.ParseDateRange("March", now)
//	upcoming := f.Apply(ledger.Sorted())
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/galkatzh/JAMD-events/internal/event"
)

// DefaultWeekend is the Israeli weekend
var DefaultWeekend = []time.Weekday{time.Friday, time.Saturday}

// Filter represents event filtering criteria
type Filter struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`

	// Case-insensitive substring matches
	Titles    []string `json:"titles,omitempty"`
	Locations []string `json:"locations,omitempty"`

	WeekendsOnly bool           `json:"weekends_only,omitempty"`
	Weekend      []time.Weekday `json:"-"`

	// Location weekdays and date bounds are evaluated in
	Location *time.Location `json:"-"`
}

// New creates an empty filter evaluated in loc (UTC if nil)
func New(loc *time.Location) *Filter {
	if loc == nil {
		loc = time.UTC
	}
	return &Filter{
		Weekend:  DefaultWeekend,
		Location: loc,
	}
}

// IsEmpty reports whether the filter would match every event
func (f *Filter) IsEmpty() bool {
	return f.From == nil &&
		f.To == nil &&
		len(f.Titles) == 0 &&
		len(f.Locations) == 0 &&
		!f.WeekendsOnly
}

// Matches checks if an event passes every active criterion
func (f *Filter) Matches(evt *event.TrackedEvent) bool {
	if f.IsEmpty() {
		return true
	}

	if f.From != nil && evt.Start.Before(*f.From) {
		return false
	}
	if f.To != nil && evt.Start.After(*f.To) {
		return false
	}

	if f.WeekendsOnly && !f.isWeekend(evt.Start) {
		return false
	}

	if !containsAny(evt.Title, f.Titles) {
		return false
	}
	return containsAny(evt.Location, f.Locations)
}

// Apply returns the events that match. An empty filter returns events
// unchanged.
func (f *Filter) Apply(events []*event.TrackedEvent) []*event.TrackedEvent {
	if f.IsEmpty() {
		return events
	}

	filtered := make([]*event.TrackedEvent, 0, len(events))
	for _, evt := range events {
		if f.Matches(evt) {
			filtered = append(filtered, evt)
		}
	}
	return filtered
}

// String returns a human-readable description of the active criteria.
// Format: "From: 1 Mar 2026 | To: 15 Mar 2026 | Titles: jazz | Weekends only"
func (f *Filter) String() string {
	if f.IsEmpty() {
		return "No active filters"
	}

	var parts []string
	if f.From != nil {
		parts = append(parts, fmt.Sprintf("From: %s", f.From.In(f.loc()).Format("2 Jan 2006")))
	}
	if f.To != nil {
		parts = append(parts, fmt.Sprintf("To: %s", f.To.In(f.loc()).Format("2 Jan 2006")))
	}
	if len(f.Titles) > 0 {
		parts = append(parts, fmt.Sprintf("Titles: %s", strings.Join(f.Titles, ", ")))
	}
	if len(f.Locations) > 0 {
		parts = append(parts, fmt.Sprintf("Locations: %s", strings.Join(f.Locations, ", ")))
	}
	if f.WeekendsOnly {
		parts = append(parts, "Weekends only")
	}
	return strings.Join(parts, " | ")
}

func (f *Filter) loc() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

func (f *Filter) isWeekend(t time.Time) bool {
	days := f.Weekend
	if len(days) == 0 {
		days = DefaultWeekend
	}
	wd := t.In(f.loc()).Weekday()
	for _, d := range days {
		if d == wd {
			return true
		}
	}
	return false
}

// containsAny is true when needles is empty or s contains one of them
func containsAny(s string, needles []string) bool {
	if len(needles) == 0 {
		return true
	}
	s = strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(s, strings.ToLower(strings.TrimSpace(n))) {
			return true
		}
	}
	return false
}
