package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/galkatzh/JAMD-events/internal/event"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByDate     SortOrder = "date"
	SortByTitle    SortOrder = "title"
	SortByLocation SortOrder = "location"
)

// parseSortOrder validates a --sort value
func parseSortOrder(s string) (SortOrder, error) {
	switch order := SortOrder(strings.ToLower(strings.TrimSpace(s))); order {
	case SortByDate, SortByTitle, SortByLocation:
		return order, nil
	case "":
		return SortByDate, nil
	}
	return "", fmt.Errorf("invalid sort order: %s (must be 'date', 'title' or 'location')", s)
}

// sortEvents sorts a slice of events based on the specified sort order
func sortEvents(events []*event.TrackedEvent, order SortOrder) {
	switch order {
	case SortByDate:
		sort.SliceStable(events, func(i, j int) bool {
			return compareByDate(events[i], events[j])
		})
	case SortByTitle:
		sort.SliceStable(events, func(i, j int) bool {
			ti, tj := strings.ToLower(events[i].Title), strings.ToLower(events[j].Title)
			if ti != tj {
				return ti < tj
			}
			// If titles are equal, sort by date
			return compareByDate(events[i], events[j])
		})
	case SortByLocation:
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].Location != events[j].Location {
				return events[i].Location < events[j].Location
			}
			return compareByDate(events[i], events[j])
		})
	}
}

// compareByDate reports whether i starts before j, falling back to title
// and UID so the order is total.
func compareByDate(i, j *event.TrackedEvent) bool {
	if !i.Start.Equal(j.Start) {
		return i.Start.Before(j.Start)
	}
	if i.Title != j.Title {
		return strings.ToLower(i.Title) < strings.ToLower(j.Title)
	}
	return i.UID < j.UID
}
