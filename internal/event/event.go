package event

import (
	"sort"
	"strings"
	"time"
)

// KeyDelimiter joins the fields of an event identity
const KeyDelimiter = "_"

// RawRecord represents one event as extracted from the source page.
// An empty (or whitespace-only) field means the field was absent.
type RawRecord struct {
	Title    string `json:"title,omitempty"`
	DateText string `json:"date_text,omitempty"`
	Location string `json:"location,omitempty"`
	Link     string `json:"link,omitempty"`
}

// MissingFieldError reports which required fields a RawRecord lacks
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// Validate checks that title, date text and location are all present.
func (r RawRecord) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(r.DateText) == "" {
		missing = append(missing, "date_text")
	}
	if strings.TrimSpace(r.Location) == "" {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		return &MissingFieldError{Fields: missing}
	}
	return nil
}

// DeriveKey computes the identity of a raw record from its unparsed title,
// date text and location. The key is textual: two spellings of the same
// date produce two different keys.
func DeriveKey(r RawRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return r.Title + KeyDelimiter + r.DateText + KeyDelimiter + r.Location, nil
}

// TrackedEvent is the persisted state of an event. It is never updated in
// place: the engine only inserts and deletes.
type TrackedEvent struct {
	Title    string    `json:"title"`
	Start    time.Time `json:"date"`
	Location string    `json:"location"`
	Link     string    `json:"link"`
	UID      string    `json:"uid"`
}

// IsPast reports whether the event started strictly before now
func (e *TrackedEvent) IsPast(now time.Time) bool {
	return e.Start.Before(now)
}

// Ledger maps event identities to the events currently tracked
type Ledger struct {
	Events map[string]*TrackedEvent `json:"events"` // keyed by DeriveKey
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		Events: make(map[string]*TrackedEvent),
	}
}

// Has reports whether key is tracked
func (l *Ledger) Has(key string) bool {
	_, ok := l.Events[key]
	return ok
}

// Insert tracks evt under key. An existing entry is left untouched and
// Insert reports false.
func (l *Ledger) Insert(key string, evt *TrackedEvent) bool {
	if l.Events == nil {
		l.Events = make(map[string]*TrackedEvent)
	}
	if _, exists := l.Events[key]; exists {
		return false
	}
	l.Events[key] = evt
	return true
}

// Remove stops tracking key and returns the removed event, if any
func (l *Ledger) Remove(key string) *TrackedEvent {
	evt, ok := l.Events[key]
	if !ok {
		return nil
	}
	delete(l.Events, key)
	return evt
}

// Len returns the number of tracked events
func (l *Ledger) Len() int {
	return len(l.Events)
}

// Expired returns the keys of events that started before now, sorted
func (l *Ledger) Expired(now time.Time) []string {
	keys := make([]string, 0)
	for key, evt := range l.Events {
		if evt.IsPast(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// UIDs returns the set of generated UIDs in the ledger
func (l *Ledger) UIDs() map[string]bool {
	uids := make(map[string]bool, len(l.Events))
	for _, evt := range l.Events {
		uids[evt.UID] = true
	}
	return uids
}

// Sorted returns all tracked events ordered by start, then title
func (l *Ledger) Sorted() []*TrackedEvent {
	events := make([]*TrackedEvent, 0, len(l.Events))
	for _, evt := range l.Events {
		events = append(events, evt)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		if events[i].Title != events[j].Title {
			return events[i].Title < events[j].Title
		}
		return events[i].UID < events[j].UID
	})
	return events
}
