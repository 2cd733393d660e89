package event

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTimezone is the institution's local timezone
const DefaultTimezone = "Asia/Jerusalem"

// months is the locale vocabulary of month names
var months = map[string]time.Month{
	"ינואר":   time.January,
	"פברואר":  time.February,
	"מרץ":     time.March,
	"אפריל":   time.April,
	"מאי":     time.May,
	"יוני":    time.June,
	"יולי":    time.July,
	"אוגוסט":  time.August,
	"ספטמבר":  time.September,
	"אוקטובר": time.October,
	"נובמבר":  time.November,
	"דצמבר":   time.December,
}

// monthPrefix is the Hebrew "in" prefix, as in "5 במרץ"
const monthPrefix = "ב"

// NormalizationError reports date text that could not be resolved
type NormalizationError struct {
	Text   string
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalizing date %q: %s: %v", e.Text, e.Reason, e.Err)
	}
	return fmt.Sprintf("normalizing date %q: %s", e.Text, e.Reason)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// LookupMonth maps a locale month name to its calendar month
func LookupMonth(name string) (time.Month, bool) {
	name = strings.TrimSpace(name)
	if m, ok := months[name]; ok {
		return m, true
	}
	if strings.HasPrefix(name, monthPrefix) {
		m, ok := months[strings.TrimPrefix(name, monthPrefix)]
		return m, ok
	}
	return 0, false
}

// Normalizer resolves year-less locale date text into instants in a fixed
// timezone.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer creates a Normalizer anchored to loc (UTC if nil)
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Location returns the timezone the normalizer resolves dates in
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize parses text of the form "<day> <month>[,] <HH:MM>".
//
// The year is taken from ref in the normalizer's timezone. If the result
// is before ref, the event is assumed to belong to the following year
// (a "3 January" listing seen in December).
func (n *Normalizer) Normalize(text string, ref time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return time.Time{}, &NormalizationError{Text: text, Reason: "empty date text"}
	}

	parts := strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
	if len(parts) != 3 {
		return time.Time{}, &NormalizationError{
			Text:   text,
			Reason: fmt.Sprintf("expected day, month and time, got %d parts", len(parts)),
		}
	}
	day, monthName, clock := parts[0], parts[1], parts[2]

	month, ok := LookupMonth(monthName)
	if !ok {
		return time.Time{}, &NormalizationError{Text: text, Reason: fmt.Sprintf("unrecognized month %q", monthName)}
	}

	year := ref.In(n.loc).Year()
	t, err := n.parse(year, month, day, clock)
	if err != nil {
		return time.Time{}, &NormalizationError{Text: text, Reason: "invalid date", Err: err}
	}

	if t.Before(ref) {
		t, err = n.parse(year+1, month, day, clock)
		if err != nil {
			return time.Time{}, &NormalizationError{Text: text, Reason: "invalid date", Err: err}
		}
	}

	return t, nil
}

func (n *Normalizer) parse(year int, month time.Month, day, clock string) (time.Time, error) {
	value := fmt.Sprintf("%04d-%02d-%s %s", year, int(month), day, clock)
	return time.ParseInLocation("2006-01-2 15:04", value, n.loc)
}
