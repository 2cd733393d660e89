package calendar

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Decode parses an iCalendar document. Floating and date-only times are
// interpreted in loc. An event whose DTSTART cannot be parsed is kept with
// its raw value so it survives a rewrite.
func Decode(r io.Reader, loc *time.Location) (*Document, error) {
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	doc := New("", "", "")
	for _, p := range cal.CalendarProperties {
		switch strings.ToUpper(p.IANAToken) {
		case "PRODID":
			doc.ProductID = p.Value
		case "X-WR-CALNAME":
			doc.Name = p.Value
		case "X-WR-TIMEZONE":
			doc.Timezone = p.Value
		}
	}

	for _, ve := range cal.Events() {
		doc.Add(decodeEntry(ve, loc))
	}

	return doc, nil
}

func decodeEntry(ve *ical.VEvent, loc *time.Location) *Entry {
	e := &Entry{
		UID:         value(ve, ical.ComponentPropertyUniqueId),
		Summary:     value(ve, ical.ComponentPropertySummary),
		Description: value(ve, ical.ComponentPropertyDescription),
		Location:    value(ve, ical.ComponentPropertyLocation),
		URL:         value(ve, ical.ComponentProperty("URL")),
		Status:      value(ve, ical.ComponentProperty("STATUS")),
	}

	if p := ve.GetProperty(ical.ComponentProperty("DTSTAMP")); p != nil {
		if t, err := parseICSTime(p.Value, p.ICalParameters, loc); err == nil {
			e.Stamp = t
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if t, err := parseICSTime(p.Value, p.ICalParameters, loc); err == nil {
			e.Start = t
		} else {
			e.RawStart = p.Value
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		if t, err := parseICSTime(p.Value, p.ICalParameters, loc); err == nil {
			e.End = t
		} else {
			e.RawEnd = p.Value
		}
	}

	return e
}

func value(ve *ical.VEvent, prop ical.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return p.Value
}

// parseICSTime parses DATE and DATE-TIME values. UTC values end in Z;
// values with a TZID parameter are read in that zone; anything else is
// floating and read in loc.
func parseICSTime(v string, params map[string][]string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		if tz, err := time.LoadLocation(tzs[0]); err == nil {
			loc = tz
		}
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
