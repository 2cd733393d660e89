package calendar

import (
	"strings"
	"time"
	"unicode/utf8"
)

// StatusConfirmed is the STATUS written for every generated entry
const StatusConfirmed = "CONFIRMED"

// maxLineOctets is the content line limit before folding (RFC 5545 3.1)
const maxLineOctets = 75

// Document is a flat collection of calendar entries plus the calendar
// header metadata. Recurrence and nesting are not modeled.
type Document struct {
	ProductID string
	Name      string // X-WR-CALNAME
	Timezone  string // X-WR-TIMEZONE
	Entries   []*Entry
}

// Entry is one VEVENT
type Entry struct {
	UID         string
	Stamp       time.Time
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
	Location    string
	URL         string
	Status      string

	// RawStart and RawEnd hold DTSTART/DTEND values that could not be
	// parsed, so they are written back unchanged.
	RawStart string
	RawEnd   string
}

// HasStart reports whether the entry carries a usable start instant
func (e *Entry) HasStart() bool {
	return !e.Start.IsZero()
}

// New creates an empty document stamped with the product metadata
func New(productID, name, timezone string) *Document {
	return &Document{
		ProductID: productID,
		Name:      name,
		Timezone:  timezone,
		Entries:   make([]*Entry, 0),
	}
}

// Add appends an entry
func (d *Document) Add(e *Entry) {
	d.Entries = append(d.Entries, e)
}

// Find returns the entry with the given UID, or nil
func (d *Document) Find(uid string) *Entry {
	for _, e := range d.Entries {
		if e.UID == uid {
			return e
		}
	}
	return nil
}

// RemoveUID removes every entry with the given UID and returns how many
// were removed.
func (d *Document) RemoveUID(uid string) int {
	return d.removeIf(func(e *Entry) bool { return e.UID == uid })
}

// RemoveStart removes every entry whose start equals t. Entries without a
// usable start are never matched.
func (d *Document) RemoveStart(t time.Time) int {
	return d.removeIf(func(e *Entry) bool { return e.HasStart() && e.Start.Equal(t) })
}

// RemoveFunc removes every entry for which fn returns true
func (d *Document) RemoveFunc(fn func(*Entry) bool) int {
	return d.removeIf(fn)
}

func (d *Document) removeIf(fn func(*Entry) bool) int {
	kept := d.Entries[:0]
	removed := 0
	for _, e := range d.Entries {
		if fn(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// Drop references held by the tail of the backing array
	for i := len(kept); i < len(d.Entries); i++ {
		d.Entries[i] = nil
	}
	d.Entries = kept
	return removed
}

// UIDs returns the set of UIDs present in the document
func (d *Document) UIDs() map[string]bool {
	uids := make(map[string]bool, len(d.Entries))
	for _, e := range d.Entries {
		uids[e.UID] = true
	}
	return uids
}

// Encode serializes the document as iCalendar text with CRLF line endings
func (d *Document) Encode() []byte {
	var ics strings.Builder

	writeLine(&ics, "BEGIN:VCALENDAR")
	writeLine(&ics, "PRODID:"+d.ProductID)
	writeLine(&ics, "VERSION:2.0")
	writeLine(&ics, "CALSCALE:GREGORIAN")
	writeLine(&ics, "METHOD:PUBLISH")
	if d.Name != "" {
		writeLine(&ics, "X-WR-CALNAME:"+Escape(d.Name))
	}
	if d.Timezone != "" {
		writeLine(&ics, "X-WR-TIMEZONE:"+d.Timezone)
	}

	for _, e := range d.Entries {
		writeEntry(&ics, e)
	}

	writeLine(&ics, "END:VCALENDAR")
	return []byte(ics.String())
}

func writeEntry(ics *strings.Builder, e *Entry) {
	writeLine(ics, "BEGIN:VEVENT")
	writeLine(ics, "UID:"+e.UID)
	writeLine(ics, "DTSTAMP:"+formatICSTime(e.Stamp))

	if e.HasStart() {
		writeLine(ics, "DTSTART:"+formatICSTime(e.Start))
	} else if e.RawStart != "" {
		writeLine(ics, "DTSTART:"+e.RawStart)
	}
	if !e.End.IsZero() {
		writeLine(ics, "DTEND:"+formatICSTime(e.End))
	} else if e.RawEnd != "" {
		writeLine(ics, "DTEND:"+e.RawEnd)
	}

	writeLine(ics, "SUMMARY:"+Escape(e.Summary))
	if e.Description != "" {
		writeLine(ics, "DESCRIPTION:"+Escape(e.Description))
	}
	if e.Location != "" {
		writeLine(ics, "LOCATION:"+Escape(e.Location))
	}
	if e.URL != "" {
		writeLine(ics, "URL:"+e.URL)
	}

	status := e.Status
	if status == "" {
		status = StatusConfirmed
	}
	writeLine(ics, "STATUS:"+status)
	writeLine(ics, "END:VEVENT")
}

// writeLine writes one content line, folded, terminated by CRLF
func writeLine(ics *strings.Builder, line string) {
	ics.WriteString(fold(line))
	ics.WriteString("\r\n")
}

// fold splits lines longer than 75 octets into CRLF+space continuations
// without breaking a UTF-8 sequence.
func fold(line string) string {
	if len(line) <= maxLineOctets {
		return line
	}

	var b strings.Builder
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLineOctets - 1 // leading space counts
	}
	b.WriteString(line)
	return b.String()
}

// formatICSTime formats a time.Time as an iCalendar UTC datetime string
func formatICSTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

var (
	textEscaper   = strings.NewReplacer(`\`, `\\`, ",", `\,`, ";", `\;`, "\r\n", `\n`, "\n", `\n`)
	textUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, ",", `\;`, ";", `\n`, "\n", `\N`, "\n")
)

// Escape escapes backslash, comma, semicolon and newline in a TEXT value
func Escape(s string) string {
	return textEscaper.Replace(s)
}

// Unescape reverses Escape
func Unescape(s string) string {
	return textUnescaper.Replace(s)
}
