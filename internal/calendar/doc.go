// Package calendar models the published calendar feed and converts it to
// and from iCalendar (RFC 5545) text.
//
// Encoding is hand-written so the output is stable across runs: CRLF line
// endings, folded long lines, UTC timestamps and escaped TEXT values.
// Decoding uses golang-ical for content-line parsing and tolerates legacy
// documents with floating times or unparseable start values.
package calendar
