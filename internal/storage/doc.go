// Package storage provides file persistence for the tracking ledger and the
// calendar feed.
//
// The ledger is a JSON document (events.json) and the calendar is an
// iCalendar file (events.ics), both kept in one data directory (default
// ~/.local/share/jamd-events/). Writes are staged to a temp file in the
// target directory and renamed into place, so a reader never sees a
// half-written file and two stores can be committed together.
package storage
