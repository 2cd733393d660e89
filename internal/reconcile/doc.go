// Package reconcile merges freshly scraped records into the tracking ledger
// and the calendar feed.
//
// A pass prunes events that have started, re-emits calendar entries the
// ledger knows about but the calendar lost, then inserts every new record
// that validates, normalizes and lies in the future. Records whose identity
// is already tracked are skipped without being re-read. The ledger and the
// calendar always carry the same set of UIDs after a successful pass, and
// both are staged before either is committed.
//
// The engine assumes a single writer per pair of stores; concurrent runs
// need an external lock.
package reconcile
