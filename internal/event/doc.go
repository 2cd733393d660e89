// Package event provides the event model shared by the scraper, the stores
// and the reconciliation engine.
//
// A RawRecord is one event as scraped from the source page. Its identity is
// derived from the raw title, date text and location (DeriveKey), so the
// same listing maps to the same key on every run. Date text is written in
// the institution's locale without a year; Normalizer resolves it into a
// timezone-aware instant. TrackedEvent and Ledger are the persisted view of
// every event the tool currently knows about.
package event
