// Package scraper fetches the institution's event calendar and extracts raw
// event records from it.
//
// The calendar is served through a Drupal Views AJAX endpoint that returns
// a JSON array of commands; "insert" commands carry rendered HTML for one
// month. Fetcher requests one month at a time with a bounded retry policy,
// and Extract turns the HTML into event.RawRecord values without
// validating them. Validation and date handling belong to the
// reconciliation engine.
package scraper
