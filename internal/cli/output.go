package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/galkatzh/JAMD-events/internal/event"
	"github.com/galkatzh/JAMD-events/internal/reconcile"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

const displayLayout = "Mon 2 Jan 2006, 15:04"

func parseFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if format != FormatText && format != FormatJSON {
		return "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", s)
	}
	return format, nil
}

// SkippedRecord is the reported form of a record the engine dropped
type SkippedRecord struct {
	Index  int    `json:"index"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// SyncResult is what sync and prune report
type SyncResult struct {
	SyncedAt   time.Time             `json:"synced_at"`
	Fetched    int                   `json:"fetched"`
	Inserted   []*event.TrackedEvent `json:"inserted"`
	Pruned     int                   `json:"pruned"`
	Duplicates int                   `json:"duplicates"`
	Healed     int                   `json:"healed"`
	Skipped    []SkippedRecord       `json:"skipped"`
	Tracked    int                   `json:"tracked"`
}

func newSyncResult(now time.Time, fetched int, r *reconcile.Result) *SyncResult {
	out := &SyncResult{
		SyncedAt:   now.UTC(),
		Fetched:    fetched,
		Inserted:   r.Inserted,
		Pruned:     len(r.Pruned) + r.PrunedUntracked,
		Duplicates: r.Duplicates,
		Healed:     r.Healed,
		Skipped:    make([]SkippedRecord, 0, len(r.Skipped)),
		Tracked:    r.Ledger.Len(),
	}
	if out.Inserted == nil {
		out.Inserted = []*event.TrackedEvent{}
	}
	for _, s := range r.Skipped {
		out.Skipped = append(out.Skipped, SkippedRecord{
			Index:  s.Index,
			Title:  s.Record.Title,
			Reason: string(s.Reason),
			Error:  s.Err.Error(),
		})
	}
	return out
}

// ListResult is what list reports
type ListResult struct {
	Filter     string                `json:"filter,omitempty"`
	Events     []*event.TrackedEvent `json:"events"`
	EventCount int                   `json:"event_count"`
}

// printer writes results in one format, with event times in loc
type printer struct {
	w       io.Writer
	format  OutputFormat
	loc     *time.Location
	verbose bool
}

func (p printer) sync(result *SyncResult) error {
	if p.format == FormatJSON {
		return writeJSON(p.w, result)
	}

	if len(result.Inserted) == 0 {
		fmt.Fprintln(p.w, "No new events found.")
	}
	for _, evt := range result.Inserted {
		fmt.Fprintf(p.w, "NEW: %s\n", p.line(evt))
		p.details(evt, "     ")
	}

	if p.verbose {
		for _, s := range result.Skipped {
			fmt.Fprintf(p.w, "SKIPPED #%d %q (%s): %s\n", s.Index, s.Title, s.Reason, s.Error)
		}
	}

	fmt.Fprintf(p.w, "\nTotal: %d new, %d pruned, %d already tracked, %d skipped",
		len(result.Inserted), result.Pruned, result.Duplicates, len(result.Skipped))
	if result.Healed > 0 {
		fmt.Fprintf(p.w, ", %d restored", result.Healed)
	}
	fmt.Fprintf(p.w, " (%d tracked)\n", result.Tracked)
	return nil
}

func (p printer) list(result *ListResult) error {
	if p.format == FormatJSON {
		return writeJSON(p.w, result)
	}

	if result.Filter != "" {
		fmt.Fprintf(p.w, "Filter: %s\n\n", result.Filter)
	}
	if result.EventCount == 0 {
		fmt.Fprintln(p.w, "No events found.")
		return nil
	}
	for _, evt := range result.Events {
		fmt.Fprintln(p.w, p.line(evt))
		p.details(evt, "  ")
	}
	fmt.Fprintf(p.w, "\nTotal: %d events\n", result.EventCount)
	return nil
}

func (p printer) line(evt *event.TrackedEvent) string {
	return fmt.Sprintf("%s | %s | %s", evt.Start.In(p.loc).Format(displayLayout), evt.Title, evt.Location)
}

func (p printer) details(evt *event.TrackedEvent, indent string) {
	if !p.verbose {
		return
	}
	fmt.Fprintf(p.w, "%sUID: %s\n", indent, evt.UID)
	if evt.Link != "" {
		fmt.Fprintf(p.w, "%sLink: %s\n", indent, evt.Link)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
