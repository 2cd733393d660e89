package reconcile

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/galkatzh/JAMD-events/internal/calendar"
	"github.com/galkatzh/JAMD-events/internal/event"
	"github.com/galkatzh/JAMD-events/internal/logger"
	"github.com/galkatzh/JAMD-events/internal/storage"
)

// memPending applies a staged snapshot to its store on Commit
type memPending struct {
	commit    func()
	commitErr error
	discarded *int
	done      bool
}

func (p *memPending) Commit() error {
	if p.commitErr != nil {
		return p.commitErr
	}
	if p.done {
		return errors.New("already committed")
	}
	p.done = true
	p.commit()
	return nil
}

func (p *memPending) Discard() error {
	if !p.done {
		*p.discarded++
	}
	return nil
}

type memLedgers struct {
	ledger    *event.Ledger
	loadErr   error
	stageErr  error
	commitErr error
	commits   int
	discarded int
}

func (s *memLedgers) Load() (*event.Ledger, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.ledger == nil {
		return event.NewLedger(), nil
	}
	return cloneLedger(s.ledger), nil
}

func (s *memLedgers) Stage(l *event.Ledger) (Pending, error) {
	if s.stageErr != nil {
		return nil, s.stageErr
	}
	snapshot := cloneLedger(l)
	return &memPending{
		commit:    func() { s.ledger = snapshot; s.commits++ },
		commitErr: s.commitErr,
		discarded: &s.discarded,
	}, nil
}

type memCalendars struct {
	doc       *calendar.Document
	stageErr  error
	commitErr error
	commits   int
	discarded int
}

func (s *memCalendars) Load() (*calendar.Document, error) {
	if s.doc == nil {
		return calendar.New("-//Test//EN", "Test", "Asia/Jerusalem"), nil
	}
	return cloneDoc(s.doc), nil
}

func (s *memCalendars) Stage(doc *calendar.Document) (Pending, error) {
	if s.stageErr != nil {
		return nil, s.stageErr
	}
	snapshot := cloneDoc(doc)
	return &memPending{
		commit:    func() { s.doc = snapshot; s.commits++ },
		commitErr: s.commitErr,
		discarded: &s.discarded,
	}, nil
}

func cloneLedger(l *event.Ledger) *event.Ledger {
	out := event.NewLedger()
	for k, evt := range l.Events {
		copied := *evt
		out.Events[k] = &copied
	}
	return out
}

func cloneDoc(d *calendar.Document) *calendar.Document {
	out := calendar.New(d.ProductID, d.Name, d.Timezone)
	for _, e := range d.Entries {
		copied := *e
		out.Entries = append(out.Entries, &copied)
	}
	return out
}

func jerusalem(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}
	return loc
}

// sequentialUIDs mints uid-1, uid-2, ...
func sequentialUIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("uid-%d", n)
	}
}

func newTestEngine(t *testing.T, ledgers LedgerStore, calendars CalendarStore) (*Engine, *logger.Metrics) {
	t.Helper()
	metrics := logger.NewMetrics()
	e := New(Config{
		Location:  jerusalem(t),
		UIDDomain: "jamd.ac.il",
		NewUID:    sequentialUIDs(),
		Metrics:   metrics,
	}, ledgers, calendars, logger.Discard())
	return e, metrics
}

var concert = event.RawRecord{
	Title:    "Concert",
	DateText: "5 מרץ 20:00",
	Location: "Hall A",
	Link:     "https://www.jamd.ac.il/node/1",
}

// assertLockStep checks that the ledger and calendar carry the same UIDs
func assertLockStep(t *testing.T, ledger *event.Ledger, doc *calendar.Document) {
	t.Helper()
	var ledgerUIDs, docUIDs []string
	for uid := range ledger.UIDs() {
		ledgerUIDs = append(ledgerUIDs, uid)
	}
	for _, e := range doc.Entries {
		docUIDs = append(docUIDs, e.UID)
	}
	sort.Strings(ledgerUIDs)
	sort.Strings(docUIDs)
	if strings.Join(ledgerUIDs, ",") != strings.Join(docUIDs, ",") {
		t.Errorf("ledger UIDs %v != calendar UIDs %v", ledgerUIDs, docUIDs)
	}
}

func TestRun_InsertThenDuplicate(t *testing.T) {
	loc := jerusalem(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, loc)
	ledgers, calendars := &memLedgers{}, &memCalendars{}
	e, metrics := newTestEngine(t, ledgers, calendars)

	result, err := e.Run([]event.RawRecord{concert}, now)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Inserted) != 1 {
		t.Fatalf("inserted %d events, want 1", len(result.Inserted))
	}

	key := "Concert_5 מרץ 20:00_Hall A"
	evt := ledgers.ledger.Events[key]
	if evt == nil {
		t.Fatalf("ledger has no entry for %q: %v", key, ledgers.ledger.Events)
	}
	wantStart := time.Date(2026, 3, 5, 20, 0, 0, 0, loc)
	if !evt.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", evt.Start, wantStart)
	}
	if evt.UID != "uid-1@jamd.ac.il" {
		t.Errorf("UID = %q, want uid-1@jamd.ac.il", evt.UID)
	}

	entry := calendars.doc.Find(evt.UID)
	if entry == nil {
		t.Fatalf("calendar has no entry with UID %s", evt.UID)
	}
	if entry.Summary != "Concert" || entry.Location != "Hall A" || entry.URL != concert.Link {
		t.Errorf("entry = %+v", entry)
	}
	if !entry.Start.Equal(wantStart) || !entry.End.Equal(wantStart.Add(time.Hour)) {
		t.Errorf("entry span = %v - %v", entry.Start, entry.End)
	}
	if entry.Description != concert.DateText {
		t.Errorf("description = %q, want the raw date text", entry.Description)
	}

	// A second pass over the same listing changes nothing
	result, err = e.Run([]event.RawRecord{concert}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(result.Inserted) != 0 || result.Duplicates != 1 {
		t.Errorf("second run inserted=%d duplicates=%d, want 0 and 1", len(result.Inserted), result.Duplicates)
	}
	if ledgers.ledger.Len() != 1 || len(calendars.doc.Entries) != 1 {
		t.Errorf("after second run: %d tracked, %d calendar entries", ledgers.ledger.Len(), len(calendars.doc.Entries))
	}
	if got := metrics.Counter("records.inserted"); got != 1 {
		t.Errorf("records.inserted = %d, want 1", got)
	}
	if got := metrics.Counter("records.duplicate"); got != 1 {
		t.Errorf("records.duplicate = %d, want 1", got)
	}
}

func TestApply_SkipsInvalidRecords(t *testing.T) {
	loc := jerusalem(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, loc)

	tests := []struct {
		name   string
		record event.RawRecord
		want   SkipReason
	}{
		{
			name:   "missing location",
			record: event.RawRecord{Title: "Recital", DateText: "5 מרץ 20:00"},
			want:   SkipMissingField,
		},
		{
			name:   "whitespace title",
			record: event.RawRecord{Title: "  ", DateText: "5 מרץ 20:00", Location: "Hall A"},
			want:   SkipMissingField,
		},
		{
			name:   "unknown month",
			record: event.RawRecord{Title: "Recital", DateText: "5 Smarch 20:00", Location: "Hall A"},
			want:   SkipNormalization,
		},
		{
			name:   "bad clock",
			record: event.RawRecord{Title: "Recital", DateText: "5 מרץ 25:99", Location: "Hall A"},
			want:   SkipNormalization,
		},
		{
			name:   "starts exactly now",
			record: event.RawRecord{Title: "Recital", DateText: "10 ינואר 12:00", Location: "Hall A"},
			want:   SkipElapsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, metrics := newTestEngine(t, &memLedgers{}, &memCalendars{})
			ledger := event.NewLedger()
			doc := calendar.New("", "", "")

			result := e.Apply(ledger, doc, []event.RawRecord{tt.record, concert}, now)

			if len(result.Skipped) != 1 {
				t.Fatalf("skipped %d records, want 1: %+v", len(result.Skipped), result.Skipped)
			}
			skipped := result.Skipped[0]
			if skipped.Reason != tt.want || skipped.Index != 0 || skipped.Err == nil {
				t.Errorf("skipped = %+v, want reason %s at index 0", skipped, tt.want)
			}
			// The rest of the batch still goes through
			if len(result.Inserted) != 1 || ledger.Len() != 1 || len(doc.Entries) != 1 {
				t.Errorf("valid record not inserted: inserted=%d ledger=%d calendar=%d",
					len(result.Inserted), ledger.Len(), len(doc.Entries))
			}
			if got := metrics.Counter("records.skipped"); got != 1 {
				t.Errorf("records.skipped = %d, want 1", got)
			}
		})
	}
}

func TestApply_MissingFieldErrorNamesFields(t *testing.T) {
	e, _ := newTestEngine(t, &memLedgers{}, &memCalendars{})
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, jerusalem(t))

	result := e.Apply(event.NewLedger(), calendar.New("", "", ""),
		[]event.RawRecord{{Title: "Recital"}}, now)

	var missing *event.MissingFieldError
	if len(result.Skipped) != 1 || !errors.As(result.Skipped[0].Err, &missing) {
		t.Fatalf("skipped = %+v, want a MissingFieldError", result.Skipped)
	}
	if strings.Join(missing.Fields, ",") != "date_text,location" {
		t.Errorf("missing fields = %v", missing.Fields)
	}
}

func TestApply_DuplicateWithinBatch(t *testing.T) {
	e, _ := newTestEngine(t, &memLedgers{}, &memCalendars{})
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, jerusalem(t))
	ledger := event.NewLedger()
	doc := calendar.New("", "", "")

	other := concert
	other.DateText = "5 במרץ 20:00" // same instant, different spelling

	result := e.Apply(ledger, doc, []event.RawRecord{concert, concert, other}, now)

	if len(result.Inserted) != 2 || result.Duplicates != 1 {
		t.Errorf("inserted=%d duplicates=%d, want 2 and 1", len(result.Inserted), result.Duplicates)
	}
	if ledger.Len() != 2 || len(doc.Entries) != 2 {
		t.Errorf("ledger=%d calendar=%d, want 2 each", ledger.Len(), len(doc.Entries))
	}
	assertLockStep(t, ledger, doc)
}

func TestApply_YearRollover(t *testing.T) {
	loc := jerusalem(t)
	e, _ := newTestEngine(t, &memLedgers{}, &memCalendars{})
	now := time.Date(2025, 12, 20, 9, 0, 0, 0, loc)

	rec := event.RawRecord{Title: "New Year Gala", DateText: "3 ינואר 10:00", Location: "Main Hall"}
	result := e.Apply(event.NewLedger(), calendar.New("", "", ""), []event.RawRecord{rec}, now)

	if len(result.Inserted) != 1 {
		t.Fatalf("inserted %d, want 1 (skipped %+v)", len(result.Inserted), result.Skipped)
	}
	want := time.Date(2026, 1, 3, 10, 0, 0, 0, loc)
	if got := result.Inserted[0].Start; !got.Equal(want) {
		t.Errorf("start = %v, want %v", got, want)
	}
}

func TestApply_PrunesPastEvents(t *testing.T) {
	loc := jerusalem(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, loc)
	past := time.Date(2026, 1, 5, 19, 0, 0, 0, loc)
	future := time.Date(2026, 2, 1, 19, 0, 0, 0, loc)

	ledger := event.NewLedger()
	ledger.Insert("Old_5 ינואר 19:00_Hall B", &event.TrackedEvent{Title: "Old", Start: past, Location: "Hall B", UID: "old@jamd.ac.il"})
	ledger.Insert("Legacy_5 ינואר 19:00_Hall C", &event.TrackedEvent{Title: "Legacy", Start: past.Add(time.Hour), Location: "Hall C", UID: "legacy-ledger"})
	ledger.Insert("Soon_1 פברואר 19:00_Hall A", &event.TrackedEvent{Title: "Soon", Start: future, Location: "Hall A", UID: "soon@jamd.ac.il"})

	doc := calendar.New("", "", "")
	doc.Add(&calendar.Entry{UID: "old@jamd.ac.il", Start: past, End: past.Add(time.Hour), Summary: "Old"})
	// Written by an earlier tool with a UID the ledger never saw
	doc.Add(&calendar.Entry{UID: "legacy-calendar", Start: past.Add(time.Hour), Summary: "Legacy"})
	doc.Add(&calendar.Entry{UID: "soon@jamd.ac.il", Start: future, Summary: "Soon"})
	doc.Add(&calendar.Entry{UID: "orphan-past", Start: past.Add(-24 * time.Hour), Summary: "Orphan"})
	doc.Add(&calendar.Entry{UID: "orphan-future", Start: future.Add(24 * time.Hour), Summary: "Foreign"})
	doc.Add(&calendar.Entry{UID: "broken", RawStart: "not-a-date", Summary: "Broken"})

	e, metrics := newTestEngine(t, &memLedgers{}, &memCalendars{})
	result := e.Apply(ledger, doc, nil, now)

	if len(result.Pruned) != 2 {
		t.Errorf("pruned %d tracked events, want 2", len(result.Pruned))
	}
	if result.PrunedUntracked != 2 {
		t.Errorf("pruned %d untracked entries, want 2", result.PrunedUntracked)
	}
	if ledger.Len() != 1 || !ledger.Has("Soon_1 פברואר 19:00_Hall A") {
		t.Errorf("ledger after prune = %v", ledger.Events)
	}

	var remaining []string
	for _, entry := range doc.Entries {
		remaining = append(remaining, entry.UID)
	}
	if got := strings.Join(remaining, ","); got != "soon@jamd.ac.il,broken" {
		t.Errorf("calendar after prune = %s", got)
	}
	if got := metrics.Counter("events.pruned"); got != 4 {
		t.Errorf("events.pruned = %d, want 4", got)
	}
}

func TestApply_LegacyFutureEntryIsReplaced(t *testing.T) {
	loc := jerusalem(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, loc)
	start := time.Date(2026, 3, 5, 20, 0, 0, 0, loc)

	// A feed written before the ledger existed, for the same concert
	doc := calendar.New("", "", "")
	doc.Add(&calendar.Entry{
		UID:     "event-0-20260305T200000@jamd.ac.il",
		Start:   start,
		End:     start.Add(time.Hour),
		Summary: "Concert",
	})

	e, _ := newTestEngine(t, &memLedgers{}, &memCalendars{})
	ledger := event.NewLedger()
	result := e.Apply(ledger, doc, []event.RawRecord{concert}, now)

	if len(result.Inserted) != 1 || result.PrunedUntracked != 1 {
		t.Errorf("inserted=%d untracked dropped=%d, want 1 and 1", len(result.Inserted), result.PrunedUntracked)
	}
	if len(doc.Entries) != 1 || doc.Entries[0].UID != "uid-1@jamd.ac.il" {
		t.Errorf("calendar entries = %+v, want only the tracked one", doc.Entries)
	}
	assertLockStep(t, ledger, doc)
}

func TestApply_PruneWithoutUIDMatchesByStart(t *testing.T) {
	loc := jerusalem(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, loc)
	past := time.Date(2026, 1, 5, 19, 0, 0, 0, loc)

	ledger := event.NewLedger()
	ledger.Insert("Old_5 ינואר 19:00_Hall B", &event.TrackedEvent{Title: "Old", Start: past, Location: "Hall B"})

	doc := calendar.New("", "", "")
	doc.Add(&calendar.Entry{Start: past, Summary: "Old"})
	doc.Add(&calendar.Entry{RawStart: "garbled", Summary: "Unreadable"})

	e, _ := newTestEngine(t, &memLedgers{}, &memCalendars{})
	result := e.Apply(ledger, doc, nil, now)

	if len(result.Pruned) != 1 || ledger.Len() != 0 {
		t.Errorf("pruned %d, %d still tracked", len(result.Pruned), ledger.Len())
	}
	if len(doc.Entries) != 1 || doc.Entries[0].Summary != "Unreadable" {
		t.Errorf("calendar entries = %+v, want only the unreadable entry", doc.Entries)
	}
}

func TestApply_NoPastEventsAfterRun(t *testing.T) {
	loc := jerusalem(t)
	e, _ := newTestEngine(t, &memLedgers{}, &memCalendars{})
	ledger := event.NewLedger()
	doc := calendar.New("", "", "")

	records := []event.RawRecord{
		{Title: "A", DateText: "12 ינואר 18:00", Location: "Hall A"},
		{Title: "B", DateText: "20 ינואר 18:00", Location: "Hall A"},
		{Title: "C", DateText: "2 פברואר 18:00", Location: "Hall B"},
	}
	e.Apply(ledger, doc, records, time.Date(2026, 1, 10, 12, 0, 0, 0, loc))

	later := time.Date(2026, 1, 25, 12, 0, 0, 0, loc)
	result := e.Apply(ledger, doc, nil, later)

	if len(result.Pruned) != 2 {
		t.Errorf("pruned %d, want 2", len(result.Pruned))
	}
	for _, evt := range ledger.Events {
		if evt.Start.Before(later) {
			t.Errorf("ledger still tracks past event %+v", evt)
		}
	}
	for _, entry := range doc.Entries {
		if entry.Start.Before(later) {
			t.Errorf("calendar still holds past entry %+v", entry)
		}
	}
	assertLockStep(t, ledger, doc)
}

func TestApply_Idempotent(t *testing.T) {
	loc := jerusalem(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, loc)
	e, _ := newTestEngine(t, &memLedgers{}, &memCalendars{})
	ledger := event.NewLedger()
	doc := calendar.New("", "", "")

	records := []event.RawRecord{
		concert,
		{Title: "Masterclass", DateText: "14 פברואר, 10:30", Location: "Room 12"},
	}
	e.Apply(ledger, doc, records, now)
	firstLedger := cloneLedger(ledger)
	firstDoc := string(doc.Encode())

	result := e.Apply(ledger, doc, records, now)

	if len(result.Inserted) != 0 || len(result.Pruned) != 0 || result.Healed != 0 {
		t.Errorf("second apply changed state: %+v", result)
	}
	if len(ledger.Events) != len(firstLedger.Events) {
		t.Errorf("ledger size changed from %d to %d", len(firstLedger.Events), len(ledger.Events))
	}
	for k, evt := range firstLedger.Events {
		if got := ledger.Events[k]; got == nil || *got != *evt {
			t.Errorf("ledger entry %q changed: %+v -> %+v", k, evt, got)
		}
	}
	if got := string(doc.Encode()); got != firstDoc {
		t.Errorf("calendar changed on second apply:\n%s\n---\n%s", firstDoc, got)
	}
}

func TestApply_HealsMissingCalendarEntry(t *testing.T) {
	loc := jerusalem(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, loc)
	start := time.Date(2026, 3, 5, 20, 0, 0, 0, loc)

	ledger := event.NewLedger()
	ledger.Insert("Concert_5 מרץ 20:00_Hall A", &event.TrackedEvent{
		Title: "Concert", Start: start, Location: "Hall A", Link: concert.Link, UID: "kept@jamd.ac.il",
	})
	doc := calendar.New("", "", "")

	e, metrics := newTestEngine(t, &memLedgers{}, &memCalendars{})
	result := e.Apply(ledger, doc, []event.RawRecord{concert}, now)

	if result.Healed != 1 || result.Duplicates != 1 || len(result.Inserted) != 0 {
		t.Errorf("healed=%d duplicates=%d inserted=%d, want 1, 1, 0",
			result.Healed, result.Duplicates, len(result.Inserted))
	}
	entry := doc.Find("kept@jamd.ac.il")
	if entry == nil {
		t.Fatal("missing entry was not restored")
	}
	if !entry.Start.Equal(start) || entry.Summary != "Concert" || entry.Status != calendar.StatusConfirmed {
		t.Errorf("restored entry = %+v", entry)
	}
	if got := metrics.Counter("calendar.healed"); got != 1 {
		t.Errorf("calendar.healed = %d, want 1", got)
	}
	assertLockStep(t, ledger, doc)
}

func TestRun_LoadFailure(t *testing.T) {
	ledgers := &memLedgers{loadErr: errors.New("disk on fire")}
	calendars := &memCalendars{}
	e, _ := newTestEngine(t, ledgers, calendars)

	_, err := e.Run([]event.RawRecord{concert}, time.Date(2026, 1, 10, 12, 0, 0, 0, jerusalem(t)))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Run() error = %v, want ErrPersistence", err)
	}
	if calendars.commits != 0 {
		t.Error("calendar must not be written when the ledger cannot be read")
	}
}

func TestRun_StageFailureWritesNothing(t *testing.T) {
	ledgers := &memLedgers{}
	calendars := &memCalendars{stageErr: errors.New("no space left on device")}
	e, _ := newTestEngine(t, ledgers, calendars)

	_, err := e.Run([]event.RawRecord{concert}, time.Date(2026, 1, 10, 12, 0, 0, 0, jerusalem(t)))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Run() error = %v, want ErrPersistence", err)
	}
	if ledgers.commits != 0 || calendars.commits != 0 {
		t.Errorf("commits ledger=%d calendar=%d, want none", ledgers.commits, calendars.commits)
	}
	if ledgers.discarded != 1 {
		t.Errorf("staged ledger discarded %d times, want 1", ledgers.discarded)
	}
}

func TestRun_CalendarCommitFailureHealsNextRun(t *testing.T) {
	loc := jerusalem(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, loc)
	ledgers := &memLedgers{}
	calendars := &memCalendars{commitErr: errors.New("rename failed")}
	e, _ := newTestEngine(t, ledgers, calendars)

	if _, err := e.Run([]event.RawRecord{concert}, now); !errors.Is(err, ErrPersistence) {
		t.Fatalf("Run() error = %v, want ErrPersistence", err)
	}
	if ledgers.commits != 1 || calendars.commits != 0 {
		t.Fatalf("commits ledger=%d calendar=%d, want 1 and 0", ledgers.commits, calendars.commits)
	}

	calendars.commitErr = nil
	result, err := e.Run([]event.RawRecord{concert}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Healed != 1 || len(result.Inserted) != 0 {
		t.Errorf("healed=%d inserted=%d, want 1 and 0", result.Healed, len(result.Inserted))
	}
	assertLockStep(t, ledgers.ledger, calendars.doc)
}

func TestRun_FileStores(t *testing.T) {
	loc := jerusalem(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, loc)

	s, err := storage.New(t.TempDir(), storage.Options{
		ProductID:    "-//JAMD Calendar Scraper//EN",
		CalendarName: "JAMD Events",
		Location:     loc,
	})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	ledgers, calendars := FileStores(s)
	e, _ := newTestEngine(t, ledgers, calendars)

	records := []event.RawRecord{
		concert,
		{Title: "Jazz Night", DateText: "12 פברואר 21:30", Location: "Club, Floor 2"},
		{Title: `Recital C:\new; \\share`, DateText: "20 פברואר 19:00", Location: `Room\n5`},
	}
	if _, err := e.Run(records, now); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	ics, err := os.ReadFile(s.Calendar.Path())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"PRODID:-//JAMD Calendar Scraper//EN\r\n",
		"X-WR-CALNAME:JAMD Events\r\n",
		"UID:uid-1@jamd.ac.il\r\n",
		"DTSTART:20260305T180000Z\r\n",
		"LOCATION:Club\\, Floor 2\r\n",
	} {
		if !strings.Contains(string(ics), want) {
			t.Errorf("calendar file missing %q:\n%s", want, ics)
		}
	}

	// A fresh engine over the same files sees every event as tracked
	e2, _ := newTestEngine(t, ledgers, calendars)
	result, err := e2.Run(records, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(result.Inserted) != 0 || result.Duplicates != 3 || result.Healed != 0 {
		t.Errorf("second run inserted=%d duplicates=%d healed=%d", len(result.Inserted), result.Duplicates, result.Healed)
	}

	ledger, err := s.Ledger.Load()
	if err != nil {
		t.Fatal(err)
	}
	doc, err := s.Calendar.Load()
	if err != nil {
		t.Fatal(err)
	}
	assertLockStep(t, ledger, doc)

	// Rewriting the feed leaves stored text untouched
	rewritten, err := os.ReadFile(s.Calendar.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(rewritten) != string(ics) {
		t.Errorf("calendar changed on rewrite:\n%s\nwant:\n%s", rewritten, ics)
	}
	for _, evt := range ledger.Events {
		entry := doc.Find(evt.UID)
		if entry == nil || entry.Summary != evt.Title || entry.Location != evt.Location {
			t.Errorf("calendar entry %+v does not match tracked event %+v", entry, evt)
		}
	}
}
