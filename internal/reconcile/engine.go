package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/galkatzh/JAMD-events/internal/calendar"
	"github.com/galkatzh/JAMD-events/internal/event"
	"github.com/galkatzh/JAMD-events/internal/logger"
)

// DefaultEventDuration is the length given to every calendar entry
const DefaultEventDuration = time.Hour

// ErrPersistence wraps every failure to read or write a durable store
var ErrPersistence = errors.New("persistence failure")

// Config holds the engine's explicit settings
type Config struct {
	Location      *time.Location  // reference frame for "now" and date text
	EventDuration time.Duration   // DTEND = DTSTART + EventDuration
	UIDDomain     string          // appended to minted UIDs as "@domain"
	NewUID        func() string   // mints the opaque part of a UID
	Metrics       *logger.Metrics // run counters; the default tracker if nil
}

// SkipReason classifies why a raw record was not inserted
type SkipReason string

const (
	SkipMissingField  SkipReason = "missing_field"
	SkipNormalization SkipReason = "normalization"
	SkipElapsed       SkipReason = "elapsed"
)

// Skipped describes one raw record that was dropped from the batch
type Skipped struct {
	Index  int
	Record event.RawRecord
	Reason SkipReason
	Err    error
}

// Result reports what a reconciliation pass did
type Result struct {
	Ledger   *event.Ledger
	Calendar *calendar.Document

	Inserted        []*event.TrackedEvent
	Pruned          []*event.TrackedEvent
	PrunedUntracked int // calendar-only entries with a usable start
	Duplicates      int // records whose identity was already tracked
	Healed          int // calendar entries re-emitted from the ledger
	Skipped         []Skipped
}

// Engine merges raw records into a ledger and calendar pair
type Engine struct {
	cfg        Config
	normalizer *event.Normalizer
	ledgers    LedgerStore
	calendars  CalendarStore
	log        *logger.Logger
	metrics    *logger.Metrics
}

// New creates an engine over the given stores
func New(cfg Config, ledgers LedgerStore, calendars CalendarStore, log *logger.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.EventDuration <= 0 {
		cfg.EventDuration = DefaultEventDuration
	}
	if cfg.NewUID == nil {
		cfg.NewUID = uuid.NewString
	}
	if log == nil {
		log = logger.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = logger.DefaultMetrics()
	}

	return &Engine{
		cfg:        cfg,
		normalizer: event.NewNormalizer(cfg.Location),
		ledgers:    ledgers,
		calendars:  calendars,
		log:        log.With(logger.Fields{"component": "reconcile"}),
		metrics:    metrics,
	}
}

// Run performs a full pass: load both stores, reconcile, then persist both.
// On error nothing is reported as applied; see persist for the one case
// where the ledger is ahead of the calendar.
func (e *Engine) Run(records []event.RawRecord, now time.Time) (*Result, error) {
	ledger, err := e.ledgers.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: loading ledger: %w", ErrPersistence, err)
	}
	doc, err := e.calendars.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: loading calendar: %w", ErrPersistence, err)
	}

	result := e.Apply(ledger, doc, records, now)

	if err := e.persist(ledger, doc); err != nil {
		return result, err
	}

	e.log.Info("reconciliation complete", logger.Fields{
		"inserted":   len(result.Inserted),
		"pruned":     len(result.Pruned) + result.PrunedUntracked,
		"duplicates": result.Duplicates,
		"skipped":    len(result.Skipped),
		"healed":     result.Healed,
		"tracked":    ledger.Len(),
	})
	return result, nil
}

// persist stages both artifacts before committing either. The ledger is
// committed first: if the calendar rename then fails, the next pass heals
// the calendar from the ledger.
func (e *Engine) persist(ledger *event.Ledger, doc *calendar.Document) error {
	lp, err := e.ledgers.Stage(ledger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	cp, err := e.calendars.Stage(doc)
	if err != nil {
		e.discard(lp)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := lp.Commit(); err != nil {
		e.discard(lp)
		e.discard(cp)
		return fmt.Errorf("%w: committing ledger: %w", ErrPersistence, err)
	}
	if err := cp.Commit(); err != nil {
		e.discard(cp)
		return fmt.Errorf("%w: committing calendar (ledger already written): %w", ErrPersistence, err)
	}
	return nil
}

func (e *Engine) discard(p Pending) {
	if err := p.Discard(); err != nil {
		e.log.Warn("discarding staged write failed", logger.Fields{"error": err.Error()})
	}
}

// Apply reconciles records against ledger and doc in memory, modifying
// both, and returns what changed. It reads the clock only through now.
func (e *Engine) Apply(ledger *event.Ledger, doc *calendar.Document, records []event.RawRecord, now time.Time) *Result {
	result := &Result{Ledger: ledger, Calendar: doc}

	e.prune(ledger, doc, now, result)
	e.heal(ledger, doc, now, result)
	for i, rec := range records {
		e.insert(ledger, doc, i, rec, now, result)
	}

	return result
}

// prune drops every tracked event that started before now along with its
// calendar entry, then drops every calendar entry the ledger does not
// track. Untracked entries without a usable start are kept.
func (e *Engine) prune(ledger *event.Ledger, doc *calendar.Document, now time.Time, result *Result) {
	for _, key := range ledger.Expired(now) {
		evt := ledger.Remove(key)

		removed := 0
		if evt.UID != "" {
			removed = doc.RemoveUID(evt.UID)
		}
		if removed == 0 {
			// Legacy documents carry UIDs the ledger never minted
			removed = doc.RemoveStart(evt.Start)
		}

		result.Pruned = append(result.Pruned, evt)
		e.metrics.IncrCounter("events.pruned")
		e.log.Info("pruned past event", logger.Fields{
			"title":            evt.Title,
			"start":            evt.Start.In(e.cfg.Location).Format(time.RFC3339),
			"uid":              evt.UID,
			"calendar_removed": removed,
		})
	}

	tracked := ledger.UIDs()
	result.PrunedUntracked = doc.RemoveFunc(func(entry *calendar.Entry) bool {
		if tracked[entry.UID] {
			return false
		}
		if !entry.HasStart() {
			e.log.Warn("keeping calendar entry with unusable start", logger.Fields{
				"uid":     entry.UID,
				"summary": entry.Summary,
				"dtstart": entry.RawStart,
			})
			return false
		}
		return true
	})
	if result.PrunedUntracked > 0 {
		e.metrics.AddCounter("events.pruned", int64(result.PrunedUntracked))
		e.log.Info("dropped untracked calendar entries", logger.Fields{"count": result.PrunedUntracked})
	}
}

// heal re-emits calendar entries for tracked events the calendar lacks
func (e *Engine) heal(ledger *event.Ledger, doc *calendar.Document, now time.Time, result *Result) {
	present := doc.UIDs()
	for _, evt := range ledger.Sorted() {
		if present[evt.UID] {
			continue
		}
		doc.Add(e.entryFor(evt, evt.Link, now))
		present[evt.UID] = true
		result.Healed++
		e.metrics.IncrCounter("calendar.healed")
		e.log.Warn("restored missing calendar entry", logger.Fields{"uid": evt.UID, "title": evt.Title})
	}
}

func (e *Engine) insert(ledger *event.Ledger, doc *calendar.Document, index int, rec event.RawRecord, now time.Time, result *Result) {
	key, err := event.DeriveKey(rec)
	if err != nil {
		e.skip(result, index, rec, SkipMissingField, err)
		return
	}

	if ledger.Has(key) {
		result.Duplicates++
		e.metrics.IncrCounter("records.duplicate")
		e.log.Debug("already tracked", logger.Fields{"index": index, "key": key})
		return
	}

	start, err := e.normalizer.Normalize(rec.DateText, now)
	if err != nil {
		e.skip(result, index, rec, SkipNormalization, err)
		return
	}
	if !start.After(now) {
		e.skip(result, index, rec, SkipElapsed, fmt.Errorf("event at %s is not after %s",
			start.Format(time.RFC3339), now.In(e.cfg.Location).Format(time.RFC3339)))
		return
	}

	evt := &event.TrackedEvent{
		Title:    rec.Title,
		Start:    start,
		Location: rec.Location,
		Link:     rec.Link,
		UID:      e.mintUID(),
	}
	ledger.Insert(key, evt)
	doc.Add(e.entryFor(evt, rec.DateText, now))

	result.Inserted = append(result.Inserted, evt)
	e.metrics.IncrCounter("records.inserted")
	e.log.Info("inserted event", logger.Fields{
		"title": evt.Title,
		"start": start.Format(time.RFC3339),
		"uid":   evt.UID,
	})
}

func (e *Engine) skip(result *Result, index int, rec event.RawRecord, reason SkipReason, err error) {
	result.Skipped = append(result.Skipped, Skipped{Index: index, Record: rec, Reason: reason, Err: err})
	e.metrics.IncrCounter("records.skipped")
	e.log.Warn("skipping record", logger.Fields{
		"index":  index,
		"title":  rec.Title,
		"reason": string(reason),
		"error":  err.Error(),
	})
}

func (e *Engine) mintUID() string {
	id := e.cfg.NewUID()
	if e.cfg.UIDDomain == "" {
		return id
	}
	return id + "@" + e.cfg.UIDDomain
}

func (e *Engine) entryFor(evt *event.TrackedEvent, description string, now time.Time) *calendar.Entry {
	return &calendar.Entry{
		UID:         evt.UID,
		Stamp:       now.UTC(),
		Start:       evt.Start,
		End:         evt.Start.Add(e.cfg.EventDuration),
		Summary:     evt.Title,
		Description: description,
		Location:    evt.Location,
		URL:         evt.Link,
		Status:      calendar.StatusConfirmed,
	}
}
