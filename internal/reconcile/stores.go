package reconcile

import (
	"github.com/galkatzh/JAMD-events/internal/calendar"
	"github.com/galkatzh/JAMD-events/internal/event"
	"github.com/galkatzh/JAMD-events/internal/storage"
)

// Pending is a staged write that can be committed or thrown away
type Pending interface {
	Commit() error
	Discard() error
}

// LedgerStore loads and stages the tracking ledger
type LedgerStore interface {
	Load() (*event.Ledger, error)
	Stage(*event.Ledger) (Pending, error)
}

// CalendarStore loads and stages the calendar document
type CalendarStore interface {
	Load() (*calendar.Document, error)
	Stage(*calendar.Document) (Pending, error)
}

type ledgerFile struct {
	*storage.LedgerFile
}

func (f ledgerFile) Stage(l *event.Ledger) (Pending, error) {
	p, err := f.LedgerFile.Stage(l)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type calendarFile struct {
	*storage.CalendarFile
}

func (f calendarFile) Stage(doc *calendar.Document) (Pending, error) {
	p, err := f.CalendarFile.Stage(doc)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FileStores adapts file storage to the engine's store interfaces
func FileStores(s *storage.Storage) (LedgerStore, CalendarStore) {
	return ledgerFile{s.Ledger}, calendarFile{s.Calendar}
}
