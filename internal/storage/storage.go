package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/galkatzh/JAMD-events/internal/calendar"
	"github.com/galkatzh/JAMD-events/internal/event"
)

const (
	DefaultLedgerFile   = "events.json"
	DefaultCalendarFile = "events.ics"
)

// Options configures the file names and the calendar header written for a
// fresh calendar.
type Options struct {
	LedgerFile   string
	CalendarFile string
	ProductID    string
	CalendarName string
	Location     *time.Location
}

// Storage handles persistence of the ledger and the calendar feed
type Storage struct {
	dataDir  string
	Ledger   *LedgerFile
	Calendar *CalendarFile
}

// New creates a new Storage instance rooted at dataDir
func New(dataDir string, opts Options) (*Storage, error) {
	dataDir, err := ExpandHome(dataDir)
	if err != nil {
		return nil, err
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	if opts.LedgerFile == "" {
		opts.LedgerFile = DefaultLedgerFile
	}
	if opts.CalendarFile == "" {
		opts.CalendarFile = DefaultCalendarFile
	}

	return &Storage{
		dataDir: dataDir,
		Ledger:  NewLedgerFile(resolve(dataDir, opts.LedgerFile)),
		Calendar: NewCalendarFile(resolve(dataDir, opts.CalendarFile), calendar.New(
			opts.ProductID, opts.CalendarName, locationName(opts.Location),
		), opts.Location),
	}, nil
}

// DataDir returns the expanded data directory
func (s *Storage) DataDir() string {
	return s.dataDir
}

// ExpandHome expands a leading ~/ to the user's home directory
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func locationName(loc *time.Location) string {
	if loc == nil {
		return ""
	}
	return loc.String()
}

// LedgerFile stores the tracking ledger as JSON
type LedgerFile struct {
	path string
}

// NewLedgerFile creates a ledger store at path
func NewLedgerFile(path string) *LedgerFile {
	return &LedgerFile{path: path}
}

// Path returns the ledger file path
func (f *LedgerFile) Path() string {
	return f.path
}

// Load reads the ledger. A missing or empty file is an empty ledger.
func (f *LedgerFile) Load() (*event.Ledger, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return event.NewLedger(), nil
		}
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return event.NewLedger(), nil
	}

	var ledger event.Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("parsing ledger: %w", err)
	}

	// Ensure Events map is initialized
	if ledger.Events == nil {
		ledger.Events = make(map[string]*event.TrackedEvent)
	}
	for key, evt := range ledger.Events {
		if evt == nil {
			delete(ledger.Events, key)
		}
	}

	return &ledger, nil
}

// Encode renders the ledger as indented JSON
func (f *LedgerFile) Encode(ledger *event.Ledger) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ledger); err != nil {
		return nil, fmt.Errorf("encoding ledger: %w", err)
	}
	return buf.Bytes(), nil
}

// Stage writes the full ledger to a temp file, ready to Commit
func (f *LedgerFile) Stage(ledger *event.Ledger) (*Pending, error) {
	data, err := f.Encode(ledger)
	if err != nil {
		return nil, err
	}
	p, err := Stage(f.path, data)
	if err != nil {
		return nil, fmt.Errorf("staging ledger: %w", err)
	}
	return p, nil
}

// Save replaces the ledger file with the full ledger
func (f *LedgerFile) Save(ledger *event.Ledger) error {
	data, err := f.Encode(ledger)
	if err != nil {
		return err
	}
	if err := writeFile(f.path, data); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	return nil
}

// CalendarFile stores the calendar document as an .ics file
type CalendarFile struct {
	path     string
	template *calendar.Document
	loc      *time.Location
}

// NewCalendarFile creates a calendar store at path. template supplies the
// header of a fresh document; loc is used for floating times.
func NewCalendarFile(path string, template *calendar.Document, loc *time.Location) *CalendarFile {
	if template == nil {
		template = calendar.New("", "", "")
	}
	return &CalendarFile{path: path, template: template, loc: loc}
}

// Path returns the calendar file path
func (f *CalendarFile) Path() string {
	return f.path
}

// Load reads the calendar. A missing or empty file yields a fresh document
// carrying the configured product metadata.
func (f *CalendarFile) Load() (*calendar.Document, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.fresh(), nil
		}
		return nil, fmt.Errorf("reading calendar: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return f.fresh(), nil
	}

	doc, err := calendar.Decode(bytes.NewReader(data), f.loc)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	// Keep the configured header on documents written by other tools
	if f.template.ProductID != "" {
		doc.ProductID = f.template.ProductID
	}
	if doc.Name == "" {
		doc.Name = f.template.Name
	}
	if doc.Timezone == "" {
		doc.Timezone = f.template.Timezone
	}

	return doc, nil
}

func (f *CalendarFile) fresh() *calendar.Document {
	return calendar.New(f.template.ProductID, f.template.Name, f.template.Timezone)
}

// Stage writes the full calendar to a temp file, ready to Commit
func (f *CalendarFile) Stage(doc *calendar.Document) (*Pending, error) {
	p, err := Stage(f.path, doc.Encode())
	if err != nil {
		return nil, fmt.Errorf("staging calendar: %w", err)
	}
	return p, nil
}

// Save replaces the calendar file with the full document
func (f *CalendarFile) Save(doc *calendar.Document) error {
	if err := writeFile(f.path, doc.Encode()); err != nil {
		return fmt.Errorf("writing calendar: %w", err)
	}
	return nil
}
