package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/galkatzh/JAMD-events/internal/config"
	"github.com/galkatzh/JAMD-events/internal/event"
	"github.com/galkatzh/JAMD-events/internal/filter"
	"github.com/galkatzh/JAMD-events/internal/logger"
	"github.com/galkatzh/JAMD-events/internal/notifier"
	"github.com/galkatzh/JAMD-events/internal/reconcile"
	"github.com/galkatzh/JAMD-events/internal/scraper"
	"github.com/galkatzh/JAMD-events/internal/storage"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

// globalOptions holds the persistent flags
type globalOptions struct {
	configPath string
	dataDir    string
	timezone   string
	verbose    bool

	now    func() time.Time
	getenv func(string) string
}

// runEnv is everything a subcommand needs after flags and config are
// resolved.
type runEnv struct {
	cfg     *config.Config
	loc     *time.Location
	log     *logger.Logger
	metrics *logger.Metrics
	store   *storage.Storage
	now     time.Time
	verbose bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(&globalOptions{now: time.Now, getenv: os.Getenv})
}

func newRootCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jamd-events",
		Short: "Keep a deduplicated calendar feed of JAMD events",
		Long: `A CLI tool that scrapes the JAMD events calendar, tracks every upcoming
event in a JSON ledger and publishes them as an iCalendar feed. Events that
have started are retired on every run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Define flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the YAML config file")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Data directory for the ledger and calendar (overrides config)")
	flags.StringVar(&opts.timezone, "timezone", "", "IANA timezone for event dates (overrides config)")
	flags.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(newSyncCmd(opts), newListCmd(opts), newPruneCmd(opts))
	return cmd
}

// setup loads the config, applies flag overrides and opens storage
func (o *globalOptions) setup(cmd *cobra.Command) (*runEnv, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if cmd.Flags().Changed("timezone") {
		cfg.Timezone = o.timezone
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		level = logger.LevelDebug
	}
	log := logger.New(level, cmd.ErrOrStderr())

	store, err := storage.New(cfg.DataDir, storage.Options{
		LedgerFile:   cfg.LedgerFile,
		CalendarFile: cfg.CalendarFile,
		ProductID:    cfg.Calendar.ProductID,
		CalendarName: cfg.Calendar.Name,
		Location:     loc,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	log.Debug("configuration loaded", logger.Fields{
		"config":   o.configPath,
		"data_dir": store.DataDir(),
		"timezone": loc.String(),
	})

	return &runEnv{
		cfg:     cfg,
		loc:     loc,
		log:     log,
		metrics: logger.NewMetrics(),
		store:   store,
		now:     o.now().In(loc),
		verbose: o.verbose,
	}, nil
}

func (e *runEnv) engine() *reconcile.Engine {
	ledgers, calendars := reconcile.FileStores(e.store)
	return reconcile.New(reconcile.Config{
		Location:      e.loc,
		EventDuration: e.cfg.Calendar.EventDuration,
		UIDDomain:     e.cfg.Calendar.UIDDomain,
		Metrics:       e.metrics,
	}, ledgers, calendars, e.log)
}

// printMetrics writes the run counters to stderr in verbose mode
func (e *runEnv) printMetrics(w io.Writer) {
	if !e.verbose {
		return
	}
	fmt.Fprintln(w, "--- metrics ---")
	e.metrics.Snapshot().WriteText(w)
}

func newSyncCmd(opts *globalOptions) *cobra.Command {
	var (
		input    string
		format   string
		noNotify bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch events, reconcile them into the ledger and calendar, and announce new ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			env, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			started := time.Now()

			var records []event.RawRecord
			if input != "" {
				records, err = readRecords(input, cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading records: %w", err)
				}
			} else {
				records, err = env.fetch(cmd.Context())
				if err != nil {
					return err
				}
			}

			result, err := env.engine().Run(records, env.now)
			if err != nil {
				return fmt.Errorf("reconciling: %w", err)
			}
			env.metrics.RecordTiming("sync.duration", time.Since(started))

			p := printer{w: cmd.OutOrStdout(), format: outFormat, loc: env.loc, verbose: env.verbose}
			if err := p.sync(newSyncResult(env.now, len(records), result)); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}

			if !noNotify {
				announceOut := cmd.OutOrStdout()
				if outFormat == FormatJSON {
					announceOut = cmd.ErrOrStderr()
				}
				env.announce(cmd.Context(), result.Inserted, announceOut, opts.getenv)
			}

			env.printMetrics(cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Read raw records from a JSON file ('-' for stdin) instead of fetching")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "Do not announce new events")
	return cmd
}

func (e *runEnv) fetch(ctx context.Context) ([]event.RawRecord, error) {
	fetcher, err := scraper.New(scraper.Options{
		BaseURL:     e.cfg.Source.BaseURL,
		UserAgent:   e.cfg.Source.UserAgent,
		Timeout:     e.cfg.Source.Timeout,
		MaxAttempts: e.cfg.Retry.MaxAttempts,
		Delay:       e.cfg.Retry.Delay,
		Logger:      e.log,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing scraper: %w", err)
	}

	records, err := fetcher.FetchRange(ctx, e.now, e.cfg.Source.MonthsAhead)
	if err != nil {
		return nil, fmt.Errorf("fetching events: %w", err)
	}
	e.log.Info("fetched records", logger.Fields{"count": len(records)})
	return records, nil
}

// announce posts new events. State is already committed, so failures are
// logged and never change the exit status.
func (e *runEnv) announce(ctx context.Context, events []*event.TrackedEvent, out io.Writer, getenv func(string) string) {
	if len(events) == 0 || !e.cfg.Notify.Enabled() {
		return
	}

	n, err := notifier.FromConfig(e.cfg.Notify, config.SecretsFromEnv(getenv), notifier.Formatter{Location: e.loc}, out)
	if err != nil {
		e.log.Error("notifier unavailable", nil, err)
		return
	}
	if n == nil {
		return
	}
	if err := n.Notify(ctx, events); err != nil {
		e.log.Error("announcing new events failed", logger.Fields{"events": len(events)}, err)
		return
	}
	e.metrics.AddCounter("events.announced", int64(len(events)))
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var (
		format    string
		order     string
		dateRange string
		from      string
		to        string
		titles    []string
		locations []string
		weekends  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the tracked events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			sortOrder, err := parseSortOrder(order)
			if err != nil {
				return err
			}
			env, err := opts.setup(cmd)
			if err != nil {
				return err
			}

			f := filter.New(env.loc)
			f.Titles = titles
			f.Locations = locations
			f.WeekendsOnly = weekends
			if dateRange != "" {
				if f.From, f.To, err = filter.ParseDateRange(dateRange, env.now); err != nil {
					return err
				}
			}
			if from != "" {
				if f.From, err = filter.ParseDate(from, env.loc, false); err != nil {
					return err
				}
			}
			if to != "" {
				if f.To, err = filter.ParseDate(to, env.loc, true); err != nil {
					return err
				}
			}

			ledger, err := env.store.Ledger.Load()
			if err != nil {
				return fmt.Errorf("loading ledger: %w", err)
			}

			events := f.Apply(ledger.Sorted())
			sortEvents(events, sortOrder)

			result := &ListResult{Events: events, EventCount: len(events)}
			if !f.IsEmpty() {
				result.Filter = f.String()
			}
			p := printer{w: cmd.OutOrStdout(), format: outFormat, loc: env.loc, verbose: env.verbose}
			return p.list(result)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().StringVar(&order, "sort", "date", "Sort order: date, title or location")
	cmd.Flags().StringVar(&dateRange, "range", "", "Date range such as 'Mar 1-15', 'March 1 - April 15' or 'March'")
	cmd.Flags().StringVar(&from, "from", "", "Only events on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Only events on or before this date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&titles, "title", nil, "Only events whose title contains this text (repeatable)")
	cmd.Flags().StringSliceVar(&locations, "location", nil, "Only events whose location contains this text (repeatable)")
	cmd.Flags().BoolVar(&weekends, "weekends", false, "Only events on Friday or Saturday")
	return cmd
}

func newPruneCmd(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Retire events that have started without fetching new ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			env, err := opts.setup(cmd)
			if err != nil {
				return err
			}

			result, err := env.engine().Run(nil, env.now)
			if err != nil {
				return fmt.Errorf("pruning: %w", err)
			}

			p := printer{w: cmd.OutOrStdout(), format: outFormat, loc: env.loc, verbose: env.verbose}
			if err := p.sync(newSyncResult(env.now, 0, result)); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			env.printMetrics(cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

// inputRecord accepts both the ledger's field names and the ones used by
// flat scrape dumps (date_display, url).
type inputRecord struct {
	Title       string `json:"title"`
	DateText    string `json:"date_text"`
	DateDisplay string `json:"date_display"`
	Location    string `json:"location"`
	Link        string `json:"link"`
	URL         string `json:"url"`
}

func readRecords(path string, stdin io.Reader) ([]event.RawRecord, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var raw []inputRecord
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	records := make([]event.RawRecord, 0, len(raw))
	for _, in := range raw {
		rec := event.RawRecord{
			Title:    in.Title,
			DateText: in.DateText,
			Location: in.Location,
			Link:     in.Link,
		}
		if strings.TrimSpace(rec.DateText) == "" {
			rec.DateText = in.DateDisplay
		}
		if rec.Link == "" {
			rec.Link = in.URL
		}
		records = append(records, rec)
	}
	return records, nil
}

// Execute runs the CLI and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(ExitError)
	}
}
