package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/galkatzh/JAMD-events/internal/event"
	"github.com/galkatzh/JAMD-events/internal/logger"
)

const (
	DefaultBaseURL     = "https://www.jamd.ac.il"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
	DefaultDelay       = 5 * time.Second

	ajaxPath     = "/views/ajax"
	calendarPage = "/calendar-of-events-page"
	viewDOMID    = "43a9961c501d60faa3159e34295a5dcb"
	maxSnippet   = 500
)

// FetchError reports a page that could not be fetched after every attempt
type FetchError struct {
	URL      string
	Month    string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s for %s failed after %d attempts: %v", e.URL, e.Month, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Command is one entry of a Drupal AJAX response
type Command struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// HTML returns the markup carried by an insert command
func (c Command) HTML() (string, bool) {
	if c.Command != "insert" || len(c.Data) == 0 {
		return "", false
	}
	var html string
	if err := json.Unmarshal(c.Data, &html); err != nil {
		return "", false
	}
	return html, true
}

// Options configures a Fetcher. Zero values take the defaults above.
type Options struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	Delay       time.Duration
	Client      *http.Client
	Logger      *logger.Logger
}

// Fetcher retrieves month pages from the calendar endpoint
type Fetcher struct {
	client      *http.Client
	baseURL     *url.URL
	userAgent   string
	maxAttempts int
	delay       time.Duration
	log         *logger.Logger
}

// New creates a Fetcher
func New(opts Options) (*Fetcher, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", opts.BaseURL)
	}

	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	return &Fetcher{
		client:      opts.Client,
		baseURL:     base,
		userAgent:   opts.UserAgent,
		maxAttempts: opts.MaxAttempts,
		delay:       opts.Delay,
		log:         opts.Logger.With(logger.Fields{"component": "scraper"}),
	}, nil
}

// BaseURL returns the site root that relative links resolve against
func (f *Fetcher) BaseURL() *url.URL {
	u := *f.baseURL
	return &u
}

// FetchRange fetches the month containing from and the following months
// ahead months, and extracts every record found. Any month that still
// fails after retries fails the whole range.
func (f *Fetcher) FetchRange(ctx context.Context, from time.Time, ahead int) ([]event.RawRecord, error) {
	records := make([]event.RawRecord, 0)
	start := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location())

	for i := 0; i <= ahead; i++ {
		month := start.AddDate(0, i, 0)
		commands, err := f.FetchMonth(ctx, month.Year(), month.Month())
		if err != nil {
			return nil, err
		}

		found, err := Extract(commands, f.baseURL)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", month.Format("2006-01"), err)
		}
		f.log.Info("fetched month", logger.Fields{"month": month.Format("2006-01"), "records": len(found)})
		records = append(records, found...)
	}

	return records, nil
}

// FetchMonth requests one month of the calendar view
func (f *Fetcher) FetchMonth(ctx context.Context, year int, month time.Month) ([]Command, error) {
	monthArg := fmt.Sprintf("%04d-%02d", year, int(month))
	endpoint := f.baseURL.String() + ajaxPath

	var commands []Command
	attempts := 0
	operation := func() error {
		attempts++
		var err error
		commands, err = f.fetchOnce(ctx, endpoint, monthArg)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		f.log.Warn("fetch attempt failed", logger.Fields{
			"month":   monthArg,
			"attempt": attempts,
			"retry":   wait.String(),
			"error":   err.Error(),
		})
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.delay), uint64(f.maxAttempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, &FetchError{URL: endpoint, Month: monthArg, Attempts: attempts, Err: err}
	}
	return commands, nil
}

// fetchOnce posts the view form and falls back to GET when the POST is
// not answered with 200.
func (f *Fetcher) fetchOnce(ctx context.Context, endpoint, monthArg string) ([]Command, error) {
	form := f.form(monthArg)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	f.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting view form: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		drain(resp)
		f.log.Debug("POST rejected, retrying as GET", logger.Fields{"month": monthArg, "status": resp.StatusCode})

		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+form.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		f.setHeaders(req)

		resp, err = f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching view: %w", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") && !strings.Contains(contentType, "text/javascript") {
		return nil, fmt.Errorf("response is not JSON (Content-Type: %q): %s", contentType, snippet(body))
	}

	var commands []Command
	if err := json.Unmarshal(body, &commands); err != nil {
		return nil, fmt.Errorf("decoding response: %w: %s", err, snippet(body))
	}
	return commands, nil
}

func (f *Fetcher) form(monthArg string) url.Values {
	form := url.Values{}
	form.Set("view_name", "calendar_event")
	form.Set("view_display_id", "block_calendar_secondary")
	form.Set("view_args", monthArg)
	form.Set("view_path", "calendar-of-events-page")
	form.Set("view_base_path", "calendar-node-field-event-date/month")
	form.Set("view_dom_id", viewDOMID)
	form.Set("pager_element", "0")
	return form
}

func (f *Fetcher) setHeaders(req *http.Request) {
	origin := f.baseURL.Scheme + "://" + f.baseURL.Host
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", f.baseURL.String()+calendarPage)
	req.Header.Set("Origin", origin)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func snippet(body []byte) string {
	s := string(body)
	if len(s) > maxSnippet {
		s = s[:maxSnippet] + "..."
	}
	return s
}

// IsFetchError reports whether err is (or wraps) a FetchError
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
