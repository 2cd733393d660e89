package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/galkatzh/JAMD-events/internal/logger"
	"github.com/galkatzh/JAMD-events/internal/storage"
)

const (
	DefaultPath         = "~/.config/jamd-events/config.yaml"
	DefaultDataDir      = "~/.local/share/jamd-events"
	DefaultLedgerFile   = "events.json"
	DefaultCalendarFile = "events.ics"
	DefaultTimezone     = "Asia/Jerusalem"

	DefaultBaseURL     = "https://www.jamd.ac.il"
	DefaultMonthsAhead = 12
	DefaultTimeout     = 10 * time.Second
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second

	DefaultCalendarName  = "JAMD Events"
	DefaultProductID     = "-//JAMD Calendar Scraper//EN"
	DefaultUIDDomain     = "jamd.ac.il"
	DefaultEventDuration = time.Hour
)

// SourceConfig describes the calendar endpoint
type SourceConfig struct {
	BaseURL     string        `yaml:"base_url"`
	MonthsAhead int           `yaml:"months_ahead"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
}

// RetryConfig bounds the fetcher's attempts per month
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// CalendarConfig controls the generated calendar feed
type CalendarConfig struct {
	Name          string        `yaml:"name"`
	ProductID     string        `yaml:"product_id"`
	UIDDomain     string        `yaml:"uid_domain"`
	EventDuration time.Duration `yaml:"event_duration"`
}

// TelegramConfig selects the chat new events are announced to
type TelegramConfig struct {
	ChatID string `yaml:"chat_id"`
}

// NotifyConfig selects how new events are announced. With nothing set,
// no announcements are made.
type NotifyConfig struct {
	DryRun   bool           `yaml:"dry_run"`
	Twitter  bool           `yaml:"twitter"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// Enabled reports whether any notifier is configured
func (n NotifyConfig) Enabled() bool {
	return n.DryRun || n.Twitter || n.Telegram.ChatID != ""
}

// Config is the top-level application configuration
type Config struct {
	DataDir      string `yaml:"data_dir"`
	LedgerFile   string `yaml:"ledger_file"`
	CalendarFile string `yaml:"calendar_file"`
	Timezone     string `yaml:"timezone"`
	LogLevel     string `yaml:"log_level"`

	Source   SourceConfig   `yaml:"source"`
	Retry    RetryConfig    `yaml:"retry"`
	Calendar CalendarConfig `yaml:"calendar"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills zero values with defaults so partial files behave
func (c *Config) Normalize() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.LedgerFile == "" {
		c.LedgerFile = DefaultLedgerFile
	}
	if c.CalendarFile == "" {
		c.CalendarFile = DefaultCalendarFile
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = strings.ToLower(string(logger.LevelInfo))
	}

	if c.Source.BaseURL == "" {
		c.Source.BaseURL = DefaultBaseURL
	}
	if c.Source.MonthsAhead <= 0 {
		c.Source.MonthsAhead = DefaultMonthsAhead
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = DefaultTimeout
	}
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = DefaultUserAgent
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.Delay < 0 {
		c.Retry.Delay = 0
	}
	if c.Retry.Delay == 0 {
		c.Retry.Delay = DefaultRetryDelay
	}

	if c.Calendar.Name == "" {
		c.Calendar.Name = DefaultCalendarName
	}
	if c.Calendar.ProductID == "" {
		c.Calendar.ProductID = DefaultProductID
	}
	if c.Calendar.UIDDomain == "" {
		c.Calendar.UIDDomain = DefaultUIDDomain
	}
	if c.Calendar.EventDuration <= 0 {
		c.Calendar.EventDuration = DefaultEventDuration
	}
}

// Validate checks values Normalize cannot repair
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.base_url %q must be an absolute URL", c.Source.BaseURL)
	}
	return nil
}

// Location resolves the configured IANA timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads the YAML file at path. A missing file yields Default(); a
// malformed one is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	path, err := storage.ExpandHome(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Secrets holds credentials taken from the environment
type Secrets struct {
	TwitterAPIKey       string
	TwitterAPISecret    string
	TwitterAccessToken  string
	TwitterAccessSecret string
	TelegramBotToken    string
}

// SecretsFromEnv reads credentials through getenv (os.Getenv in production)
func SecretsFromEnv(getenv func(string) string) Secrets {
	return Secrets{
		TwitterAPIKey:       getenv("TWITTER_API_KEY"),
		TwitterAPISecret:    getenv("TWITTER_API_SECRET"),
		TwitterAccessToken:  getenv("TWITTER_ACCESS_TOKEN"),
		TwitterAccessSecret: getenv("TWITTER_ACCESS_SECRET"),
		TelegramBotToken:    getenv("TELEGRAM_BOT_TOKEN"),
	}
}
