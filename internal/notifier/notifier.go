package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/galkatzh/JAMD-events/internal/config"
	"github.com/galkatzh/JAMD-events/internal/event"
)

// Notifier defines the interface for announcing new events
type Notifier interface {
	// Notify announces the given events in order
	Notify(ctx context.Context, events []*event.TrackedEvent) error
}

// Multi fans out to several notifiers. Every notifier is tried; the
// errors are joined.
type Multi []Notifier

// Notify calls each notifier in turn
func (m Multi) Notify(ctx context.Context, events []*event.TrackedEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the notifiers enabled in cfg. It returns nil when none
// is enabled. Dry run replaces the real channels rather than adding to them.
func FromConfig(cfg config.NotifyConfig, secrets config.Secrets, f Formatter, out io.Writer) (Notifier, error) {
	if cfg.DryRun {
		return NewDryRunNotifier(out, f), nil
	}

	var multi Multi
	if cfg.Twitter {
		tw, err := NewTwitterNotifier(TwitterCredentials{
			APIKey:       secrets.TwitterAPIKey,
			APISecret:    secrets.TwitterAPISecret,
			AccessToken:  secrets.TwitterAccessToken,
			AccessSecret: secrets.TwitterAccessSecret,
		}, f)
		if err != nil {
			return nil, fmt.Errorf("twitter: %w", err)
		}
		multi = append(multi, tw)
	}
	if cfg.Telegram.ChatID != "" {
		tg, err := NewTelegramNotifier(secrets.TelegramBotToken, cfg.Telegram.ChatID, f)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		multi = append(multi, tg)
	}

	switch len(multi) {
	case 0:
		return nil, nil
	case 1:
		return multi[0], nil
	}
	return multi, nil
}
