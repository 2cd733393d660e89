package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dghubble/go-twitter/twitter" //nolint:staticcheck // Using stable v1.1 API
	"github.com/dghubble/oauth1"

	"github.com/galkatzh/JAMD-events/internal/event"
)

// DefaultTweetPause is the wait between consecutive posts
const DefaultTweetPause = 2 * time.Second

// TwitterCredentials are the OAuth1 user-context keys
type TwitterCredentials struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

// TwitterNotifier posts events to Twitter
type TwitterNotifier struct {
	client *twitter.Client
	format Formatter
	pause  time.Duration
}

// NewTwitterNotifier creates a Twitter notifier. All four credentials are
// required.
func NewTwitterNotifier(creds TwitterCredentials, f Formatter) (*TwitterNotifier, error) {
	if creds.APIKey == "" || creds.APISecret == "" || creds.AccessToken == "" || creds.AccessSecret == "" {
		return nil, errors.New("missing required Twitter credentials (TWITTER_API_KEY, TWITTER_API_SECRET, TWITTER_ACCESS_TOKEN, TWITTER_ACCESS_SECRET)")
	}

	config := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessSecret)
	httpClient := config.Client(oauth1.NoContext, token)

	return newTwitterNotifier(twitter.NewClient(httpClient), f), nil
}

func newTwitterNotifier(client *twitter.Client, f Formatter) *TwitterNotifier {
	return &TwitterNotifier{client: client, format: f, pause: DefaultTweetPause}
}

// Notify posts one tweet per event, stopping at the first failure
func (n *TwitterNotifier) Notify(ctx context.Context, events []*event.TrackedEvent) error {
	for i, evt := range events {
		if _, _, err := n.client.Statuses.Update(n.format.Tweet(evt), nil); err != nil {
			return fmt.Errorf("posting tweet for %s: %w", evt.UID, err)
		}

		// Rate limiting: wait between tweets
		if i < len(events)-1 && n.pause > 0 {
			select {
			case <-time.After(n.pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
