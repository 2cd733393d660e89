package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/galkatzh/JAMD-events/internal/event"
)

// maxTweetRunes is Twitter's length limit
const maxTweetRunes = 280

const dateLayout = "Mon 2 Jan 2006, 15:04"

// Formatter renders events as announcement text in a fixed timezone
type Formatter struct {
	Location *time.Location
}

func (f Formatter) when(evt *event.TrackedEvent) string {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return evt.Start.In(loc).Format(dateLayout)
}

// Tweet formats an event as plain text within the tweet limit
func (f Formatter) Tweet(evt *event.TrackedEvent) string {
	var b strings.Builder
	b.WriteString("🎵 New JAMD event!\n\n")
	b.WriteString(evt.Title + "\n")
	fmt.Fprintf(&b, "📅 %s\n", f.when(evt))
	if evt.Location != "" {
		fmt.Fprintf(&b, "📍 %s\n", evt.Location)
	}
	if evt.Link != "" {
		fmt.Fprintf(&b, "\n🔗 %s", evt.Link)
	}

	return truncate(strings.TrimRight(b.String(), "\n"), maxTweetRunes)
}

// TelegramHTML formats an event for Telegram's HTML parse mode
func (f Formatter) TelegramHTML(evt *event.TrackedEvent) string {
	var b strings.Builder
	b.WriteString("🎵 <b>New JAMD event</b>\n\n")
	if evt.Link != "" {
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>\n", html.EscapeString(evt.Link), html.EscapeString(evt.Title))
	} else {
		fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(evt.Title))
	}
	fmt.Fprintf(&b, "📅 %s\n", f.when(evt))
	if evt.Location != "" {
		fmt.Fprintf(&b, "📍 %s\n", html.EscapeString(evt.Location))
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncate cuts s to at most limit runes, ending in "..." when cut
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}
