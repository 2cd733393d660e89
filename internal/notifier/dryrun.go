package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/galkatzh/JAMD-events/internal/event"
)

// DryRunNotifier prints what would be announced without posting anything
type DryRunNotifier struct {
	out    io.Writer
	format Formatter
}

// NewDryRunNotifier creates a dry-run notifier writing to out (stdout if nil)
func NewDryRunNotifier(out io.Writer, f Formatter) *DryRunNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &DryRunNotifier{out: out, format: f}
}

// Notify prints the messages that would be posted
func (n *DryRunNotifier) Notify(ctx context.Context, events []*event.TrackedEvent) error {
	for i, evt := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := n.format.Tweet(evt)
		fmt.Fprintf(n.out, "--- Announcement %d/%d ---\n", i+1, len(events))
		fmt.Fprintln(n.out, msg)
		fmt.Fprintf(n.out, "\n(Length: %d characters)\n\n", utf8.RuneCountInString(msg))
	}
	return nil
}
