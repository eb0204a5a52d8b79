package sinks

import (
	"context"
	"fmt"
	"strings"

	toast "git.sr.ht/~jackmordaunt/go-toast/v2"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/meridian-pim/meridian/internal/notifbus"
	"github.com/rs/zerolog"
)

// ToastSink renders notifications through go-toast/v2, the library the
// teacher's Windows notifier builds on (its wintoast subpackage); here
// it's pointed at the library's default cross-platform path instead.
type ToastSink struct {
	appID string
	log   zerolog.Logger
}

// NewToastSink builds a Sink that pushes through go-toast.
func NewToastSink(appID string) *ToastSink {
	return &ToastSink{appID: appID, log: logging.WithComponent("notifbus-toast")}
}

var _ notifbus.Sink = (*ToastSink)(nil)

func (s *ToastSink) Notify(ctx context.Context, events []notifbus.Event) error {
	if len(events) == 0 {
		return nil
	}

	title, body := s.render(events)
	n := toast.Notification{
		AppID: s.appID,
		Title: title,
		Body:  body,
	}
	if err := n.Push(); err != nil {
		return fmt.Errorf("toast: push failed: %w", err)
	}
	return nil
}

func (s *ToastSink) render(events []notifbus.Event) (title, body string) {
	if len(events) == 1 {
		return summaryFor(events[0]), bodyFor(events[0])
	}

	var lines []string
	for _, ev := range events {
		lines = append(lines, fmt.Sprintf("%s — %s", summaryFor(ev), bodyFor(ev)))
	}
	return fmt.Sprintf("%d new notifications", len(events)), strings.Join(lines, "\n")
}
