//go:build linux

// Package sinks implements notifbus.Sink adapters for real desktop
// notification backends.
package sinks

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/meridian-pim/meridian/internal/notifbus"
	"github.com/rs/zerolog"
)

const (
	notifDest = "org.freedesktop.Notifications"
	notifPath = "/org/freedesktop/Notifications"
)

// DBusSink talks to the freedesktop.org Notifications spec directly over
// the session bus, bypassing go-toast — the teacher's background.go
// toggles between this and the toast-library path with a useDirectDBus
// flag, so this mirrors that as a distinct Sink implementation.
type DBusSink struct {
	appName string
	conn    *dbus.Conn
	log     zerolog.Logger
}

// NewDBusSink connects to the session bus. Call Close when done.
func NewDBusSink(appName string) (*DBusSink, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("dbus: failed to open session bus: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dbus: auth failed: %w", err)
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dbus: hello failed: %w", err)
	}
	return &DBusSink{appName: appName, conn: conn, log: logging.WithComponent("notifbus-dbus")}, nil
}

func (s *DBusSink) Close() error { return s.conn.Close() }

var _ notifbus.Sink = (*DBusSink)(nil)

// Notify renders events as one notification per event, or a single
// aggregate notification when the caller passes more than one (the
// bus's batcher is what decides how many to pass at once).
func (s *DBusSink) Notify(ctx context.Context, events []notifbus.Event) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) == 1 {
		return s.push(summaryFor(events[0]), bodyFor(events[0]), events[0].Priority)
	}

	var lines []string
	maxPriority := notifbus.PriorityLow
	for _, ev := range events {
		lines = append(lines, bodyFor(ev))
		if ev.Priority > maxPriority {
			maxPriority = ev.Priority
		}
	}
	summary := fmt.Sprintf("%d new notifications", len(events))
	return s.push(summary, strings.Join(lines, "\n"), maxPriority)
}

func (s *DBusSink) push(summary, body string, priority notifbus.Priority) error {
	urgency := byte(1) // normal
	switch priority {
	case notifbus.PriorityCritical:
		urgency = 2
	case notifbus.PriorityLow:
		urgency = 0
	}

	obj := s.conn.Object(notifDest, dbus.ObjectPath(notifPath))
	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgency)}
	call := obj.Call(notifDest+".Notify", 0,
		s.appName, uint32(0), "", summary, body, []string{}, hints, int32(5000))
	if call.Err != nil {
		return fmt.Errorf("dbus: notify call failed: %w", call.Err)
	}
	return nil
}

func summaryFor(ev notifbus.Event) string {
	switch ev.Source {
	case notifbus.SourceEmail:
		return ev.Email.From
	case notifbus.SourceCalendar:
		return ev.Calendar.Title
	default:
		if ev.System != nil {
			return ev.System.Title
		}
		return "Meridian"
	}
}

func bodyFor(ev notifbus.Event) string {
	switch ev.Source {
	case notifbus.SourceEmail:
		return ev.Email.Subject
	case notifbus.SourceCalendar:
		return fmt.Sprintf("starts in %d min", ev.Calendar.MinutesOut)
	case notifbus.SourceSystem:
		if ev.Sync != nil {
			if ev.Sync.Err != nil {
				return fmt.Sprintf("sync failed: %v", ev.Sync.Err)
			}
			return fmt.Sprintf("synced: %d new, %d updated", ev.Sync.New, ev.Sync.Updated)
		}
		if ev.System != nil {
			return ev.System.Message
		}
	}
	return ""
}
