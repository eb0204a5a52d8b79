// Package notifbus implements the Notification Bus (spec §4.7): a single
// typed, multi-producer broadcast stream with independent per-receiver
// channels, priority derivation, quiet hours, and desktop-sink batching.
package notifbus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/meridian-pim/meridian/internal/calendar"
	"github.com/meridian-pim/meridian/internal/config"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/meridian-pim/meridian/internal/message"
	"github.com/meridian-pim/meridian/internal/synccoord"
)

// Priority is the bus-wide severity an Event carries, per spec §4.7.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Normal"
	}
}

func parsePriority(s string) Priority {
	switch strings.ToLower(s) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// Source tags which producer an Event came from.
type Source int

const (
	SourceEmail Source = iota
	SourceCalendar
	SourceSystem
)

// Event is the bus's single tagged-variant payload shape: exactly one of
// Email/Calendar/Sync/System is populated, selected by Source.
type Event struct {
	Source   Source
	Priority Priority
	Time     time.Time

	Email    *EmailPayload
	Calendar *CalendarPayload
	Sync     *SyncPayload
	System   *SystemPayload
}

// EmailPayload is the payload for a new-message notification.
type EmailPayload struct {
	AccountID string
	Folder    string
	MessageID string
	From      string
	Subject   string
	Preview   string
}

// CalendarPayload is the payload for an event-reminder notification.
type CalendarPayload struct {
	CalendarID string
	EventUID   string
	Title      string
	StartAt    time.Time
	MinutesOut int
}

// SyncPayload is the payload for a Sync Coordinator lifecycle event.
type SyncPayload struct {
	AccountID  string
	Folder     string
	CalendarID string
	Kind       synccoord.EventKind
	New        int
	Updated    int
	Err        error
}

// SystemPayload carries any other process-level event (startup, shutdown,
// disk-full warnings, ...).
type SystemPayload struct {
	Title   string
	Message string
}

// Sink is anything the bus can hand batched-or-single events to for
// display — a desktop toast, a dbus notifier, a log sink.
type Sink interface {
	Notify(ctx context.Context, events []Event) error
}

const (
	defaultReceiverBuffer = 32
)

// Bus fans Events out to independent receivers. A slow receiver never
// blocks producers or other receivers: the bus drops events to it and
// tracks a running dropped counter, per spec §6.
type Bus struct {
	mu   sync.RWMutex
	cfg  config.Notifications
	log  zerolog.Logger
	subs map[int]*subscription

	nextID int

	vip      map[string]struct{}
	keywords []string

	quietHoursFn func() bool // overridable in tests; defaults to wall-clock check

	batchers []*batcher
}

type subscription struct {
	ch      chan Event
	dropped uint64
}

var _ synccoord.Notifier = (*Bus)(nil)

// New builds a Bus from the static notification configuration.
func New(cfg config.Notifications) *Bus {
	vip := make(map[string]struct{}, len(cfg.VIPSenders))
	for _, addr := range cfg.VIPSenders {
		vip[strings.ToLower(addr)] = struct{}{}
	}

	b := &Bus{
		cfg:      cfg,
		log:      logging.WithComponent("notifbus"),
		subs:     make(map[int]*subscription),
		vip:      vip,
		keywords: cfg.PriorityWords,
	}
	b.quietHoursFn = b.inQuietHoursNow
	return b
}

// Subscribe returns a receive-only channel fed every published Event, and
// a function to unsubscribe and release it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscription{ch: make(chan Event, defaultReceiverBuffer)}
	b.subs[id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	return sub.ch, unsubscribe
}

// AddSink registers a desktop sink, batched with the shared config's
// window and max-per-batch (a window of 0 disables batching; a max of 0
// or less is treated as 1).
func (b *Bus) AddSink(ctx context.Context, sink Sink) {
	window := time.Duration(b.cfg.Batching.WindowSeconds) * time.Second
	max := b.cfg.Batching.MaxPerBatch
	if max <= 0 {
		max = 1
	}

	bat := newBatcher(sink, window, max, b.log)
	b.mu.Lock()
	b.batchers = append(b.batchers, bat)
	b.mu.Unlock()
	bat.start(ctx)
}

// publish is the single internal fan-out point every producer-facing
// method funnels through.
func (b *Bus) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			b.log.Warn().Uint64("dropped", sub.dropped).Msg("notification receiver too slow, dropping event")
		}
	}

	if !b.desktopEligible(ev) {
		return
	}
	for _, bat := range b.batchers {
		bat.offer(ev)
	}
}

// desktopEligible applies spec §4.7's policy gate: below min_priority is
// always suppressed; during quiet hours only High/Critical survive.
func (b *Bus) desktopEligible(ev Event) bool {
	if !b.cfg.Enabled {
		return false
	}
	min := parsePriority(b.cfg.MinPriority)
	if ev.Priority < min {
		return false
	}
	if b.quietHoursFn() && ev.Priority < PriorityHigh {
		return false
	}
	return true
}

func (b *Bus) inQuietHoursNow() bool {
	qh := b.cfg.QuietHours
	if qh.StartHour == qh.EndHour {
		return false
	}
	now := time.Now()
	if qh.WeekendsOnly {
		wd := now.Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			return false
		}
	}
	h := now.Hour()
	if qh.StartHour < qh.EndHour {
		return h >= qh.StartHour && h < qh.EndHour
	}
	// Wraps past midnight, e.g. 22 -> 7.
	return h >= qh.StartHour || h < qh.EndHour
}

// NotifyMessage derives priority for a newly-stored message and
// publishes it, per spec §4.7's email derivation rules.
func (b *Bus) NotifyMessage(m *message.Message) {
	b.publish(Event{
		Source:   SourceEmail,
		Priority: b.emailPriority(m),
		Email: &EmailPayload{
			AccountID: m.AccountID,
			Folder:    m.Folder,
			MessageID: m.MessageID,
			From:      m.FromEmail,
			Subject:   m.Subject,
			Preview:   preview(m.BodyText),
		},
	})
}

func (b *Bus) emailPriority(m *message.Message) Priority {
	if _, ok := b.vip[strings.ToLower(m.FromEmail)]; ok {
		return PriorityHigh
	}
	haystack := strings.ToLower(m.Subject + " " + m.BodyText)
	if lo.SomeBy(b.keywords, func(kw string) bool {
		return kw != "" && strings.Contains(haystack, strings.ToLower(kw))
	}) {
		return PriorityHigh
	}
	return PriorityNormal
}

func preview(body string) string {
	const maxLen = 140
	body = strings.TrimSpace(body)
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "…"
}

// NotifyReminder derives priority for an upcoming event reminder: ≤5 min
// is Critical, ≤15 min High, else Normal (spec §4.7).
func (b *Bus) NotifyReminder(ev *calendar.Event, minutesOut int) {
	var p Priority
	switch {
	case minutesOut <= 5:
		p = PriorityCritical
	case minutesOut <= 15:
		p = PriorityHigh
	default:
		p = PriorityNormal
	}

	b.publish(Event{
		Source:   SourceCalendar,
		Priority: p,
		Calendar: &CalendarPayload{
			CalendarID: ev.CalendarID,
			EventUID:   ev.UID,
			Title:      ev.Title,
			StartAt:    ev.StartAt,
			MinutesOut: minutesOut,
		},
	})
}

// NotifySync implements synccoord.Notifier: sync failure is High, a
// completion that added/updated items is Normal, an idle completion is
// Low (spec §4.7).
func (b *Bus) NotifySync(ev synccoord.Event) {
	priority := PriorityLow
	switch ev.Kind {
	case synccoord.EventFailed:
		priority = PriorityHigh
	case synccoord.EventCompleted:
		if ev.New > 0 || ev.Updated > 0 {
			priority = PriorityNormal
		}
	}

	b.publish(Event{
		Source:   SourceSystem,
		Priority: priority,
		Sync: &SyncPayload{
			AccountID:  ev.AccountID,
			Folder:     ev.Folder,
			CalendarID: ev.CalendarID,
			Kind:       ev.Kind,
			New:        ev.New,
			Updated:    ev.Updated,
			Err:        ev.Err,
		},
	})
}

// NotifySystem publishes an arbitrary system-level event at the given
// priority.
func (b *Bus) NotifySystem(title, msg string, priority Priority) {
	b.publish(Event{
		Source:   SourceSystem,
		Priority: priority,
		System:   &SystemPayload{Title: title, Message: msg},
	})
}
