package notifbus

import (
	"testing"

	"github.com/meridian-pim/meridian/internal/calendar"
	"github.com/meridian-pim/meridian/internal/config"
	"github.com/meridian-pim/meridian/internal/message"
	"github.com/meridian-pim/meridian/internal/synccoord"
)

func testBus() *Bus {
	cfg := config.Notifications{
		Enabled:       true,
		MinPriority:   "Low",
		VIPSenders:    []string{"Boss@Example.com"},
		PriorityWords: []string{"urgent"},
		Batching:      config.BatchingConfig{WindowSeconds: 30, MaxPerBatch: 5},
	}
	return New(cfg)
}

func TestEmailPriorityVIP(t *testing.T) {
	b := testBus()
	m := &message.Message{FromEmail: "boss@example.com", Subject: "hi"}
	if got := b.emailPriority(m); got != PriorityHigh {
		t.Fatalf("expected High for VIP sender, got %v", got)
	}
}

func TestEmailPriorityKeyword(t *testing.T) {
	b := testBus()
	m := &message.Message{FromEmail: "nobody@example.com", Subject: "URGENT: pay now"}
	if got := b.emailPriority(m); got != PriorityHigh {
		t.Fatalf("expected High for keyword match, got %v", got)
	}
}

func TestEmailPriorityNotDoublyPromoted(t *testing.T) {
	b := testBus()
	m := &message.Message{FromEmail: "boss@example.com", Subject: "URGENT: pay now"}
	if got := b.emailPriority(m); got != PriorityHigh {
		t.Fatalf("expected High, got %v", got)
	}
}

func TestEmailPriorityDefault(t *testing.T) {
	b := testBus()
	m := &message.Message{FromEmail: "nobody@example.com", Subject: "status update"}
	if got := b.emailPriority(m); got != PriorityNormal {
		t.Fatalf("expected Normal, got %v", got)
	}
}

func TestReminderPriorityThresholds(t *testing.T) {
	b := testBus()
	recv, unsub := b.Subscribe()
	defer unsub()

	cases := []struct {
		minutes int
		want    Priority
	}{
		{5, PriorityCritical},
		{15, PriorityHigh},
		{16, PriorityNormal},
	}
	for _, tc := range cases {
		b.NotifyReminder(&calendar.Event{UID: "u1"}, tc.minutes)
		ev := <-recv
		if ev.Priority != tc.want {
			t.Fatalf("minutes=%d: expected %v, got %v", tc.minutes, tc.want, ev.Priority)
		}
	}
}

func TestNotifySyncPriority(t *testing.T) {
	b := testBus()
	recv, unsub := b.Subscribe()
	defer unsub()

	b.NotifySync(synccoord.Event{Kind: synccoord.EventFailed})
	if ev := <-recv; ev.Priority != PriorityHigh {
		t.Fatalf("expected failed sync to be High, got %v", ev.Priority)
	}

	b.NotifySync(synccoord.Event{Kind: synccoord.EventCompleted, New: 3})
	if ev := <-recv; ev.Priority != PriorityNormal {
		t.Fatalf("expected completion with new items to be Normal, got %v", ev.Priority)
	}

	b.NotifySync(synccoord.Event{Kind: synccoord.EventCompleted})
	if ev := <-recv; ev.Priority != PriorityLow {
		t.Fatalf("expected idle completion to be Low, got %v", ev.Priority)
	}
}

func TestSlowReceiverDropsInsteadOfBlocking(t *testing.T) {
	b := testBus()
	recv, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < defaultReceiverBuffer+5; i++ {
		b.NotifySystem("t", "m", PriorityLow)
	}

	b.mu.RLock()
	var sub *subscription
	for _, s := range b.subs {
		sub = s
	}
	dropped := sub.dropped
	b.mu.RUnlock()

	if dropped == 0 {
		t.Fatalf("expected some events to be dropped for an unread receiver")
	}
	<-recv // drain one to prove the channel still delivers
}

func TestQuietHoursSuppressesBelowHigh(t *testing.T) {
	b := testBus()
	b.quietHoursFn = func() bool { return true }

	if b.desktopEligible(Event{Priority: PriorityNormal}) {
		t.Fatalf("expected Normal priority to be suppressed during quiet hours")
	}
	if !b.desktopEligible(Event{Priority: PriorityHigh}) {
		t.Fatalf("expected High priority to survive quiet hours")
	}
}

func TestMinPriorityGate(t *testing.T) {
	b := testBus()
	b.cfg.MinPriority = "High"

	if b.desktopEligible(Event{Priority: PriorityNormal}) {
		t.Fatalf("expected Normal to be suppressed below min_priority High")
	}
	if !b.desktopEligible(Event{Priority: PriorityHigh}) {
		t.Fatalf("expected High to pass the gate")
	}
}
