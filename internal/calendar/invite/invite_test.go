package invite

import (
	"path/filepath"
	"testing"

	"github.com/meridian-pim/meridian/internal/calendar"
	"github.com/meridian-pim/meridian/internal/database"
	"github.com/meridian-pim/meridian/internal/message"
)

func newTestProcessor(t *testing.T) (*Processor, *calendar.Store) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "calendars.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(database.CalendarMigrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := calendar.NewStore(db)
	if err := store.StoreCalendar(&calendar.Calendar{ID: "cal-1", Name: "Personal"}); err != nil {
		t.Fatalf("seed calendar: %v", err)
	}
	return NewProcessor(store, []string{"alice@example.com"}, "cal-1"), store
}

const requestICS = `BEGIN:VCALENDAR
METHOD:REQUEST
BEGIN:VEVENT
UID:evt-1@example.com
DTSTART:20260301T090000Z
DTEND:20260301T093000Z
SUMMARY:Kickoff
SEQUENCE:0
ATTENDEE;PARTSTAT=NEEDS-ACTION:mailto:alice@example.com
END:VEVENT
END:VCALENDAR
`

const replyICS = `BEGIN:VCALENDAR
METHOD:REPLY
BEGIN:VEVENT
UID:evt-1@example.com
DTSTART:20260301T090000Z
DTEND:20260301T093000Z
SUMMARY:Kickoff
SEQUENCE:0
ATTENDEE;PARTSTAT=ACCEPTED:mailto:alice@example.com
END:VEVENT
END:VCALENDAR
`

func TestProcessRequestCreatesEvent(t *testing.T) {
	p, store := newTestProcessor(t)
	m := &message.Message{BodyText: requestICS}

	result, err := p.Process(m)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !result.Processed {
		t.Fatal("expected message to be processed as an invitation")
	}

	ev, err := store.GetEventByUID("evt-1@example.com")
	if err != nil || ev == nil {
		t.Fatalf("expected event stored, got %+v err=%v", ev, err)
	}
	invited, status := p.IsUserInvited(ev)
	if !invited || status != calendar.PartStatNeedsAction {
		t.Fatalf("expected alice invited with needs-action, got invited=%v status=%v", invited, status)
	}
}

func TestProcessReplyUpdatesPartStatOnly(t *testing.T) {
	p, store := newTestProcessor(t)
	if _, err := p.Process(&message.Message{BodyText: requestICS}); err != nil {
		t.Fatalf("initial request failed: %v", err)
	}

	if _, err := p.Process(&message.Message{BodyText: replyICS}); err != nil {
		t.Fatalf("reply failed: %v", err)
	}

	ev, err := store.GetEventByUID("evt-1@example.com")
	if err != nil || ev == nil {
		t.Fatalf("expected event present, got %+v err=%v", ev, err)
	}
	if ev.Title != "Kickoff" {
		t.Fatalf("expected title unchanged by REPLY, got %q", ev.Title)
	}
	_, status := p.IsUserInvited(ev)
	if status != calendar.PartStatAccepted {
		t.Fatalf("expected partstat updated to accepted, got %v", status)
	}
}

func TestProcessIgnoresMessageWithoutInvite(t *testing.T) {
	p, _ := newTestProcessor(t)
	result, err := p.Process(&message.Message{BodyText: "just a normal email"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Processed {
		t.Fatal("expected non-invitation message to be skipped")
	}
}
