package synccoord

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meridian-pim/meridian/internal/calendar"
	"github.com/meridian-pim/meridian/internal/database"
	"github.com/meridian-pim/meridian/internal/folder"
	"github.com/meridian-pim/meridian/internal/message"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) NotifySync(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) snapshot() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}

type stubMailTransport struct {
	delta *FolderDelta
	msgs  []*message.Message
	err   error
}

func (s *stubMailTransport) ReportFolderState(ctx context.Context, accountID, folderName string, knownUIDValidity uint32, knownUIDs []uint32) (*FolderDelta, error) {
	return s.delta, s.err
}

func (s *stubMailTransport) FetchMessages(ctx context.Context, accountID, folderName string, uids []uint32) ([]*message.Message, error) {
	return s.msgs, nil
}

func newTestMessageStore(t *testing.T) *message.Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(database.MessageMigrations); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return message.NewStore(db)
}

func newTestFolderStore(t *testing.T, db *database.DB) *folder.Store {
	t.Helper()
	s := folder.NewStore(db)
	if err := s.Upsert(&folder.Folder{AccountID: "acct-1", Name: "INBOX"}); err != nil {
		t.Fatalf("failed to seed folder: %v", err)
	}
	return s
}

func TestRunMailTaskDeliversNewMessages(t *testing.T) {
	msgDB, err := database.Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer msgDB.Close()
	if err := msgDB.Migrate(database.MessageMigrations); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	msgStore := message.NewStore(msgDB)
	folderStore := newTestFolderStore(t, msgDB)

	transport := &stubMailTransport{
		delta: &FolderDelta{NewUIDs: []uint32{1}},
		msgs: []*message.Message{
			{AccountID: "acct-1", Folder: "INBOX", IMAPUID: 1, Subject: "hi", Date: time.Now(), SyncVersion: 1},
		},
	}

	notifier := &recordingNotifier{}
	c := New(notifier)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	defer c.cancel()
	c.AddMailTask("acct-1", "INBOX", time.Hour, transport, msgStore, folderStore)

	c.mu.Lock()
	task := c.mailTasks[mailKey{"acct-1", "INBOX"}]
	c.mu.Unlock()
	c.runMailTask(task)

	events := notifier.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 events (started, completed), got %d", len(events))
	}
	if events[0].Kind != EventStarted || events[1].Kind != EventCompleted {
		t.Fatalf("unexpected event sequence: %+v", events)
	}
	if events[1].New != 1 {
		t.Fatalf("expected 1 new message reported, got %d", events[1].New)
	}

	got, err := msgStore.GetMessages("acct-1", "INBOX", 10)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(got) != 1 || got[0].Subject != "hi" {
		t.Fatalf("message was not stored: %+v", got)
	}
}

type stubCalendarTransport struct {
	events    []*calendar.Event
	nextToken string
	err       error
}

func (s *stubCalendarTransport) PullEvents(ctx context.Context, calendarID, syncToken string) ([]*calendar.Event, string, error) {
	return s.events, s.nextToken, s.err
}

func newTestCalendarStore(t *testing.T) *calendar.Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "calendars.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(database.CalendarMigrations); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	s := calendar.NewStore(db)
	if err := s.StoreCalendar(&calendar.Calendar{ID: "cal-1", Name: "Personal"}); err != nil {
		t.Fatalf("failed to seed calendar: %v", err)
	}
	return s
}

func TestRunCalendarTaskStoresNewEvent(t *testing.T) {
	store := newTestCalendarStore(t)
	transport := &stubCalendarTransport{
		events: []*calendar.Event{
			{
				UID:        "evt-1",
				CalendarID: "cal-1",
				Title:      "Standup",
				StartAt:    time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
				EndAt:      time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC),
			},
		},
		nextToken: "token-2",
	}

	notifier := &recordingNotifier{}
	c := New(notifier)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	defer c.cancel()
	c.AddCalendarTask("cal-1", time.Hour, transport, store)

	c.mu.Lock()
	task := c.calTasks["cal-1"]
	c.mu.Unlock()
	c.runCalendarTask(task)

	events := notifier.snapshot()
	if len(events) != 2 || events[1].New != 1 {
		t.Fatalf("unexpected notifications: %+v", events)
	}
	if task.syncToken != "token-2" {
		t.Fatalf("sync token not advanced: %q", task.syncToken)
	}

	stored, err := store.GetEventByUID("evt-1")
	if err != nil || stored == nil {
		t.Fatalf("event not stored: %v", err)
	}
}

func TestRunMailTaskAssignsThreadID(t *testing.T) {
	msgDB, err := database.Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer msgDB.Close()
	if err := msgDB.Migrate(database.MessageMigrations); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	msgStore := message.NewStore(msgDB)
	folderStore := newTestFolderStore(t, msgDB)

	root := &message.Message{
		AccountID: "acct-1", Folder: "INBOX", IMAPUID: 1,
		MessageID: "root@example.com", Subject: "hi", Date: time.Now(), SyncVersion: 1,
	}
	reply := &message.Message{
		AccountID: "acct-1", Folder: "INBOX", IMAPUID: 2,
		MessageID: "reply@example.com", InReplyTo: "root@example.com",
		Subject: "Re: hi", Date: time.Now(), SyncVersion: 1,
	}

	notifier := &recordingNotifier{}
	c := New(notifier)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	defer c.cancel()

	transport := &stubMailTransport{delta: &FolderDelta{NewUIDs: []uint32{1}}, msgs: []*message.Message{root}}
	c.AddMailTask("acct-1", "INBOX", time.Hour, transport, msgStore, folderStore)
	c.mu.Lock()
	task := c.mailTasks[mailKey{"acct-1", "INBOX"}]
	c.mu.Unlock()
	c.runMailTask(task)

	stored, err := msgStore.GetMessages("acct-1", "INBOX", 10)
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected root message stored, got %v (err %v)", stored, err)
	}
	if stored[0].ThreadID == "" {
		t.Fatalf("expected root message to be assigned a thread id")
	}
	rootThreadID := stored[0].ThreadID

	c.mu.Lock()
	task.transport = &stubMailTransport{delta: &FolderDelta{NewUIDs: []uint32{2}}, msgs: []*message.Message{reply}}
	task.forced = true
	c.mu.Unlock()
	c.runMailTask(task)

	stored, err = msgStore.GetMessages("acct-1", "INBOX", 10)
	if err != nil || len(stored) != 2 {
		t.Fatalf("expected 2 messages stored, got %v (err %v)", stored, err)
	}
	var replyStored *message.Message
	for _, m := range stored {
		if m.IMAPUID == 2 {
			replyStored = m
		}
	}
	if replyStored == nil {
		t.Fatalf("reply message not found among stored messages")
	}
	if replyStored.ThreadID != rootThreadID {
		t.Fatalf("expected reply to inherit root's thread id %q, got %q", rootThreadID, replyStored.ThreadID)
	}
}

func TestForceMailSyncPreemptsSchedule(t *testing.T) {
	msgStore := newTestMessageStore(t)
	msgDB, err := database.Open(filepath.Join(t.TempDir(), "messages2.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer msgDB.Close()
	if err := msgDB.Migrate(database.MessageMigrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	folderStore := newTestFolderStore(t, msgDB)

	transport := &stubMailTransport{delta: &FolderDelta{}}
	c := New(nil)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	defer c.cancel()
	c.AddMailTask("acct-1", "INBOX", time.Hour, transport, msgStore, folderStore)

	c.mu.Lock()
	task := c.mailTasks[mailKey{"acct-1", "INBOX"}]
	task.lastRun = time.Now()
	before := task.lastRun
	due := task.dueLocked()
	c.mu.Unlock()
	if due {
		t.Fatalf("task should not be due immediately after a run")
	}

	c.ForceMailSync("acct-1", "INBOX")
	time.Sleep(50 * time.Millisecond)

	c.mu.Lock()
	ran := task.lastRun.After(before)
	c.mu.Unlock()
	if !ran {
		t.Fatalf("forced sync did not run the task ahead of its interval")
	}
}
