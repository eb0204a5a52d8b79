package message

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-pim/meridian/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(database.MessageMigrations); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO accounts (id, name, email) VALUES ('acct-1', 'Test', 't@example.com')`); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return NewStore(db)
}

func TestStoreMessageInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	m := &Message{
		AccountID: "acct-1",
		Folder:    "INBOX",
		IMAPUID:   1,
		Subject:   "hello",
		FromEmail: "a@example.com",
		Date:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		BodyText:  "body text",
	}
	if err := s.StoreMessage(m); err != nil {
		t.Fatalf("StoreMessage failed: %v", err)
	}
	if m.SyncVersion != 1 {
		t.Fatalf("expected sync version 1 on insert, got %d", m.SyncVersion)
	}

	got, err := s.GetMessage(m.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got == nil || got.Subject != "hello" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestStoreMessageUpsertByUID(t *testing.T) {
	s := newTestStore(t)
	m := &Message{AccountID: "acct-1", Folder: "INBOX", IMAPUID: 5, Subject: "v1", FromEmail: "a@example.com", Date: time.Now()}
	if err := s.StoreMessage(m); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	firstID := m.ID

	updated := &Message{AccountID: "acct-1", Folder: "INBOX", IMAPUID: 5, Subject: "v2", FromEmail: "a@example.com", Date: time.Now()}
	if err := s.StoreMessage(updated); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.ID != firstID {
		t.Fatalf("expected upsert to reuse id %q, got %q", firstID, updated.ID)
	}
	if updated.SyncVersion != 2 {
		t.Fatalf("expected sync version bumped to 2, got %d", updated.SyncVersion)
	}

	got, err := s.GetMessage(firstID)
	if err != nil || got.Subject != "v2" {
		t.Fatalf("expected subject v2 after upsert, got %+v err=%v", got, err)
	}
}

func TestSearchExcludesDeleted(t *testing.T) {
	s := newTestStore(t)
	m1 := &Message{AccountID: "acct-1", Folder: "INBOX", IMAPUID: 1, Subject: "quarterly report", FromEmail: "a@example.com", Date: time.Now()}
	m2 := &Message{AccountID: "acct-1", Folder: "INBOX", IMAPUID: 2, Subject: "quarterly numbers", FromEmail: "b@example.com", Date: time.Now(), IsDeleted: true}
	if err := s.StoreMessage(m1); err != nil {
		t.Fatalf("store m1: %v", err)
	}
	if err := s.StoreMessage(m2); err != nil {
		t.Fatalf("store m2: %v", err)
	}

	results, err := s.Search("acct-1", "quarterly", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Message.ID != m1.ID {
		t.Fatalf("expected only non-deleted m1 in search results, got %+v", results)
	}
}

func TestGetMessagesPaginatedStableOrder(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := uint32(1); i <= 5; i++ {
		m := &Message{AccountID: "acct-1", Folder: "INBOX", IMAPUID: i, Subject: "msg", FromEmail: "a@example.com", Date: base.Add(time.Duration(i) * time.Hour)}
		if err := s.StoreMessage(m); err != nil {
			t.Fatalf("store message %d: %v", i, err)
		}
	}

	page, err := s.GetMessagesPaginated("acct-1", "INBOX", 2, 0)
	if err != nil {
		t.Fatalf("GetMessagesPaginated failed: %v", err)
	}
	if len(page.Messages) != 2 || !page.HasMore {
		t.Fatalf("expected page of 2 with more remaining, got %d hasMore=%v", len(page.Messages), page.HasMore)
	}
	if page.Messages[0].IMAPUID != 5 {
		t.Fatalf("expected newest-first ordering, got uid %d first", page.Messages[0].IMAPUID)
	}
}

func TestDeleteMessageSoftDeletes(t *testing.T) {
	s := newTestStore(t)
	m := &Message{AccountID: "acct-1", Folder: "INBOX", IMAPUID: 9, Subject: "bye", FromEmail: "a@example.com", Date: time.Now()}
	if err := s.StoreMessage(m); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := s.DeleteMessage("acct-1", "INBOX", 9); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}
	got, err := s.GetMessage(m.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got == nil || !got.IsDeleted {
		t.Fatalf("expected message to remain retrievable with is_deleted set, got %+v", got)
	}
	count, err := s.CountByFolder("acct-1", "INBOX")
	if err != nil {
		t.Fatalf("CountByFolder failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected deleted message excluded from count, got %d", count)
	}
}

func TestSearchRangeHalfOpenInterval(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{0, time.Hour, 2 * time.Hour} {
		m := &Message{AccountID: "acct-1", Folder: "INBOX", IMAPUID: uint32(i + 1), Subject: "x", FromEmail: "a@example.com", Date: base.Add(offset)}
		if err := s.StoreMessage(m); err != nil {
			t.Fatalf("store: %v", err)
		}
	}
	results, err := s.SearchRange("acct-1", "INBOX", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("SearchRange failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected half-open interval to include only the first message, got %d", len(results))
	}
}
