package account

import (
	"path/filepath"
	"testing"

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
	return NewStore(db)
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	a := &Account{Name: "Work", Email: "me@example.com", TransportKind: TransportIMAP, Enabled: true}
	if err := s.Create(a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if a.ID == "" {
		t.Fatalf("expected Create to assign an id")
	}

	got, err := s.Get(a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.Email != "me@example.com" || got.TransportKind != TransportIMAP {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	s := newTestStore(t)
	a := &Account{ID: "acct-1", Name: "Work", Email: "me@example.com", TransportKind: TransportIMAP, Enabled: true}
	if err := s.Upsert(a); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}

	updated := &Account{ID: "acct-1", Name: "Work (renamed)", Email: "me@example.com", TransportKind: TransportIMAP, Enabled: false, OrderIndex: 2}
	if err := s.Upsert(updated); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	got, err := s.Get("acct-1")
	if err != nil || got == nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "Work (renamed)" || got.Enabled || got.OrderIndex != 2 {
		t.Fatalf("upsert did not update in place: %+v", got)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 account after upsert, got %d", len(list))
	}
}

func TestSetEnabled(t *testing.T) {
	s := newTestStore(t)
	a := &Account{ID: "acct-1", Name: "Work", Email: "me@example.com", TransportKind: TransportIMAP, Enabled: true}
	if err := s.Create(a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := s.SetEnabled("acct-1", false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}

	got, err := s.Get("acct-1")
	if err != nil || got == nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Enabled {
		t.Fatalf("expected account to be disabled")
	}
}
