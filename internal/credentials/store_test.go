package credentials

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
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(database.MessageMigrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO accounts (id, name, email) VALUES ('acct-1', 'Test', 't@example.com')`); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	s, err := NewStore(db.DB, t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestPasswordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetPassword("acct-1", "hunter2"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	got, err := s.GetPassword("acct-1")
	if err != nil {
		t.Fatalf("GetPassword failed: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("expected hunter2, got %q", got)
	}
	if err := s.DeletePassword("acct-1"); err != nil {
		t.Fatalf("DeletePassword failed: %v", err)
	}
	if _, err := s.GetPassword("acct-1"); err != ErrCredentialNotFound {
		t.Fatalf("expected ErrCredentialNotFound after delete, got %v", err)
	}
}

func TestOAuthTokensRoundTrip(t *testing.T) {
	s := newTestStore(t)
	expiry := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SetOAuthTokens("acct-1", OAuthTokens{AccessToken: "a", RefreshToken: "r", Expiry: expiry}); err != nil {
		t.Fatalf("SetOAuthTokens failed: %v", err)
	}
	got, err := s.GetOAuthTokens("acct-1")
	if err != nil {
		t.Fatalf("GetOAuthTokens failed: %v", err)
	}
	if got.AccessToken != "a" || got.RefreshToken != "r" {
		t.Fatalf("unexpected tokens %+v", got)
	}
	if err := s.DeleteOAuthTokens("acct-1"); err != nil {
		t.Fatalf("DeleteOAuthTokens failed: %v", err)
	}
	if _, err := s.GetOAuthTokens("acct-1"); err != ErrCredentialNotFound {
		t.Fatalf("expected ErrCredentialNotFound after delete, got %v", err)
	}
}
