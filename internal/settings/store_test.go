package settings

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

func TestGetSetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	v, err := s.Get("nope")
	if err != nil || v != "" {
		t.Fatalf("expected empty value for unset key, got %q, err %v", v, err)
	}

	if err := s.Set("nope", "value"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, err = s.Get("nope")
	if err != nil || v != "value" {
		t.Fatalf("Get after Set = %q, %v; want \"value\", nil", v, err)
	}

	if err := s.Set("nope", "updated"); err != nil {
		t.Fatalf("Set (update) failed: %v", err)
	}
	v, err = s.Get("nope")
	if err != nil || v != "updated" {
		t.Fatalf("Get after update = %q, %v; want \"updated\", nil", v, err)
	}
}

func TestAutostartDefaultsFalse(t *testing.T) {
	s := newTestStore(t)
	enabled, err := s.GetAutostart()
	if err != nil || enabled {
		t.Fatalf("GetAutostart() = %v, %v; want false, nil", enabled, err)
	}

	if err := s.SetAutostart(true); err != nil {
		t.Fatalf("SetAutostart failed: %v", err)
	}
	enabled, err = s.GetAutostart()
	if err != nil || !enabled {
		t.Fatalf("GetAutostart() after enable = %v, %v; want true, nil", enabled, err)
	}
}

func TestMarkAsReadDelayValidation(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetMarkAsReadDelay(-2); err == nil {
		t.Fatalf("expected error for delay below -1")
	}
	if err := s.SetMarkAsReadDelay(50); err == nil {
		t.Fatalf("expected error for delay below minimum non-zero threshold")
	}
	if err := s.SetMarkAsReadDelay(10000); err == nil {
		t.Fatalf("expected error for delay above maximum")
	}

	if err := s.SetMarkAsReadDelay(-1); err != nil {
		t.Fatalf("SetMarkAsReadDelay(-1) failed: %v", err)
	}
	delay, err := s.GetMarkAsReadDelay()
	if err != nil || delay != -1 {
		t.Fatalf("GetMarkAsReadDelay() = %d, %v; want -1, nil", delay, err)
	}
}

func TestThemeModeValidation(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetThemeMode("not-a-real-mode"); err == nil {
		t.Fatalf("expected error for invalid theme mode")
	}
	if err := s.SetThemeMode(ThemeModeDark); err != nil {
		t.Fatalf("SetThemeMode failed: %v", err)
	}
	mode, err := s.GetThemeMode()
	if err != nil || mode != ThemeModeDark {
		t.Fatalf("GetThemeMode() = %q, %v; want %q, nil", mode, err, ThemeModeDark)
	}
}
