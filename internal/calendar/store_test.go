package calendar

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-pim/meridian/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "calendars.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(database.CalendarMigrations); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	s := NewStore(db)
	if err := s.StoreCalendar(&Calendar{ID: "cal-1", Name: "Personal"}); err != nil {
		t.Fatalf("failed to seed calendar: %v", err)
	}
	return s
}

func TestStoreEventInsertAndGetByUID(t *testing.T) {
	s := newTestStore(t)
	e := &Event{
		UID:        "uid-1",
		CalendarID: "cal-1",
		Title:      "Standup",
		StartAt:    time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		EndAt:      time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC),
		Sequence:   0,
	}
	if err := s.StoreEvent(e); err != nil {
		t.Fatalf("StoreEvent failed: %v", err)
	}
	got, err := s.GetEventByUID("uid-1")
	if err != nil || got == nil {
		t.Fatalf("GetEventByUID failed: %v got=%v", err, got)
	}
	if got.Title != "Standup" {
		t.Fatalf("unexpected title %q", got.Title)
	}
}

func TestStoreEventHigherSequenceWins(t *testing.T) {
	s := newTestStore(t)
	e := &Event{UID: "uid-2", CalendarID: "cal-1", Title: "v1", StartAt: time.Now(), EndAt: time.Now().Add(time.Hour), Sequence: 1}
	if err := s.StoreEvent(e); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	stale := &Event{UID: "uid-2", CalendarID: "cal-1", Title: "stale", StartAt: time.Now(), EndAt: time.Now().Add(time.Hour), Sequence: 0}
	if err := s.StoreEvent(stale); err != nil {
		t.Fatalf("stale upsert failed: %v", err)
	}
	got, err := s.GetEventByUID("uid-2")
	if err != nil || got.Title != "v1" {
		t.Fatalf("expected lower sequence to be ignored, got %+v err=%v", got, err)
	}

	newer := &Event{UID: "uid-2", CalendarID: "cal-1", Title: "v2", StartAt: time.Now(), EndAt: time.Now().Add(time.Hour), Sequence: 2}
	if err := s.StoreEvent(newer); err != nil {
		t.Fatalf("newer upsert failed: %v", err)
	}
	got, err = s.GetEventByUID("uid-2")
	if err != nil || got.Title != "v2" {
		t.Fatalf("expected higher sequence to win, got %+v err=%v", got, err)
	}
}

func TestGetEventsOverlapRange(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []*Event{
		{UID: "a", CalendarID: "cal-1", Title: "before", StartAt: base, EndAt: base.Add(time.Hour)},
		{UID: "b", CalendarID: "cal-1", Title: "overlapping", StartAt: base.Add(90 * time.Minute), EndAt: base.Add(150 * time.Minute)},
		{UID: "c", CalendarID: "cal-1", Title: "after", StartAt: base.Add(5 * time.Hour), EndAt: base.Add(6 * time.Hour)},
	}
	for _, e := range events {
		if err := s.StoreEvent(e); err != nil {
			t.Fatalf("store event %s: %v", e.UID, err)
		}
	}

	got, err := s.GetEvents("cal-1", base.Add(time.Hour), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "overlapping" {
		t.Fatalf("expected only the overlapping event, got %+v", got)
	}
}

func TestGetUpcomingWithinWindow(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	events := []*Event{
		{UID: "past", CalendarID: "cal-1", Title: "past", StartAt: now.Add(-time.Hour), EndAt: now},
		{UID: "soon", CalendarID: "cal-1", Title: "soon", StartAt: now.Add(time.Hour), EndAt: now.Add(2 * time.Hour)},
		{UID: "far", CalendarID: "cal-1", Title: "far", StartAt: now.Add(48 * time.Hour), EndAt: now.Add(49 * time.Hour)},
	}
	for _, e := range events {
		if err := s.StoreEvent(e); err != nil {
			t.Fatalf("store event %s: %v", e.UID, err)
		}
	}

	got, err := s.GetUpcoming(now, 24, 10)
	if err != nil {
		t.Fatalf("GetUpcoming failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "soon" {
		t.Fatalf("expected only 'soon' within 24h window, got %+v", got)
	}
}

func TestSearchEvents(t *testing.T) {
	s := newTestStore(t)
	events := []*Event{
		{UID: "a", CalendarID: "cal-1", Title: "Quarterly planning", StartAt: time.Now(), EndAt: time.Now().Add(time.Hour)},
		{UID: "b", CalendarID: "cal-1", Title: "Dentist appointment", StartAt: time.Now(), EndAt: time.Now().Add(time.Hour)},
	}
	for _, e := range events {
		if err := s.StoreEvent(e); err != nil {
			t.Fatalf("store event %s: %v", e.UID, err)
		}
	}

	results, err := s.Search("quarterly", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].UID != "a" {
		t.Fatalf("expected only quarterly planning event, got %+v", results)
	}
}

func TestDeleteEvent(t *testing.T) {
	s := newTestStore(t)
	e := &Event{UID: "uid-del", CalendarID: "cal-1", Title: "bye", StartAt: time.Now(), EndAt: time.Now().Add(time.Hour)}
	if err := s.StoreEvent(e); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := s.DeleteEvent(e.ID); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	got, err := s.GetEventByUID("uid-del")
	if err != nil {
		t.Fatalf("GetEventByUID failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected event gone after delete, got %+v", got)
	}
}
