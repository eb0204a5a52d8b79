package calendar

import (
	"testing"
	"time"
)

func TestParseRecurrenceRRule(t *testing.T) {
	e := &Event{
		StartAt:    time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		Recurrence: "FREQ=WEEKLY;COUNT=3",
	}
	r, err := ParseRecurrence(e)
	if err != nil {
		t.Fatalf("ParseRecurrence failed: %v", err)
	}
	if r == nil || r.RRule == nil {
		t.Fatal("expected an RRule result")
	}
	occs := r.NextOccurrences(e.StartAt, 10)
	if len(occs) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(occs))
	}
}

func TestParseRecurrenceJSONFallback(t *testing.T) {
	e := &Event{Recurrence: `{"freq":"custom","every":2}`}
	r, err := ParseRecurrence(e)
	if err != nil {
		t.Fatalf("ParseRecurrence failed: %v", err)
	}
	if r == nil || r.Raw == nil || r.Raw["freq"] != "custom" {
		t.Fatalf("expected JSON fallback decoded, got %+v", r)
	}
}

func TestParseRecurrenceEmpty(t *testing.T) {
	e := &Event{}
	r, err := ParseRecurrence(e)
	if err != nil || r != nil {
		t.Fatalf("expected nil result for empty recurrence, got %+v err=%v", r, err)
	}
}
