package gcal

import (
	"testing"
	"time"

	gcalapi "google.golang.org/api/calendar/v3"

	"github.com/meridian-pim/meridian/internal/calendar"
)

func TestParseEventTimeDateTime(t *testing.T) {
	ts, allDay := parseEventTime(&gcalapi.EventDateTime{DateTime: "2026-07-30T09:00:00Z"})
	if allDay {
		t.Fatalf("expected a timed event, got all-day")
	}
	want := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("got %v, want %v", ts, want)
	}
}

func TestParseEventTimeAllDay(t *testing.T) {
	ts, allDay := parseEventTime(&gcalapi.EventDateTime{Date: "2026-08-01"})
	if !allDay {
		t.Fatalf("expected an all-day event")
	}
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("got %v, want %v", ts, want)
	}
}

func TestParseEventTimeNil(t *testing.T) {
	ts, allDay := parseEventTime(nil)
	if !ts.IsZero() || allDay {
		t.Fatalf("expected zero time and non-all-day for nil input")
	}
}

func TestConvertPartStat(t *testing.T) {
	cases := map[string]calendar.PartStat{
		"accepted":  calendar.PartStatAccepted,
		"declined":  calendar.PartStatDeclined,
		"tentative": calendar.PartStatTentative,
		"needsAction": calendar.PartStatNeedsAction,
		"":          calendar.PartStatNeedsAction,
	}
	for in, want := range cases {
		if got := convertPartStat(in); got != want {
			t.Errorf("convertPartStat(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConvertEvent(t *testing.T) {
	item := &gcalapi.Event{
		Id:          "abc123",
		ICalUID:     "uid-1@google.com",
		Summary:     "Standup",
		Description: "Daily sync",
		Location:    "Room 4",
		Status:      "confirmed",
		Sequence:    2,
		HtmlLink:    "https://calendar.google.com/event?eid=abc123",
		Etag:        `"etag-1"`,
		Start:       &gcalapi.EventDateTime{DateTime: "2026-07-30T09:00:00Z"},
		End:         &gcalapi.EventDateTime{DateTime: "2026-07-30T09:30:00Z"},
		Organizer:   &gcalapi.EventOrganizer{Email: "boss@example.com", DisplayName: "Boss"},
		Attendees: []*gcalapi.EventAttendee{
			{Email: "a@example.com", DisplayName: "A", ResponseStatus: "accepted"},
			{Email: "b@example.com", DisplayName: "B", ResponseStatus: "declined"},
		},
		Recurrence: []string{"RRULE:FREQ=WEEKLY"},
		Reminders: &gcalapi.EventReminders{
			Overrides: []*gcalapi.EventReminder{
				{Minutes: 10, Method: "popup"},
			},
		},
	}

	ev := convertEvent(item, "primary")

	if ev.UID != "uid-1@google.com" {
		t.Errorf("UID = %q, want ICalUID to take precedence", ev.UID)
	}
	if ev.CalendarID != "primary" {
		t.Errorf("CalendarID = %q", ev.CalendarID)
	}
	if ev.Title != "Standup" || ev.Description != "Daily sync" || ev.Location != "Room 4" {
		t.Errorf("unexpected basic fields: %+v", ev)
	}
	if ev.AllDay {
		t.Errorf("expected a timed event")
	}
	if ev.Organizer == nil || ev.Organizer.Email != "boss@example.com" || !ev.Organizer.IsOrganizer {
		t.Errorf("organizer not mapped: %+v", ev.Organizer)
	}
	if len(ev.Attendees) != 2 || ev.Attendees[0].PartStat != calendar.PartStatAccepted || ev.Attendees[1].PartStat != calendar.PartStatDeclined {
		t.Errorf("attendees not mapped: %+v", ev.Attendees)
	}
	if ev.Recurrence != "RRULE:FREQ=WEEKLY" {
		t.Errorf("recurrence = %q", ev.Recurrence)
	}
	if len(ev.Reminders) != 1 || ev.Reminders[0].MinutesBefore != 10 || ev.Reminders[0].Method != "popup" {
		t.Errorf("reminders not mapped: %+v", ev.Reminders)
	}
	if ev.Sequence != 2 || ev.ETag != `"etag-1"` || ev.URL != item.HtmlLink {
		t.Errorf("unexpected passthrough fields: %+v", ev)
	}
}

func TestConvertEventFallsBackToIDWithoutICalUID(t *testing.T) {
	item := &gcalapi.Event{Id: "raw-id", Summary: "No UID"}
	ev := convertEvent(item, "primary")
	if ev.UID != "raw-id" {
		t.Fatalf("UID = %q, want fallback to Id", ev.UID)
	}
}
