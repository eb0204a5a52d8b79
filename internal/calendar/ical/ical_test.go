package ical

import "testing"

const sampleRequest = `BEGIN:VCALENDAR
METHOD:REQUEST
VERSION:2.0
BEGIN:VEVENT
UID:event-1@example.com
DTSTART:20260301T090000Z
DTEND:20260301T093000Z
SUMMARY:Standup
LOCATION:Room 2
SEQUENCE:0
STATUS:CONFIRMED
ORGANIZER:mailto:boss@example.com
ATTENDEE;CN=Alice;PARTSTAT=NEEDS-ACTION:mailto:alice@example.com
END:VEVENT
END:VCALENDAR
`

func TestParseRequest(t *testing.T) {
	invites, err := Parse([]byte(sampleRequest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(invites) != 1 {
		t.Fatalf("expected 1 invite, got %d", len(invites))
	}
	inv := invites[0]
	if inv.Method != MethodRequest {
		t.Errorf("expected REQUEST method, got %q", inv.Method)
	}
	if inv.Event.UID != "event-1@example.com" {
		t.Errorf("unexpected UID %q", inv.Event.UID)
	}
	if inv.Event.Title != "Standup" {
		t.Errorf("unexpected title %q", inv.Event.Title)
	}
	if len(inv.Event.Attendees) != 1 || inv.Event.Attendees[0].Email != "alice@example.com" {
		t.Fatalf("unexpected attendees %+v", inv.Event.Attendees)
	}
}

func TestLooksLikeICS(t *testing.T) {
	if !LooksLikeICS([]byte(sampleRequest)) {
		t.Error("expected sample to be detected as ICS")
	}
	if LooksLikeICS([]byte("just some text")) {
		t.Error("expected plain text to not be detected as ICS")
	}
}

func TestParseDateTimeFormats(t *testing.T) {
	cases := []string{"20260301T090000Z", "20260301T090000", "20260301"}
	for _, c := range cases {
		if _, err := parseDateTime(c); err != nil {
			t.Errorf("parseDateTime(%q) failed: %v", c, err)
		}
	}
}

func TestAllDayDetection(t *testing.T) {
	if !isDateOnly("20260301") {
		t.Error("expected bare date to be detected as all-day")
	}
	if isDateOnly("20260301T090000Z") {
		t.Error("expected date-time to not be detected as all-day")
	}
}
