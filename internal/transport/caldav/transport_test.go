package caldav

import (
	"bytes"
	"testing"
	"time"

	goical "github.com/emersion/go-ical"

	"github.com/meridian-pim/meridian/internal/calendar/ical"
)

func TestWindowStartEmptyToken(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	start, fellBack := windowStart("", now)
	if fellBack {
		t.Fatalf("empty token should not be treated as a fallback")
	}
	if want := now.Add(-lookback); !start.Equal(want) {
		t.Fatalf("start = %v, want %v", start, want)
	}
}

func TestWindowStartValidToken(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	token := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)

	start, fellBack := windowStart(token, now)
	if fellBack {
		t.Fatalf("valid token should not fall back")
	}
	want, _ := time.Parse(time.RFC3339, token)
	if !start.Equal(want) {
		t.Fatalf("start = %v, want %v", start, want)
	}
}

func TestWindowStartMalformedToken(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	start, fellBack := windowStart("not-a-timestamp", now)
	if !fellBack {
		t.Fatalf("malformed token should report a fallback")
	}
	if want := now.Add(-lookback); !start.Equal(want) {
		t.Fatalf("start = %v, want %v", start, want)
	}
}

func TestEncodeCalendarObjectRoundTripsThroughIcalParse(t *testing.T) {
	cal := &goical.Calendar{
		Component: &goical.Component{
			Name: goical.CompCalendar,
			Props: goical.Props{
				goical.PropVersion:    []goical.Prop{{Name: goical.PropVersion, Value: "2.0"}},
				goical.PropProductID:  []goical.Prop{{Name: goical.PropProductID, Value: "-//meridian//test//EN"}},
			},
		},
		Children: []*goical.Component{
			{
				Name: goical.CompEvent,
				Props: goical.Props{
					"UID":     []goical.Prop{{Name: "UID", Value: "event-1@example.com"}},
					"DTSTART": []goical.Prop{{Name: "DTSTART", Value: "20260801T090000Z"}},
					"DTEND":   []goical.Prop{{Name: "DTEND", Value: "20260801T093000Z"}},
					"SUMMARY": []goical.Prop{{Name: "SUMMARY", Value: "Kickoff"}},
				},
			},
		},
	}

	raw, err := encodeCalendarObject(cal)
	if err != nil {
		t.Fatalf("encodeCalendarObject failed: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected non-empty encoded output")
	}

	decoded, err := goical.NewDecoder(bytes.NewReader(raw)).Decode()
	if err != nil {
		t.Fatalf("failed to decode round-tripped bytes: %v", err)
	}
	if len(decoded.Children) != 1 || decoded.Children[0].Name != "VEVENT" {
		t.Fatalf("expected one VEVENT child, got %+v", decoded.Children)
	}

	invites, err := ical.Parse(raw)
	if err != nil || len(invites) != 1 || invites[0].Event.UID != "event-1@example.com" {
		t.Fatalf("ical.Parse on round-tripped bytes = %+v, %v; want one invite for event-1@example.com", invites, err)
	}
}
