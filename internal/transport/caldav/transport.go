// Package caldav adapts github.com/emersion/go-webdav's caldav client onto
// synccoord.CalendarTransport (spec §6), the same role internal/transport/imap
// plays on the mail side.
package caldav

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/meridian-pim/meridian/internal/calendar"
	"github.com/meridian-pim/meridian/internal/calendar/ical"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/meridian-pim/meridian/internal/synccoord"
	"github.com/rs/zerolog"
)

// lookback is how far back a PullEvents call queries when it has no
// prior syncToken to start from; lookahead bounds the end of every query.
// CalDAV's REPORT-based sync-collection
// (RFC 6578) isn't something this library exposes a client for, so this
// transport substitutes a rolling time-range CalendarQuery instead:
// syncToken here is just the RFC3339 timestamp of the previous pull.
const (
	lookback = 30 * 24 * time.Hour
	lookahead = 2 * 365 * 24 * time.Hour
)

// Transport talks to a single CalDAV collection, identified by its URL
// path. A Coordinator calendarID maps 1:1 onto that path — the store's
// Calendar.SourceData field is expected to hold it (spec §4.2).
type Transport struct {
	client *caldav.Client
	log    zerolog.Logger
}

var _ synccoord.CalendarTransport = (*Transport)(nil)

// NewTransport builds a Transport authenticating with HTTP basic auth
// against endpoint, the CalDAV server's base URL.
func NewTransport(endpoint, username, password string) (*Transport, error) {
	hc := webdav.HTTPClientWithBasicAuth(http.DefaultClient, username, password)
	client, err := caldav.NewClient(hc, endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav: failed to build client: %w", err)
	}
	return &Transport{client: client, log: logging.WithComponent("caldav-transport")}, nil
}

// PullEvents fetches every VEVENT in [calendarID]'s time window and
// reconciles it through the already-grounded ical.Parse, rather than
// walking go-ical's *ical.Calendar component tree a second time here.
func (t *Transport) PullEvents(ctx context.Context, calendarID, syncToken string) ([]*calendar.Event, string, error) {
	now := time.Now()
	start, fellBack := windowStart(syncToken, now)
	if fellBack {
		t.log.Warn().Str("calendar", calendarID).Msg("ignoring malformed sync token, falling back to default window")
	}
	end := now.Add(lookahead)

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{
				{Name: "VEVENT", AllProps: true},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:      "VEVENT",
					TimeRange: &caldav.TimeRange{Start: start, End: end},
				},
			},
		},
	}

	objs, err := t.client.QueryCalendar(ctx, calendarID, query)
	if err != nil {
		return nil, syncToken, fmt.Errorf("caldav: query %s: %w", calendarID, err)
	}

	var events []*calendar.Event
	for _, obj := range objs {
		if obj.Data == nil {
			continue
		}
		raw, err := encodeCalendarObject(obj.Data)
		if err != nil {
			t.log.Warn().Err(err).Str("path", obj.Path).Msg("failed to re-encode calendar object")
			continue
		}
		invites, err := ical.Parse(raw)
		if err != nil {
			t.log.Warn().Err(err).Str("path", obj.Path).Msg("failed to parse calendar object")
			continue
		}
		for _, inv := range invites {
			inv.Event.CalendarID = calendarID
			inv.Event.ETag = obj.ETag
			inv.Event.URL = obj.Path
			events = append(events, inv.Event)
		}
	}

	return events, now.Format(time.RFC3339), nil
}

// windowStart resolves PullEvents' query-window start: the parsed syncToken
// when present and valid, or now minus the default lookback otherwise.
// fellBack reports whether a non-empty token failed to parse.
func windowStart(syncToken string, now time.Time) (start time.Time, fellBack bool) {
	if syncToken == "" {
		return now.Add(-lookback), false
	}
	parsed, err := time.Parse(time.RFC3339, syncToken)
	if err != nil {
		return now.Add(-lookback), true
	}
	return parsed, false
}

// encodeCalendarObject round-trips a go-ical component tree back into raw
// bytes so it can be fed through internal/calendar/ical.Parse, which
// already knows how to turn a VCALENDAR into *calendar.Event values.
func encodeCalendarObject(cal *goical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := goical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
