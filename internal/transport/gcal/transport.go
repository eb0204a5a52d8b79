// Package gcal adapts the Google Calendar v3 API onto
// synccoord.CalendarTransport (spec §6), mirroring the
// incremental-sync-with-expiring-token pattern the worker pack's own
// Google Calendar adapter uses.
package gcal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gcalapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/meridian-pim/meridian/internal/calendar"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/meridian-pim/meridian/internal/synccoord"
	"github.com/rs/zerolog"
)

// initialSyncLookback/lookahead bound the first full sync, mirroring the
// 30-days-back/90-days-forward default the worker pack's adapter uses.
const (
	initialSyncLookback = 30 * 24 * time.Hour
	initialSyncLookahead = 90 * 24 * time.Hour
)

// Transport talks to a single Google account's Calendar API using a
// pre-obtained OAuth2 token. Refreshing that token before it expires is
// oauthConfig.Client's job, not this package's.
type Transport struct {
	oauthConfig *oauth2.Config
	token       *oauth2.Token
	log         zerolog.Logger
}

var _ synccoord.CalendarTransport = (*Transport)(nil)

// NewTransport builds a Transport for one account's OAuth2 grant.
func NewTransport(oauthConfig *oauth2.Config, token *oauth2.Token) *Transport {
	return &Transport{oauthConfig: oauthConfig, token: token, log: logging.WithComponent("gcal-transport")}
}

func (t *Transport) service(ctx context.Context) (*gcalapi.Service, error) {
	client := t.oauthConfig.Client(ctx, t.token)
	return gcalapi.NewService(ctx, option.WithHTTPClient(client))
}

// PullEvents implements synccoord.CalendarTransport. An empty syncToken
// (or one the API reports expired) triggers a bounded full resync;
// otherwise it's Google's incremental sync, which also reports deletions
// as cancelled-status events.
func (t *Transport) PullEvents(ctx context.Context, calendarID, syncToken string) ([]*calendar.Event, string, error) {
	svc, err := t.service(ctx)
	if err != nil {
		return nil, syncToken, fmt.Errorf("gcal: failed to build calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}

	if syncToken == "" {
		return t.fullSync(ctx, svc, calendarID)
	}

	resp, err := svc.Events.List(calendarID).SyncToken(syncToken).Context(ctx).Do()
	if err != nil {
		t.log.Warn().Err(err).Str("calendar", calendarID).Msg("sync token rejected, falling back to full sync")
		return t.fullSync(ctx, svc, calendarID)
	}

	events := convertEvents(resp.Items, calendarID)
	return events, resp.NextSyncToken, nil
}

func (t *Transport) fullSync(ctx context.Context, svc *gcalapi.Service, calendarID string) ([]*calendar.Event, string, error) {
	timeMin := time.Now().Add(-initialSyncLookback)
	timeMax := time.Now().Add(initialSyncLookahead)

	resp, err := svc.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, "", fmt.Errorf("gcal: failed to list events for %s: %w", calendarID, err)
	}

	return convertEvents(resp.Items, calendarID), resp.NextSyncToken, nil
}

func convertEvents(items []*gcalapi.Event, calendarID string) []*calendar.Event {
	events := make([]*calendar.Event, 0, len(items))
	for _, item := range items {
		events = append(events, convertEvent(item, calendarID))
	}
	return events
}

func convertEvent(item *gcalapi.Event, calendarID string) *calendar.Event {
	uid := item.ICalUID
	if uid == "" {
		uid = item.Id
	}

	ev := &calendar.Event{
		UID:         uid,
		CalendarID:  calendarID,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      calendar.EventStatus(item.Status),
		Sequence:    int(item.Sequence),
		URL:         item.HtmlLink,
		ETag:        item.Etag,
	}

	ev.StartAt, ev.AllDay = parseEventTime(item.Start)
	ev.EndAt, _ = parseEventTime(item.End)

	if item.Organizer != nil {
		ev.Organizer = &calendar.Attendee{
			Email:       item.Organizer.Email,
			Name:        item.Organizer.DisplayName,
			IsOrganizer: true,
			PartStat:    calendar.PartStatAccepted,
		}
	}

	for _, att := range item.Attendees {
		ev.Attendees = append(ev.Attendees, calendar.Attendee{
			Email:       att.Email,
			Name:        att.DisplayName,
			IsOrganizer: att.Organizer,
			PartStat:    convertPartStat(att.ResponseStatus),
		})
	}

	if len(item.Recurrence) > 0 {
		ev.Recurrence = item.Recurrence[0]
	}

	if item.Reminders != nil {
		for _, r := range item.Reminders.Overrides {
			ev.Reminders = append(ev.Reminders, calendar.Reminder{
				MinutesBefore: int(r.Minutes),
				Method:        r.Method,
			})
		}
	}

	return ev
}

func parseEventTime(t *gcalapi.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		parsed, _ := time.Parse(time.RFC3339, t.DateTime)
		return parsed, false
	}
	if t.Date != "" {
		parsed, _ := time.Parse("2006-01-02", t.Date)
		return parsed, true
	}
	return time.Time{}, false
}

func convertPartStat(responseStatus string) calendar.PartStat {
	switch responseStatus {
	case "accepted":
		return calendar.PartStatAccepted
	case "declined":
		return calendar.PartStatDeclined
	case "tentative":
		return calendar.PartStatTentative
	default:
		return calendar.PartStatNeedsAction
	}
}
