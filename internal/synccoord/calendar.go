package synccoord

import (
	"context"
	"time"

	"github.com/meridian-pim/meridian/internal/calendar"
	"github.com/meridian-pim/meridian/internal/errs"
)

// CalendarTransport is the injected calendar-side transport contract
// from spec §6: pull remote events changed since the last sync token,
// hand them back for the coordinator to reconcile into the store.
type CalendarTransport interface {
	PullEvents(ctx context.Context, calendarID, syncToken string) (events []*calendar.Event, nextSyncToken string, err error)
}

type calendarTask struct {
	calendarID string
	interval   time.Duration
	transport  CalendarTransport

	store *calendar.Store

	syncToken string
	lastRun   time.Time
	forced    bool
}

func (t *calendarTask) dueLocked() bool {
	if t.forced {
		return true
	}
	return time.Since(t.lastRun) >= t.interval
}

// AddCalendarTask registers a periodic sync task for calendarID.
func (c *Coordinator) AddCalendarTask(calendarID string, interval time.Duration, transport CalendarTransport, store *calendar.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calTasks[calendarID] = &calendarTask{
		calendarID: calendarID,
		interval:   interval,
		transport:  transport,
		store:      store,
	}
}

// ForceCalendarSync jumps a calendar task to the front of the schedule.
func (c *Coordinator) ForceCalendarSync(calendarID string) {
	c.mu.Lock()
	t, ok := c.calTasks[calendarID]
	if ok {
		t.forced = true
	}
	c.mu.Unlock()
	if ok {
		go c.runCalendarTask(t)
	}
}

func (c *Coordinator) runCalendarTask(t *calendarTask) {
	sem := c.accountSemaphore("calendar:" + t.calendarID)
	select {
	case sem <- struct{}{}:
	case <-c.ctx.Done():
		return
	}
	defer func() { <-sem }()

	c.mu.Lock()
	t.forced = false
	t.lastRun = time.Now()
	c.mu.Unlock()

	c.notifier.NotifySync(Event{Kind: EventStarted, CalendarID: t.calendarID})

	var newCount, updatedCount int
	err := errs.Retry(c.ctx, c.backoff, func(ctx context.Context) error {
		n, u, err := t.syncOnce(ctx)
		newCount, updatedCount = n, u
		return err
	})
	if err != nil {
		c.log.Error().Err(err).Str("calendar", t.calendarID).Msg("calendar sync failed")
		c.notifier.NotifySync(Event{Kind: EventFailed, CalendarID: t.calendarID, Err: err})
		return
	}

	c.notifier.NotifySync(Event{Kind: EventCompleted, CalendarID: t.calendarID, New: newCount, Updated: updatedCount})
}

func (t *calendarTask) syncOnce(ctx context.Context) (newCount, updatedCount int, err error) {
	events, nextToken, err := t.transport.PullEvents(ctx, t.calendarID, t.syncToken)
	if err != nil {
		return 0, 0, err
	}

	for _, ev := range events {
		existing, lookupErr := t.store.GetEventByUID(ev.UID)
		if lookupErr != nil {
			return newCount, updatedCount, lookupErr
		}
		if err := t.store.StoreEvent(ev); err != nil {
			return newCount, updatedCount, err
		}
		if existing == nil {
			newCount++
		} else {
			updatedCount++
		}
	}

	t.syncToken = nextToken
	return newCount, updatedCount, nil
}
