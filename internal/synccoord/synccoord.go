// Package synccoord is the Sync Coordinator (spec §4.8): it owns a set
// of periodic tasks keyed by (account_id, folder_name) and (calendar_id),
// pulls deltas from the injected transports, writes them to the stores,
// and emits sync lifecycle notifications.
package synccoord

import (
	"context"
	"sync"
	"time"

	"github.com/meridian-pim/meridian/internal/errs"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/rs/zerolog"
)

// EventKind tags a sync lifecycle notification, per spec §4.8.
type EventKind int

const (
	EventStarted EventKind = iota
	EventCompleted
	EventFailed
)

// Event is one sync lifecycle notification, the shape the Notification
// Bus's sync-producer side consumes (spec §4.7/§4.8).
type Event struct {
	Kind       EventKind
	AccountID  string // empty for a calendar task
	Folder     string // empty for a calendar task
	CalendarID string // empty for a mail task
	New        int
	Updated    int
	Err        error
}

// Notifier receives sync lifecycle events. internal/notifbus implements
// this to fan events into the Notification Bus; tests can stub it.
type Notifier interface {
	NotifySync(Event)
}

type noopNotifier struct{}

func (noopNotifier) NotifySync(Event) {}

// defaultConcurrentFoldersPerAccount matches spec §4.8's default cap.
const defaultConcurrentFoldersPerAccount = 2

// Coordinator owns the periodic task set and per-account concurrency
// caps described in spec §4.8.
type Coordinator struct {
	log      zerolog.Logger
	notifier Notifier
	backoff  errs.BackoffPolicy

	concurrentFoldersPerAccount int
	checkInterval               time.Duration
	isConnected                 func() bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	running    bool
	mailTasks  map[mailKey]*mailTask
	calTasks   map[string]*calendarTask
	accountSem map[string]chan struct{} // per-account concurrency gate
}

type mailKey struct {
	AccountID string
	Folder    string
}

// New creates a Coordinator with spec §4.8's defaults: a 1s-base/5min-cap
// ±20%-jitter backoff and a 2-concurrent-folders-per-account cap.
func New(notifier Notifier) *Coordinator {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Coordinator{
		log:                         logging.WithComponent("synccoord"),
		notifier:                    notifier,
		backoff:                     errs.DefaultSyncBackoff(),
		concurrentFoldersPerAccount: defaultConcurrentFoldersPerAccount,
		checkInterval:               time.Minute,
		mailTasks:                   make(map[mailKey]*mailTask),
		calTasks:                    make(map[string]*calendarTask),
		accountSem:                  make(map[string]chan struct{}),
	}
}

// SetConcurrentFoldersPerAccount overrides the per-account concurrency cap.
func (c *Coordinator) SetConcurrentFoldersPerAccount(n int) {
	if n > 0 {
		c.concurrentFoldersPerAccount = n
	}
}

// SetConnectivityCheck skips sync ticks entirely when offline.
func (c *Coordinator) SetConnectivityCheck(check func() bool) {
	c.isConnected = check
}

// Start begins the periodic scheduling loop.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.wg.Add(1)
	go c.run()
	c.log.Info().Msg("sync coordinator started")
}

// Stop halts the scheduling loop and waits for in-flight ticks to settle.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	c.log.Info().Msg("sync coordinator stopped")
}

func (c *Coordinator) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	c.tick()
	for {
		select {
		case <-ticker.C:
			c.tick()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) tick() {
	if c.isConnected != nil && !c.isConnected() {
		c.log.Debug().Msg("skipping sync tick — offline")
		return
	}

	c.mu.Lock()
	mailDue := make([]*mailTask, 0, len(c.mailTasks))
	for _, t := range c.mailTasks {
		if t.dueLocked() {
			mailDue = append(mailDue, t)
		}
	}
	calDue := make([]*calendarTask, 0, len(c.calTasks))
	for _, t := range c.calTasks {
		if t.dueLocked() {
			calDue = append(calDue, t)
		}
	}
	c.mu.Unlock()

	for _, t := range mailDue {
		c.runMailTask(t)
	}
	for _, t := range calDue {
		c.runCalendarTask(t)
	}
}

func (c *Coordinator) accountSemaphore(accountID string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	sem, ok := c.accountSem[accountID]
	if !ok {
		sem = make(chan struct{}, c.concurrentFoldersPerAccount)
		c.accountSem[accountID] = sem
	}
	return sem
}
