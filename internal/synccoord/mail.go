package synccoord

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-pim/meridian/internal/calendar/invite"
	"github.com/meridian-pim/meridian/internal/errs"
	"github.com/meridian-pim/meridian/internal/folder"
	"github.com/meridian-pim/meridian/internal/message"
)

// FolderDelta is report_folder_state's return value per spec §6: the
// transport compares uid_validity and the known UID set and reports
// what changed.
type FolderDelta struct {
	UIDValidityChanged bool
	NewUIDs            []uint32
	ExpungedUIDs       []uint32
}

// MailTransport is the injected transport contract from spec §6,
// narrowed to what the Sync Coordinator drives directly.
type MailTransport interface {
	ReportFolderState(ctx context.Context, accountID, folderName string, knownUIDValidity uint32, knownUIDs []uint32) (*FolderDelta, error)
	FetchMessages(ctx context.Context, accountID, folderName string, uids []uint32) ([]*message.Message, error)
}

type mailTask struct {
	accountID string
	folder    string
	interval  time.Duration
	transport MailTransport

	messageStore *message.Store
	folderStore  *folder.Store
	invites      *invite.Processor // nil when no calendar store to reconcile against

	lastRun time.Time
	forced  bool
}

func (t *mailTask) dueLocked() bool {
	if t.forced {
		return true
	}
	return time.Since(t.lastRun) >= t.interval
}

// AddMailTask registers a periodic sync task for (accountID, folderName).
func (c *Coordinator) AddMailTask(accountID, folderName string, interval time.Duration, transport MailTransport, messageStore *message.Store, folderStore *folder.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mailTasks[mailKey{accountID, folderName}] = &mailTask{
		accountID:    accountID,
		folder:       folderName,
		interval:     interval,
		transport:    transport,
		messageStore: messageStore,
		folderStore:  folderStore,
	}
}

// SetInviteProcessor attaches the Invitation Processor that runs against
// every message freshly stored while syncing (accountID, folderName). A
// nil processor (the default) skips invitation scanning entirely.
func (c *Coordinator) SetInviteProcessor(accountID, folderName string, p *invite.Processor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.mailTasks[mailKey{accountID, folderName}]; ok {
		t.invites = p
	}
}

// ForceMailSync jumps a task to the front of the schedule without
// violating the per-account concurrency cap, per spec §4.8.
func (c *Coordinator) ForceMailSync(accountID, folderName string) {
	c.mu.Lock()
	t, ok := c.mailTasks[mailKey{accountID, folderName}]
	if ok {
		t.forced = true
	}
	c.mu.Unlock()
	if ok {
		go c.runMailTask(t)
	}
}

func (c *Coordinator) runMailTask(t *mailTask) {
	sem := c.accountSemaphore(t.accountID)
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

	c.notifier.NotifySync(Event{Kind: EventStarted, AccountID: t.accountID, Folder: t.folder})

	var newCount, updatedCount int
	err := errs.Retry(c.ctx, c.backoff, func(ctx context.Context) error {
		n, u, err := t.syncOnce(ctx)
		newCount, updatedCount = n, u
		return err
	})
	if err != nil {
		c.log.Error().Err(err).Str("account", t.accountID).Str("folder", t.folder).Msg("mail sync failed")
		c.notifier.NotifySync(Event{Kind: EventFailed, AccountID: t.accountID, Folder: t.folder, Err: err})
		return
	}

	c.notifier.NotifySync(Event{Kind: EventCompleted, AccountID: t.accountID, Folder: t.folder, New: newCount, Updated: updatedCount})
}

func (t *mailTask) syncOnce(ctx context.Context) (newCount, updatedCount int, err error) {
	f, err := t.folderStore.Get(t.accountID, t.folder)
	if err != nil {
		return 0, 0, err
	}

	var knownUIDValidity uint32
	var knownUIDs []uint32
	if f != nil {
		knownUIDValidity = f.UIDValidity
		highest, err := t.messageStore.GetHighestUID(t.accountID, t.folder)
		if err != nil {
			return 0, 0, err
		}
		if highest > 0 {
			for uid := uint32(1); uid <= highest; uid++ {
				knownUIDs = append(knownUIDs, uid)
			}
		}
	}

	delta, err := t.transport.ReportFolderState(ctx, t.accountID, t.folder, knownUIDValidity, knownUIDs)
	if err != nil {
		return 0, 0, err
	}
	if delta == nil || len(delta.NewUIDs) == 0 {
		return 0, 0, nil
	}

	msgs, err := t.transport.FetchMessages(ctx, t.accountID, t.folder, delta.NewUIDs)
	if err != nil {
		return 0, 0, err
	}

	for _, m := range msgs {
		m.AccountID = t.accountID
		m.Folder = t.folder

		if m.ThreadID == "" {
			candidates := append(append([]string{}, m.References...), m.InReplyTo)
			threadID, err := t.messageStore.FindThreadID(t.accountID, candidates...)
			if err != nil {
				return newCount, updatedCount, err
			}
			if threadID == "" {
				if m.ID == "" {
					m.ID = uuid.NewString()
				}
				threadID = m.ID
			}
			m.ThreadID = threadID
		}

		if err := t.messageStore.StoreMessage(m); err != nil {
			return newCount, updatedCount, err
		}
		if m.SyncVersion <= 1 {
			newCount++
		} else {
			updatedCount++
		}

		if t.invites != nil {
			if _, err := t.invites.Process(m); err != nil {
				return newCount, updatedCount, err
			}
		}
	}

	if err := t.folderStore.RefreshCounts(t.accountID, t.folder); err != nil {
		return newCount, updatedCount, err
	}
	return newCount, updatedCount, nil
}
