package imap

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/meridian-pim/meridian/internal/message"
	"github.com/meridian-pim/meridian/internal/synccoord"
	"github.com/rs/zerolog"
)

// Transport adapts a connection Pool into synccoord.MailTransport (spec
// §6): it owns the select/search/fetch wire sequence so the Sync
// Coordinator only ever sees folder deltas and parsed messages.
type Transport struct {
	pool   *Pool
	parser *message.Parser
	log    zerolog.Logger
}

// NewTransport wraps pool as a synccoord.MailTransport.
func NewTransport(pool *Pool) *Transport {
	return &Transport{pool: pool, parser: message.NewParser(), log: logging.WithComponent("imap-transport")}
}

// NewTransportWithAttachmentDir is NewTransport, but persists non-inline or
// oversized attachment content under attachmentDir instead of dropping it
// (spec §3: the on-disk blob store, when configured, owns the durable
// attachment bytes).
func NewTransportWithAttachmentDir(pool *Pool, attachmentDir string) *Transport {
	t := NewTransport(pool)
	t.parser.SetAttachmentDir(attachmentDir)
	return t
}

var _ synccoord.MailTransport = (*Transport)(nil)

// ReportFolderState implements spec §6's report_folder_state: select the
// mailbox, compare UIDVALIDITY, and search for UIDs the caller doesn't
// already know about. A UIDVALIDITY change invalidates the caller's
// entire known-UID set (RFC 3501 §2.3.1.1), so every UID in the mailbox
// comes back as "new" in that case.
func (t *Transport) ReportFolderState(ctx context.Context, accountID, folderName string, knownUIDValidity uint32, knownUIDs []uint32) (*synccoord.FolderDelta, error) {
	conn, err := t.pool.GetConnection(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer t.pool.Release(conn)

	client := conn.Client()
	mbox, err := client.SelectMailbox(ctx, folderName)
	if err != nil {
		if IsConnectionError(err) {
			t.pool.Discard(conn)
		}
		return nil, fmt.Errorf("select %s: %w", folderName, err)
	}

	delta := &synccoord.FolderDelta{}
	minUID := uint32(0)
	if knownUIDValidity != 0 && mbox.UIDValidity != knownUIDValidity {
		delta.UIDValidityChanged = true
	} else if len(knownUIDs) > 0 {
		minUID = knownUIDs[len(knownUIDs)-1]
	}

	uids, err := client.SearchUIDsAbove(ctx, minUID)
	if err != nil {
		if IsConnectionError(err) {
			t.pool.Discard(conn)
		}
		return nil, fmt.Errorf("search %s: %w", folderName, err)
	}
	delta.NewUIDs = uids
	return delta, nil
}

// FetchMessages implements spec §6's put_message half: it fetches each
// UID's full body and flags, then parses the body into a *message.Message
// ready for message.Store.StoreMessage. AccountID/Folder are left for the
// caller to stamp, matching the MailTransport contract in
// internal/synccoord/mail.go.
func (t *Transport) FetchMessages(ctx context.Context, accountID, folderName string, uids []uint32) ([]*message.Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	conn, err := t.pool.GetConnection(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer t.pool.Release(conn)

	client := conn.Client()
	if _, err := client.SelectMailbox(ctx, folderName); err != nil {
		if IsConnectionError(err) {
			t.pool.Discard(conn)
		}
		return nil, fmt.Errorf("select %s: %w", folderName, err)
	}

	raws, err := client.FetchRawByUID(ctx, uids)
	if err != nil {
		if IsConnectionError(err) {
			t.pool.Discard(conn)
		}
		return nil, fmt.Errorf("fetch %s: %w", folderName, err)
	}

	msgs := make([]*message.Message, 0, len(raws))
	for _, raw := range raws {
		parsed := t.parser.ParseRaw(raw.Raw)
		m := &message.Message{
			IMAPUID:     raw.UID,
			MessageID:   parsed.MessageID,
			InReplyTo:   parsed.InReplyTo,
			References:  parsed.References,
			Subject:     parsed.Subject,
			FromName:    parsed.FromName,
			FromEmail:   parsed.FromEmail,
			To:          parsed.To,
			Cc:          parsed.Cc,
			Bcc:         parsed.Bcc,
			ReplyTo:     parsed.ReplyTo,
			Date:        parsed.Date,
			BodyText:    parsed.BodyText,
			BodyHTML:    parsed.BodyHTML,
			Attachments: parsed.Attachments,
			Size:        int64(len(raw.Raw)),
			Flags:       convertFlags(raw.Flags),
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// convertFlags maps go-imap's backslash-prefixed system flags onto the
// Message Store's Flag vocabulary; unrecognized/custom flags pass through
// with the backslash stripped.
func convertFlags(flags []imap.Flag) []message.Flag {
	out := make([]message.Flag, 0, len(flags))
	for _, f := range flags {
		out = append(out, message.Flag(strings.TrimPrefix(string(f), "\\")))
	}
	return out
}
