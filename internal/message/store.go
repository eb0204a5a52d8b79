package message

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-pim/meridian/internal/database"
	"github.com/meridian-pim/meridian/internal/errs"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/rs/zerolog"
)

// Store is the Message Store described in spec §4.1. It owns Message and
// Folder records (folder counts are maintained by the folder package);
// this package owns message rows, attachments, and the FTS shadow.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a Message Store backed by db. db must already have
// database.MessageMigrations applied.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, log: logging.WithComponent("message")}
}

// StoreMessage upserts m by (account_id, folder_name, imap_uid) when
// imap_uid != 0, else by internal id — the contract in spec §4.1. The
// write is atomic: a malformed message is rejected with no partial write,
// and a unique-constraint collision on upsert is the intended update path,
// not an error. SyncVersion is bumped, never decreased.
func (s *Store) StoreMessage(m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.AccountID == "" {
		return errs.Parse(fmt.Errorf("message missing account_id"))
	}

	toJSON, _ := json.Marshal(m.To)
	ccJSON, _ := json.Marshal(m.Cc)
	bccJSON, _ := json.Marshal(m.Bcc)
	refsJSON, _ := json.Marshal(m.References)
	flagsJSON, _ := json.Marshal(m.Flags)
	labelsJSON, _ := json.Marshal(m.Labels)

	tx, err := s.db.Begin()
	if err != nil {
		return errs.Storage(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var existingID string
	var existingVersion int64
	var lookupErr error
	if m.IMAPUID != 0 {
		lookupErr = tx.QueryRow(`SELECT id, sync_version FROM messages WHERE account_id = ? AND folder_name = ? AND imap_uid = ?`,
			m.AccountID, m.Folder, m.IMAPUID).Scan(&existingID, &existingVersion)
	} else {
		lookupErr = tx.QueryRow(`SELECT id, sync_version FROM messages WHERE id = ?`, m.ID).Scan(&existingID, &existingVersion)
	}

	switch lookupErr {
	case nil:
		m.ID = existingID
		m.SyncVersion = existingVersion + 1
		_, err = tx.Exec(`
			UPDATE messages SET
				message_id = ?, in_reply_to = ?, references_json = ?, thread_id = ?,
				subject = ?, from_name = ?, from_email = ?, to_json = ?, cc_json = ?, bcc_json = ?, reply_to = ?, date = ?,
				body_text = ?, body_html = ?, flags_json = ?, labels_json = ?, priority = ?,
				size = ?, is_draft = ?, is_deleted = ?, sync_version = ?, updated_at = CURRENT_TIMESTAMP, last_synced_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, nullString(m.MessageID), nullString(m.InReplyTo), string(refsJSON), nullString(m.ThreadID),
			m.Subject, m.FromName, m.FromEmail, string(toJSON), string(ccJSON), string(bccJSON), nullString(m.ReplyTo), m.Date,
			m.BodyText, m.BodyHTML, string(flagsJSON), string(labelsJSON), m.Priority,
			m.Size, m.IsDraft, m.IsDeleted, m.SyncVersion, m.ID)
	case sql.ErrNoRows:
		m.SyncVersion = 1
		_, err = tx.Exec(`
			INSERT INTO messages (
				id, account_id, folder_name, imap_uid, message_id, in_reply_to, references_json, thread_id,
				subject, from_name, from_email, to_json, cc_json, bcc_json, reply_to, date,
				body_text, body_html, flags_json, labels_json, priority, size, is_draft, is_deleted, sync_version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, m.AccountID, m.Folder, m.IMAPUID, nullString(m.MessageID), nullString(m.InReplyTo), string(refsJSON), nullString(m.ThreadID),
			m.Subject, m.FromName, m.FromEmail, string(toJSON), string(ccJSON), string(bccJSON), nullString(m.ReplyTo), m.Date,
			m.BodyText, m.BodyHTML, string(flagsJSON), string(labelsJSON), m.Priority, m.Size, m.IsDraft, m.IsDeleted, m.SyncVersion)
	default:
		return errs.Storage(fmt.Errorf("failed to look up existing message: %w", lookupErr))
	}
	if err != nil {
		return errs.Storage(fmt.Errorf("failed to upsert message: %w", err))
	}

	if err := s.storeAttachments(tx, m); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Storage(fmt.Errorf("failed to commit message upsert: %w", err))
	}
	return nil
}

func (s *Store) storeAttachments(tx *sql.Tx, m *Message) error {
	if len(m.Attachments) == 0 {
		return nil
	}
	if _, err := tx.Exec(`DELETE FROM attachments WHERE message_id = ?`, m.ID); err != nil {
		return errs.Storage(fmt.Errorf("failed to clear old attachments: %w", err))
	}
	for i := range m.Attachments {
		a := &m.Attachments[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.MessageID = m.ID
		_, err := tx.Exec(`
			INSERT INTO attachments (id, message_id, filename, content_type, size, content_id, is_inline, local_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.MessageID, a.Filename, a.ContentType, a.Size, nullString(a.ContentID), a.IsInline, nullString(a.Path))
		if err != nil {
			return errs.Storage(fmt.Errorf("failed to store attachment: %w", err))
		}
	}
	return nil
}

// GetMessage returns the message with the given id, or nil if absent.
func (s *Store) GetMessage(id string) (*Message, error) {
	row := s.db.QueryRow(messageSelectColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Storage(fmt.Errorf("failed to get message: %w", err))
	}
	if err := s.attachAttachments(m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessageByUID returns the message for a given (account, folder, uid)
// triple, honoring the uniqueness invariant of spec §3.
func (s *Store) GetMessageByUID(accountID, folder string, uid uint32) (*Message, error) {
	row := s.db.QueryRow(messageSelectColumns+` FROM messages WHERE account_id = ? AND folder_name = ? AND imap_uid = ?`, accountID, folder, uid)
	m, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Storage(fmt.Errorf("failed to get message by uid: %w", err))
	}
	if err := s.attachAttachments(m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessages returns the newest-first list for (account, folder), using
// the (date DESC) index, per spec §4.1. Deleted messages are excluded.
func (s *Store) GetMessages(accountID, folder string, limit int) ([]*Message, error) {
	rows, err := s.db.Query(messageSelectColumns+`
		FROM messages WHERE account_id = ? AND folder_name = ? AND is_deleted = 0
		ORDER BY date DESC, id ASC LIMIT ?
	`, accountID, folder, limit)
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("failed to query messages: %w", err))
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetMessagesPaginated returns a stably-ordered page: (date DESC, id ASC),
// so pagination is deterministic under concurrent insertions, per spec
// §4.1.
func (s *Store) GetMessagesPaginated(accountID, folder string, limit, offset int) (*PageResult, error) {
	rows, err := s.db.Query(messageSelectColumns+`
		FROM messages WHERE account_id = ? AND folder_name = ? AND is_deleted = 0
		ORDER BY date DESC, id ASC LIMIT ? OFFSET ?
	`, accountID, folder, limit+1, offset)
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("failed to query paginated messages: %w", err))
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	return &PageResult{Messages: msgs, HasMore: hasMore}, nil
}

// SearchRange returns messages in (account, folder) with date in the
// half-open interval [since, until), per spec §4.1.
func (s *Store) SearchRange(accountID, folder string, since, until time.Time) ([]*Message, error) {
	rows, err := s.db.Query(messageSelectColumns+`
		FROM messages WHERE account_id = ? AND folder_name = ? AND is_deleted = 0
		AND date >= ? AND date < ?
		ORDER BY date DESC, id ASC
	`, accountID, folder, since, until)
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("failed to query date range: %w", err))
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Search performs ranked full-text retrieval over {subject, from, to,
// body_text, body_html} using the FTS5 shadow table. Deleted messages
// never appear, per spec §4.1 invariant (2). Ranked by SQLite's built-in
// bm25() — ascending rank is more relevant.
func (s *Store) Search(accountID, query string, limit int) ([]*SearchResult, error) {
	ftsQuery := prepareFTSQuery(query)
	rows, err := s.db.Query(`
		SELECT m.id, bm25(messages_fts) AS rank
		FROM messages m
		JOIN messages_fts fts ON m.rowid = fts.rowid
		WHERE m.account_id = ? AND m.is_deleted = 0 AND messages_fts MATCH ?
		ORDER BY rank LIMIT ?
	`, accountID, ftsQuery, limit)
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("failed to search messages: %w", err))
	}
	defer rows.Close()

	var ids []string
	ranks := map[string]float64{}
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, errs.Storage(fmt.Errorf("failed to scan search row: %w", err))
		}
		ids = append(ids, id)
		ranks[id] = rank
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err)
	}

	var out []*SearchResult
	for _, id := range ids {
		m, err := s.GetMessage(id)
		if err != nil {
			return nil, err
		}
		if m == nil {
			continue
		}
		out = append(out, &SearchResult{Message: m, Rank: ranks[id]})
	}
	return out, nil
}

// DeleteMessage sets is_deleted=true with an UPDATE, not a DELETE, so the
// row survives until Purge. The FTS update trigger re-indexes the row;
// Search keeps it out of results by filtering on is_deleted. Physical
// purge is a separate operation.
func (s *Store) DeleteMessage(accountID, folder string, uid uint32) error {
	_, err := s.db.Exec(`
		UPDATE messages SET is_deleted = 1, updated_at = CURRENT_TIMESTAMP
		WHERE account_id = ? AND folder_name = ? AND imap_uid = ?
	`, accountID, folder, uid)
	if err != nil {
		return errs.Storage(fmt.Errorf("failed to delete message: %w", err))
	}
	return nil
}

// Purge physically removes messages marked deleted before `before`.
func (s *Store) Purge(accountID string, before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE account_id = ? AND is_deleted = 1 AND updated_at < ?`, accountID, before)
	if err != nil {
		return 0, errs.Storage(fmt.Errorf("failed to purge messages: %w", err))
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ExistsByMessageID reports whether accountID already has a non-deleted
// message with the given RFC 5322 Message-ID, used by Maildir import's
// dedup pass (spec §4.3).
func (s *Store) ExistsByMessageID(accountID, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE account_id = ? AND message_id = ? AND is_deleted = 0`, accountID, messageID).Scan(&n)
	if err != nil {
		return false, errs.Storage(fmt.Errorf("failed to check message existence: %w", err))
	}
	return n > 0, nil
}

// FindThreadID returns the thread id assigned to any message sharing
// messageID, inReplyTo, or any entry of references, used by ingestion to
// assign ThreadID before the Threading Engine is asked to materialize a
// tree (spec §4.4 operates on a list; this is a storage-side shortcut for
// incremental ingestion so new mail doesn't need a full re-thread).
func (s *Store) FindThreadID(accountID string, candidates ...string) (string, error) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		var threadID sql.NullString
		err := s.db.QueryRow(`SELECT thread_id FROM messages WHERE account_id = ? AND message_id = ? AND thread_id IS NOT NULL LIMIT 1`, accountID, c).Scan(&threadID)
		if err == nil && threadID.Valid {
			return threadID.String, nil
		}
	}
	return "", nil
}

// UpdateThreadID sets the thread id for a message (used after the
// Threading Engine materializes a tree and wants to memoize root ids).
func (s *Store) UpdateThreadID(id, threadID string) error {
	_, err := s.db.Exec(`UPDATE messages SET thread_id = ? WHERE id = ?`, threadID, id)
	if err != nil {
		return errs.Storage(fmt.Errorf("failed to update thread id: %w", err))
	}
	return nil
}

// CountByFolder returns the non-deleted message count for (account, folder).
func (s *Store) CountByFolder(accountID, folder string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE account_id = ? AND folder_name = ? AND is_deleted = 0`, accountID, folder).Scan(&n)
	if err != nil {
		return 0, errs.Storage(fmt.Errorf("failed to count messages: %w", err))
	}
	return n, nil
}

// GetHighestUID returns the highest imap_uid stored for a folder, used by
// the injected transport to know where to resume a delta fetch.
func (s *Store) GetHighestUID(accountID, folder string) (uint32, error) {
	var uid sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(imap_uid) FROM messages WHERE account_id = ? AND folder_name = ?`, accountID, folder).Scan(&uid)
	if err != nil {
		return 0, errs.Storage(fmt.Errorf("failed to get highest uid: %w", err))
	}
	return uint32(uid.Int64), nil
}

func (s *Store) attachAttachments(m *Message) error {
	if m == nil {
		return nil
	}
	rows, err := s.db.Query(`SELECT id, message_id, filename, content_type, size, content_id, is_inline, local_path FROM attachments WHERE message_id = ?`, m.ID)
	if err != nil {
		return errs.Storage(fmt.Errorf("failed to query attachments: %w", err))
	}
	defer rows.Close()
	for rows.Next() {
		var a Attachment
		var contentID, path sql.NullString
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Filename, &a.ContentType, &a.Size, &contentID, &a.IsInline, &path); err != nil {
			return errs.Storage(fmt.Errorf("failed to scan attachment: %w", err))
		}
		a.ContentID = contentID.String
		a.Path = path.String
		m.Attachments = append(m.Attachments, a)
	}
	return rows.Err()
}

const messageSelectColumns = `
	SELECT id, account_id, folder_name, imap_uid, message_id, in_reply_to, references_json, thread_id,
		subject, from_name, from_email, to_json, cc_json, bcc_json, reply_to, date,
		body_text, body_html, flags_json, labels_json, priority, size, is_draft, is_deleted,
		sync_version, created_at, updated_at, last_synced_at
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scanner) (*Message, error) {
	m := &Message{}
	var messageID, inReplyTo, threadID, replyTo sql.NullString
	var refsJSON, toJSON, ccJSON, bccJSON, flagsJSON, labelsJSON string
	var lastSynced sql.NullTime

	err := row.Scan(
		&m.ID, &m.AccountID, &m.Folder, &m.IMAPUID, &messageID, &inReplyTo, &refsJSON, &threadID,
		&m.Subject, &m.FromName, &m.FromEmail, &toJSON, &ccJSON, &bccJSON, &replyTo, &m.Date,
		&m.BodyText, &m.BodyHTML, &flagsJSON, &labelsJSON, &m.Priority, &m.Size, &m.IsDraft, &m.IsDeleted,
		&m.SyncVersion, &m.CreatedAt, &m.UpdatedAt, &lastSynced,
	)
	if err != nil {
		return nil, err
	}

	m.MessageID = messageID.String
	m.InReplyTo = inReplyTo.String
	m.ThreadID = threadID.String
	m.ReplyTo = replyTo.String
	if lastSynced.Valid {
		m.LastSyncedAt = lastSynced.Time
	}
	json.Unmarshal([]byte(refsJSON), &m.References)
	json.Unmarshal([]byte(toJSON), &m.To)
	json.Unmarshal([]byte(ccJSON), &m.Cc)
	json.Unmarshal([]byte(bccJSON), &m.Bcc)
	json.Unmarshal([]byte(flagsJSON), &m.Flags)
	json.Unmarshal([]byte(labelsJSON), &m.Labels)

	return m, nil
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errs.Storage(fmt.Errorf("failed to scan message: %w", err))
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err)
	}
	return out, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// prepareFTSQuery escapes a user query for FTS5 MATCH, quoting each term so
// punctuation in the query (quotes, colons, carets) doesn't break the FTS5
// query grammar, and joining terms with implicit AND.
func prepareFTSQuery(query string) string {
	if query == "" {
		return `""`
	}
	var terms []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			terms = append(terms, string(current))
			current = current[:0]
		}
	}
	for _, r := range query {
		if r == ' ' || r == '\t' || r == '\n' {
			flush()
			continue
		}
		current = append(current, r)
	}
	flush()

	out := ""
	for i, t := range terms {
		if i > 0 {
			out += " "
		}
		escaped := ""
		for _, r := range t {
			if r == '"' {
				escaped += `""`
			} else {
				escaped += string(r)
			}
		}
		out += `"` + escaped + `"*`
	}
	return out
}
