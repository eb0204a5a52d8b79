package folder

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/meridian-pim/meridian/internal/database"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/rs/zerolog"
)

// Store persists Folder records.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a folder store backed by db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, log: logging.WithComponent("folder")}
}

// Upsert creates or updates a folder by (account_id, name).
func (s *Store) Upsert(f *Folder) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO folders (id, account_id, name, display_name, uid_validity, uid_next, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_id, name) DO UPDATE SET
			display_name = excluded.display_name,
			uid_validity = excluded.uid_validity,
			uid_next = excluded.uid_next,
			last_updated = CURRENT_TIMESTAMP
	`, f.ID, f.AccountID, f.Name, f.DisplayName, f.UIDValidity, f.UIDNext)
	if err != nil {
		return fmt.Errorf("failed to upsert folder: %w", err)
	}
	return nil
}

// Get returns the folder with the given (account_id, name), or nil if absent.
func (s *Store) Get(accountID, name string) (*Folder, error) {
	row := s.db.QueryRow(`
		SELECT id, account_id, name, display_name, message_count, unread_count, uid_validity, uid_next, last_updated
		FROM folders WHERE account_id = ? AND name = ?
	`, accountID, name)
	f := &Folder{}
	var uidValidity, uidNext sql.NullInt64
	if err := row.Scan(&f.ID, &f.AccountID, &f.Name, &f.DisplayName, &f.MessageCount, &f.UnreadCount, &uidValidity, &uidNext, &f.LastUpdated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	f.UIDValidity = uint32(uidValidity.Int64)
	f.UIDNext = uint32(uidNext.Int64)
	return f, nil
}

// ListByAccount returns every folder belonging to accountID.
func (s *Store) ListByAccount(accountID string) ([]*Folder, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, name, display_name, message_count, unread_count, uid_validity, uid_next, last_updated
		FROM folders WHERE account_id = ? ORDER BY name ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var out []*Folder
	for rows.Next() {
		f := &Folder{}
		var uidValidity, uidNext sql.NullInt64
		if err := rows.Scan(&f.ID, &f.AccountID, &f.Name, &f.DisplayName, &f.MessageCount, &f.UnreadCount, &uidValidity, &uidNext, &f.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		f.UIDValidity = uint32(uidValidity.Int64)
		f.UIDNext = uint32(uidNext.Int64)
		out = append(out, f)
	}
	return out, rows.Err()
}

// RefreshCounts recomputes message_count/unread_count from the messages
// table for a folder. Called after batches of store_message/delete_message
// rather than on every write, to keep hot-path writes O(1).
func (s *Store) RefreshCounts(accountID, name string) error {
	_, err := s.db.Exec(`
		UPDATE folders SET
			message_count = (
				SELECT COUNT(*) FROM messages m
				WHERE m.account_id = folders.account_id AND m.folder_name = folders.name AND m.is_deleted = 0
			),
			unread_count = (
				SELECT COUNT(*) FROM messages m
				WHERE m.account_id = folders.account_id AND m.folder_name = folders.name
				AND m.is_deleted = 0 AND NOT EXISTS (
					SELECT 1 FROM json_each(m.flags_json) WHERE json_each.value = 'Seen'
				)
			)
		WHERE account_id = ? AND name = ?
	`, accountID, name)
	if err != nil {
		return fmt.Errorf("failed to refresh folder counts: %w", err)
	}
	return nil
}
