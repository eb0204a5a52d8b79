package account

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/meridian-pim/meridian/internal/database"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/rs/zerolog"
)

// Store persists Account records in the message-domain database.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates an account store backed by db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, log: logging.WithComponent("account")}
}

// Create inserts a new account, assigning it a UUID if ID is empty.
func (s *Store) Create(a *Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, name, email, transport_kind, enabled, order_index, sync_period_days)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, a.Email, string(a.TransportKind), a.Enabled, a.OrderIndex, a.SyncPeriodDays)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Upsert creates a or updates it by id, so the registry can be kept in
// sync with a static config file without erroring on accounts already
// known from a previous run.
func (s *Store) Upsert(a *Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, name, email, transport_kind, enabled, order_index, sync_period_days)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			transport_kind = excluded.transport_kind,
			enabled = excluded.enabled,
			order_index = excluded.order_index,
			sync_period_days = excluded.sync_period_days,
			updated_at = CURRENT_TIMESTAMP
	`, a.ID, a.Name, a.Email, string(a.TransportKind), a.Enabled, a.OrderIndex, a.SyncPeriodDays)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// Get returns the account with the given id.
func (s *Store) Get(id string) (*Account, error) {
	row := s.db.QueryRow(`
		SELECT id, name, email, transport_kind, enabled, order_index, sync_period_days, created_at, updated_at
		FROM accounts WHERE id = ?
	`, id)
	return scanAccount(row)
}

// List returns all accounts ordered by order_index.
func (s *Store) List() ([]*Account, error) {
	rows, err := s.db.Query(`
		SELECT id, name, email, transport_kind, enabled, order_index, sync_period_days, created_at, updated_at
		FROM accounts ORDER BY order_index ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccountRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetEnabled toggles whether an account participates in sync.
func (s *Store) SetEnabled(id string, enabled bool) error {
	_, err := s.db.Exec(`UPDATE accounts SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, enabled, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row *sql.Row) (*Account, error) {
	return scanAny(row)
}

func scanAccountRows(rows *sql.Rows) (*Account, error) {
	return scanAny(rows)
}

func scanAny(s rowScanner) (*Account, error) {
	a := &Account{}
	var kind string
	if err := s.Scan(&a.ID, &a.Name, &a.Email, &kind, &a.Enabled, &a.OrderIndex, &a.SyncPeriodDays, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	a.TransportKind = TransportKind(kind)
	return a, nil
}
