package calendar

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

// Store is the Calendar Store (spec §4.2), structurally analogous to
// internal/message.Store.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a Calendar Store backed by db. db must already have
// database.CalendarMigrations applied.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, log: logging.WithComponent("calendar")}
}

// StoreCalendar upserts a calendar by id.
func (s *Store) StoreCalendar(c *Calendar) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	_, err := s.db.Exec(`
		INSERT INTO calendars (id, name, description, color, source_kind, source_data, read_only, timezone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description, color = excluded.color,
			source_kind = excluded.source_kind, source_data = excluded.source_data,
			read_only = excluded.read_only, timezone = excluded.timezone, updated_at = CURRENT_TIMESTAMP
	`, c.ID, c.Name, c.Description, c.Color, string(c.SourceKind), c.SourceData, c.ReadOnly, c.Timezone)
	if err != nil {
		return errs.Storage(fmt.Errorf("failed to store calendar: %w", err))
	}
	return nil
}

// GetCalendars returns every known calendar.
func (s *Store) GetCalendars() ([]*Calendar, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, color, source_kind, source_data, read_only, timezone, created_at, updated_at, last_sync
		FROM calendars ORDER BY name ASC
	`)
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("failed to list calendars: %w", err))
	}
	defer rows.Close()

	var out []*Calendar
	for rows.Next() {
		c := &Calendar{}
		var kind string
		var lastSync sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &kind, &c.SourceData, &c.ReadOnly, &c.Timezone, &c.CreatedAt, &c.UpdatedAt, &lastSync); err != nil {
			return nil, errs.Storage(fmt.Errorf("failed to scan calendar: %w", err))
		}
		c.SourceKind = SourceKind(kind)
		if lastSync.Valid {
			c.LastSync = lastSync.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// StoreEvent upserts an event by id; on conflict with higher incoming
// sequence, overwrite, else ignore — the authoritative rule for
// invitation updates per spec §4.2.
func (s *Store) StoreEvent(e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = StatusConfirmed
	}

	organizerJSON, _ := json.Marshal(e.Organizer)
	attendeesJSON, _ := json.Marshal(e.Attendees)
	remindersJSON, _ := json.Marshal(e.Reminders)
	categoriesJSON, _ := json.Marshal(e.Categories)

	tx, err := s.db.Begin()
	if err != nil {
		return errs.Storage(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var existingID string
	var existingSeq int
	lookupErr := tx.QueryRow(`SELECT id, sequence FROM calendar_events WHERE uid = ?`, e.UID).Scan(&existingID, &existingSeq)

	switch lookupErr {
	case nil:
		if e.Sequence < existingSeq {
			return nil // lower sequence never wins
		}
		e.ID = existingID
		_, err = tx.Exec(`
			UPDATE calendar_events SET
				calendar_id = ?, title = ?, description = ?, location = ?,
				start_at = ?, end_at = ?, all_day = ?, status = ?, priority = ?,
				organizer_json = ?, attendees_json = ?, recurrence = ?, reminders_json = ?,
				categories_json = ?, url = ?, sequence = ?, etag = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, e.CalendarID, e.Title, e.Description, e.Location, e.StartAt, e.EndAt, e.AllDay, string(e.Status), e.Priority,
			string(organizerJSON), string(attendeesJSON), e.Recurrence, string(remindersJSON),
			string(categoriesJSON), e.URL, e.Sequence, e.ETag, e.ID)
	case sql.ErrNoRows:
		_, err = tx.Exec(`
			INSERT INTO calendar_events (
				id, uid, calendar_id, title, description, location, start_at, end_at, all_day,
				status, priority, organizer_json, attendees_json, recurrence, reminders_json,
				categories_json, url, sequence, etag
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.UID, e.CalendarID, e.Title, e.Description, e.Location, e.StartAt, e.EndAt, e.AllDay,
			string(e.Status), e.Priority, string(organizerJSON), string(attendeesJSON), e.Recurrence,
			string(remindersJSON), string(categoriesJSON), e.URL, e.Sequence, e.ETag)
	default:
		return errs.Storage(fmt.Errorf("failed to look up existing event: %w", lookupErr))
	}
	if err != nil {
		return errs.Storage(fmt.Errorf("failed to upsert event: %w", err))
	}
	return tx.Commit()
}

// GetEventByUID returns the event with the given globally-unique UID, or
// nil if absent.
func (s *Store) GetEventByUID(uid string) (*Event, error) {
	row := s.db.QueryRow(eventSelectColumns+` FROM calendar_events WHERE uid = ?`, uid)
	e, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Storage(fmt.Errorf("failed to get event: %w", err))
	}
	return e, nil
}

// GetEvents returns events in calendarID overlapping [start, end] — the
// standard overlap test from spec §4.2: event.end >= start AND event.start <= end.
func (s *Store) GetEvents(calendarID string, start, end time.Time) ([]*Event, error) {
	rows, err := s.db.Query(eventSelectColumns+`
		FROM calendar_events WHERE calendar_id = ? AND end_at >= ? AND start_at <= ?
		ORDER BY start_at ASC
	`, calendarID, start, end)
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("failed to query events: %w", err))
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetUpcoming returns events starting within [now, now+hours) across all
// calendars, ascending, per spec §4.2.
func (s *Store) GetUpcoming(now time.Time, hours int, limit int) ([]*Event, error) {
	until := now.Add(time.Duration(hours) * time.Hour)
	rows, err := s.db.Query(eventSelectColumns+`
		FROM calendar_events WHERE start_at >= ? AND start_at < ? AND status != 'cancelled'
		ORDER BY start_at ASC LIMIT ?
	`, now, until, limit)
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("failed to query upcoming events: %w", err))
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Search performs ranked full-text retrieval over {title, description,
// location}.
func (s *Store) Search(query string, limit int) ([]*Event, error) {
	rows, err := s.db.Query(`
		SELECT e.id FROM calendar_events e
		JOIN calendar_events_fts fts ON e.rowid = fts.rowid
		WHERE calendar_events_fts MATCH ?
		ORDER BY bm25(calendar_events_fts) LIMIT ?
	`, prepareFTSQuery(query), limit)
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("failed to search events: %w", err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Storage(err)
		}
		ids = append(ids, id)
	}

	var out []*Event
	for _, id := range ids {
		row := s.db.QueryRow(eventSelectColumns+` FROM calendar_events WHERE id = ?`, id)
		e, err := scanEvent(row)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// DeleteEvent removes an event by id.
func (s *Store) DeleteEvent(id string) error {
	_, err := s.db.Exec(`DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return errs.Storage(fmt.Errorf("failed to delete event: %w", err))
	}
	return nil
}

const eventSelectColumns = `
	SELECT id, uid, calendar_id, title, description, location, start_at, end_at, all_day,
		status, priority, organizer_json, attendees_json, recurrence, reminders_json,
		categories_json, url, sequence, etag, created_at, updated_at
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*Event, error) {
	e := &Event{}
	var status string
	var organizerJSON, attendeesJSON, remindersJSON, categoriesJSON sql.NullString
	var recurrence, url, etag sql.NullString

	err := row.Scan(
		&e.ID, &e.UID, &e.CalendarID, &e.Title, &e.Description, &e.Location, &e.StartAt, &e.EndAt, &e.AllDay,
		&status, &e.Priority, &organizerJSON, &attendeesJSON, &recurrence, &remindersJSON,
		&categoriesJSON, &url, &e.Sequence, &etag, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = EventStatus(status)
	e.Recurrence = recurrence.String
	e.URL = url.String
	e.ETag = etag.String

	if organizerJSON.Valid && organizerJSON.String != "" && organizerJSON.String != "null" {
		json.Unmarshal([]byte(organizerJSON.String), &e.Organizer)
	}
	json.Unmarshal([]byte(attendeesJSON.String), &e.Attendees)
	json.Unmarshal([]byte(remindersJSON.String), &e.Reminders)
	json.Unmarshal([]byte(categoriesJSON.String), &e.Categories)

	return e, nil
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errs.Storage(fmt.Errorf("failed to scan event: %w", err))
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func prepareFTSQuery(query string) string {
	if query == "" {
		return `""`
	}
	var out string
	for i, term := range splitFields(query) {
		if i > 0 {
			out += " "
		}
		out += `"` + term + `"*`
	}
	return out
}

func splitFields(s string) []string {
	var fields []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			fields = append(fields, string(cur))
			cur = nil
		}
	}
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			flush()
			continue
		}
		cur = append(cur, r)
	}
	flush()
	return fields
}
