// Package database provides SQLite database functionality for both data
// domains named in spec §6: one file for messages/folders/accounts, one
// for calendars/events. Each domain has its own forward-only, numbered
// migration set, applied by the generic Migrate method below.
package database

// Migration represents a single forward-only schema change.
type Migration struct {
	Version int
	SQL     string
}

// MessageMigrations is the numbered migration set for the message-domain
// database (accounts, folders, messages, messages_fts).
var MessageMigrations = []Migration{
	{
		Version: 1,
		SQL: `
			CREATE TABLE accounts (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				email TEXT NOT NULL UNIQUE,
				transport_kind TEXT NOT NULL DEFAULT 'imap',
				enabled INTEGER NOT NULL DEFAULT 1,
				order_index INTEGER NOT NULL DEFAULT 0,
				sync_period_days INTEGER NOT NULL DEFAULT 30,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE folders (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				display_name TEXT NOT NULL,
				message_count INTEGER DEFAULT 0,
				unread_count INTEGER DEFAULT 0,
				uid_validity INTEGER,
				uid_next INTEGER,
				last_updated DATETIME,
				UNIQUE(account_id, name)
			);

			CREATE INDEX idx_folders_account ON folders(account_id);
		`,
	},
	{
		Version: 2,
		SQL: `
			-- Messages table (envelope/header data); body stored alongside for
			-- simplicity — large bodies are the minority case (spec: 10MB ceiling).
			CREATE TABLE messages (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				folder_name TEXT NOT NULL,
				imap_uid INTEGER NOT NULL DEFAULT 0,
				message_id TEXT,

				in_reply_to TEXT,
				references_json TEXT,
				thread_id TEXT,

				subject TEXT,
				from_name TEXT,
				from_email TEXT,
				to_json TEXT,
				cc_json TEXT,
				bcc_json TEXT,
				reply_to TEXT,
				date DATETIME,

				body_text TEXT,
				body_html TEXT,

				flags_json TEXT NOT NULL DEFAULT '[]',
				labels_json TEXT NOT NULL DEFAULT '[]',
				priority INTEGER NOT NULL DEFAULT 0,

				size INTEGER DEFAULT 0,
				is_draft INTEGER NOT NULL DEFAULT 0,
				is_deleted INTEGER NOT NULL DEFAULT 0,

				sync_version INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				last_synced_at DATETIME,

				UNIQUE(account_id, folder_name, imap_uid)
			);

			CREATE INDEX idx_messages_account_folder ON messages(account_id, folder_name);
			CREATE INDEX idx_messages_date ON messages(date DESC, id ASC);
			CREATE INDEX idx_messages_thread ON messages(thread_id);
			CREATE INDEX idx_messages_message_id ON messages(message_id);

			CREATE TABLE attachments (
				id TEXT PRIMARY KEY,
				message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				filename TEXT NOT NULL,
				content_type TEXT NOT NULL,
				size INTEGER DEFAULT 0,
				content_id TEXT,
				is_inline INTEGER NOT NULL DEFAULT 0,
				local_path TEXT
			);

			CREATE INDEX idx_attachments_message ON attachments(message_id);
		`,
	},
	{
		Version: 3,
		SQL: `
			-- External-content FTS5 shadow table over the indexed columns named
			-- in spec §4.1 (subject, from, to, body_text, body_html), kept
			-- consistent via change-data triggers per spec's FTS consistency
			-- invariant.
			CREATE VIRTUAL TABLE messages_fts USING fts5(
				subject,
				from_name,
				from_email,
				to_json,
				body_text,
				body_html,
				content='messages',
				content_rowid='rowid'
			);

			CREATE TRIGGER messages_fts_insert AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, subject, from_name, from_email, to_json, body_text, body_html)
				VALUES (NEW.rowid, NEW.subject, NEW.from_name, NEW.from_email, NEW.to_json, NEW.body_text, NEW.body_html);
			END;

			CREATE TRIGGER messages_fts_delete AFTER DELETE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, subject, from_name, from_email, to_json, body_text, body_html)
				VALUES ('delete', OLD.rowid, OLD.subject, OLD.from_name, OLD.from_email, OLD.to_json, OLD.body_text, OLD.body_html);
			END;

			CREATE TRIGGER messages_fts_update AFTER UPDATE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, subject, from_name, from_email, to_json, body_text, body_html)
				VALUES ('delete', OLD.rowid, OLD.subject, OLD.from_name, OLD.from_email, OLD.to_json, OLD.body_text, OLD.body_html);
				INSERT INTO messages_fts(rowid, subject, from_name, from_email, to_json, body_text, body_html)
				VALUES (NEW.rowid, NEW.subject, NEW.from_name, NEW.from_email, NEW.to_json, NEW.body_text, NEW.body_html);
			END;
		`,
	},
	{
		Version: 4,
		SQL: `
			-- Schema-version marker table, per spec §6 ("the core records the
			-- current schema version"). The migrations table doubles as this,
			-- but a dedicated single-row table makes the current version cheap
			-- to read without a MAX() scan.
			CREATE TABLE schema_info (
				domain TEXT PRIMARY KEY,
				version INTEGER NOT NULL
			);
			INSERT INTO schema_info (domain, version) VALUES ('messages', 4);
		`,
	},
	{
		Version: 5,
		SQL: `
			-- Encrypted-database fallback for internal/credentials, used when
			-- the OS keyring is unavailable.
			CREATE TABLE account_credentials (
				account_id TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
				encrypted_password TEXT,
				encrypted_oauth_access_token TEXT,
				encrypted_oauth_refresh_token TEXT,
				oauth_expiry DATETIME
			);

			UPDATE schema_info SET version = 5 WHERE domain = 'messages';
		`,
	},
	{
		Version: 6,
		SQL: `
			-- Backs internal/settings.Store: single-row-per-key global
			-- preferences, separate from per-account internal/config state.
			CREATE TABLE settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);

			UPDATE schema_info SET version = 6 WHERE domain = 'messages';
		`,
	},
}

// CalendarMigrations is the numbered migration set for the calendar-domain
// database (calendars, calendar_events, calendar_events_fts,
// calendar_sync_state).
var CalendarMigrations = []Migration{
	{
		Version: 1,
		SQL: `
			CREATE TABLE calendars (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT,
				color TEXT,
				source_kind TEXT NOT NULL DEFAULT 'local',
				source_data TEXT,
				read_only INTEGER NOT NULL DEFAULT 0,
				timezone TEXT NOT NULL DEFAULT 'UTC',
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				last_sync DATETIME
			);
		`,
	},
	{
		Version: 2,
		SQL: `
			CREATE TABLE calendar_events (
				id TEXT PRIMARY KEY,
				uid TEXT NOT NULL UNIQUE,
				calendar_id TEXT NOT NULL REFERENCES calendars(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				description TEXT,
				location TEXT,
				start_at DATETIME NOT NULL,
				end_at DATETIME NOT NULL,
				all_day INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'confirmed',
				priority INTEGER NOT NULL DEFAULT 0,
				organizer_json TEXT,
				attendees_json TEXT NOT NULL DEFAULT '[]',
				recurrence TEXT,
				reminders_json TEXT NOT NULL DEFAULT '[]',
				categories_json TEXT NOT NULL DEFAULT '[]',
				url TEXT,
				sequence INTEGER NOT NULL DEFAULT 0,
				etag TEXT,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX idx_events_calendar ON calendar_events(calendar_id);
			CREATE INDEX idx_events_range ON calendar_events(start_at, end_at);
		`,
	},
	{
		Version: 3,
		SQL: `
			CREATE VIRTUAL TABLE calendar_events_fts USING fts5(
				title,
				description,
				location,
				content='calendar_events',
				content_rowid='rowid'
			);

			CREATE TRIGGER calendar_events_fts_insert AFTER INSERT ON calendar_events BEGIN
				INSERT INTO calendar_events_fts(rowid, title, description, location)
				VALUES (NEW.rowid, NEW.title, NEW.description, NEW.location);
			END;

			CREATE TRIGGER calendar_events_fts_delete AFTER DELETE ON calendar_events BEGIN
				INSERT INTO calendar_events_fts(calendar_events_fts, rowid, title, description, location)
				VALUES ('delete', OLD.rowid, OLD.title, OLD.description, OLD.location);
			END;

			CREATE TRIGGER calendar_events_fts_update AFTER UPDATE ON calendar_events BEGIN
				INSERT INTO calendar_events_fts(calendar_events_fts, rowid, title, description, location)
				VALUES ('delete', OLD.rowid, OLD.title, OLD.description, OLD.location);
				INSERT INTO calendar_events_fts(rowid, title, description, location)
				VALUES (NEW.rowid, NEW.title, NEW.description, NEW.location);
			END;
		`,
	},
	{
		Version: 4,
		SQL: `
			CREATE TABLE calendar_sync_state (
				calendar_id TEXT PRIMARY KEY REFERENCES calendars(id) ON DELETE CASCADE,
				sync_token TEXT,
				last_sync DATETIME,
				last_error TEXT
			);

			CREATE TABLE schema_info (
				domain TEXT PRIMARY KEY,
				version INTEGER NOT NULL
			);
			INSERT INTO schema_info (domain, version) VALUES ('calendars', 4);
		`,
	},
}
