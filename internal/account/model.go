// Package account stores the accounts a user's mailboxes and calendars
// belong to. It is intentionally thin: the core does not own transport
// credentials or wire protocol details (spec §1), only the identifiers
// the Message Store, Sync Coordinator, and Calendar Store key off of.
package account

import "time"

// TransportKind names the injected transport family an account uses.
// The core never dials these itself; the value only routes to the right
// transport.Transport implementation at the call site (spec §6).
type TransportKind string

const (
	TransportIMAP   TransportKind = "imap"
	TransportCalDAV TransportKind = "caldav"
	TransportGoogle TransportKind = "google"
	TransportLocal  TransportKind = "local"
)

// Account is a single mail/calendar identity.
type Account struct {
	ID             string
	Name           string
	Email          string
	TransportKind  TransportKind
	Enabled        bool
	OrderIndex     int
	SyncPeriodDays int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
