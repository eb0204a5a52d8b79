// Package folder stores the account-scoped folder hierarchy described in
// spec §3 (Folder) — name, display name, message/unread counts, and IMAP
// UID-validity bookkeeping used by the injected transport's delta contract
// (spec §6: report_folder_state).
package folder

import "time"

// Folder is an account-scoped mailbox folder.
type Folder struct {
	ID           string
	AccountID    string
	Name         string
	DisplayName  string
	MessageCount int
	UnreadCount  int
	UIDValidity  uint32
	UIDNext      uint32
	LastUpdated  time.Time
}
