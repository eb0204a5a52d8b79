// Package message implements the Message Store (spec §4.1): an embedded
// relational+FTS database over messages and folders, with upsert,
// pagination, ranked search, and soft delete.
package message

import "time"

// Flag is one of the IMAP-style flags spec §4.3 maps to/from Maildir
// characters. Custom flags beyond the standard five are permitted.
type Flag string

const (
	FlagDraft    Flag = "Draft"
	FlagFlagged  Flag = "Flagged"
	FlagAnswered Flag = "Answered"
	FlagSeen     Flag = "Seen"
	FlagDeleted  Flag = "Deleted"
)

// Address is a single email participant.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Attachment is a single message attachment (spec §3). Exactly one of
// Bytes/Path is populated once materialized.
type Attachment struct {
	ID          string `json:"id"`
	MessageID   string `json:"messageId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	ContentID   string `json:"contentId,omitempty"`
	IsInline    bool   `json:"isInline"`
	Bytes       []byte `json:"-"`
	Path        string `json:"path,omitempty"`
}

// Message is the unit of mail (spec §3).
type Message struct {
	ID        string
	AccountID string
	Folder    string
	IMAPUID   uint32
	MessageID string // RFC 5322 Message-ID, may be absent

	ThreadID   string
	InReplyTo  string
	References []string // oldest -> newest

	Subject   string
	FromName  string
	FromEmail string
	To        []Address
	Cc        []Address
	Bcc       []Address
	ReplyTo   string
	Date      time.Time

	BodyText string
	BodyHTML string

	Attachments []Attachment

	Flags  []Flag
	Labels []string

	Size     int64
	Priority int

	IsDraft   bool
	IsDeleted bool

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncedAt time.Time
	SyncVersion  int64
}

// HasFlag reports whether m carries the given flag.
func (m *Message) HasFlag(f Flag) bool {
	for _, existing := range m.Flags {
		if existing == f {
			return true
		}
	}
	return false
}

// SetFlag adds f to m's flag set if not already present.
func (m *Message) SetFlag(f Flag) {
	if !m.HasFlag(f) {
		m.Flags = append(m.Flags, f)
	}
}

// ClearFlag removes f from m's flag set.
func (m *Message) ClearFlag(f Flag) {
	out := m.Flags[:0]
	for _, existing := range m.Flags {
		if existing != f {
			out = append(out, existing)
		}
	}
	m.Flags = out
}

// PageResult is a single page of a paginated query, with stable ordering
// (date DESC, id ASC) per spec §4.1.
type PageResult struct {
	Messages []*Message
	HasMore  bool
}

// SearchResult wraps a single FTS hit with its relevance rank (lower is
// more relevant, matching SQLite FTS5's bm25() convention).
type SearchResult struct {
	Message *Message
	Rank    float64
}
