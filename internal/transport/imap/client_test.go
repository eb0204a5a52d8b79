package imap

import (
	"context"
	"testing"

	"github.com/emersion/go-imap/v2"
)

func TestNewClientNotConnected(t *testing.T) {
	c := NewClient(DefaultConfig())

	if err := c.Login(); err == nil {
		t.Fatalf("expected Login to fail before Connect")
	}
	if _, err := c.ListMailboxes(); err == nil {
		t.Fatalf("expected ListMailboxes to fail before Connect")
	}
	if _, err := c.SelectMailbox(context.Background(), "INBOX"); err == nil {
		t.Fatalf("expected SelectMailbox to fail before Connect")
	}
	if _, err := c.GetMailboxStatus(context.Background(), "INBOX"); err == nil {
		t.Fatalf("expected GetMailboxStatus to fail before Connect")
	}
	if err := c.AddMessageFlags([]imap.UID{1}, []imap.Flag{imap.FlagSeen}); err == nil {
		t.Fatalf("expected AddMessageFlags to fail before Connect")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close on a never-connected client should be a no-op, got %v", err)
	}
	if err := c.ForceClose(); err != nil {
		t.Fatalf("ForceClose on a never-connected client should be a no-op, got %v", err)
	}
}

func TestAddMessageFlagsEmptyUIDsIsNoop(t *testing.T) {
	c := NewClient(DefaultConfig())
	// Empty UID slice short-circuits before touching c.client, even though
	// the client was never connected.
	if err := c.AddMessageFlags(nil, []imap.Flag{imap.FlagSeen}); err != nil {
		t.Fatalf("expected nil error for empty uids, got %v", err)
	}
	if err := c.RemoveMessageFlags(nil, []imap.Flag{imap.FlagSeen}); err != nil {
		t.Fatalf("expected nil error for empty uids, got %v", err)
	}
	if err := c.DeleteMessagesByUID(nil); err != nil {
		t.Fatalf("expected nil error for empty uids, got %v", err)
	}
	if _, err := c.CopyMessages(nil, "Archive"); err != nil {
		t.Fatalf("expected nil error for empty uids, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Port != 993 {
		t.Errorf("Port = %d, want 993", cfg.Port)
	}
	if cfg.Security != SecurityTLS {
		t.Errorf("Security = %v, want SecurityTLS", cfg.Security)
	}
}

func TestDetermineFolderType(t *testing.T) {
	cases := []struct {
		name  string
		attrs []imap.MailboxAttr
		want  FolderType
	}{
		{"INBOX", nil, FolderTypeInbox},
		{"Sent Items", nil, FolderTypeSent},
		{"Drafts", nil, FolderTypeDrafts},
		{"Trash", nil, FolderTypeTrash},
		{"Spam", nil, FolderTypeSpam},
		{"Archive", nil, FolderTypeArchive},
		{"Random Folder", nil, FolderTypeFolder},
		{"[Gmail]/Sent Mail", []imap.MailboxAttr{imap.MailboxAttrSent}, FolderTypeSent},
	}
	for _, tc := range cases {
		if got := determineFolderType(tc.name, tc.attrs); got != tc.want {
			t.Errorf("determineFolderType(%q, %v) = %v, want %v", tc.name, tc.attrs, got, tc.want)
		}
	}
}

func TestContainsIgnoreCase(t *testing.T) {
	if !containsIgnoreCase("[Gmail]/Sent Mail", "sent") {
		t.Errorf("expected case-insensitive match")
	}
	if containsIgnoreCase("INBOX", "sent") {
		t.Errorf("expected no match")
	}
}
