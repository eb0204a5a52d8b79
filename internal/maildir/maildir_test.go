package maildir

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-pim/meridian/internal/database"
	"github.com/meridian-pim/meridian/internal/message"
)

func newTestMessageStore(t *testing.T) *message.Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(database.MessageMigrations); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO accounts (id, name, email) VALUES ('acct-1', 'Test', 't@example.com')`); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return message.NewStore(db)
}

func TestFilenameRoundTrip(t *testing.T) {
	codec := NewCodec()
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	name := Filename(date, "abcd-1234-efgh", "host1", []message.Flag{message.FlagSeen, message.FlagFlagged}, codec)

	parsed, err := ParseFilename(name, codec)
	if err != nil {
		t.Fatalf("ParseFilename failed: %v", err)
	}
	if parsed.UnixSeconds != date.Unix() {
		t.Errorf("expected unix seconds %d, got %d", date.Unix(), parsed.UnixSeconds)
	}
	if parsed.Unique != "abcd1234efgh" {
		t.Errorf("expected hyphens stripped from unique, got %q", parsed.Unique)
	}
	if len(parsed.Flags) != 2 {
		t.Fatalf("expected 2 flags, got %d", len(parsed.Flags))
	}
}

func TestEncodeFlagsAlphabetical(t *testing.T) {
	codec := NewCodec()
	got := codec.EncodeFlags([]message.Flag{message.FlagSeen, message.FlagDraft, message.FlagFlagged})
	if got != "DFS" {
		t.Errorf("expected alphabetical DFS, got %q", got)
	}
}

func TestDecodeFlagsDropsUnknown(t *testing.T) {
	codec := NewCodec()
	got := codec.DecodeFlags("SXZ")
	if len(got) != 1 || got[0] != message.FlagSeen {
		t.Errorf("expected only Seen to survive, got %v", got)
	}
}

func TestRegisterFlagRejectsCollision(t *testing.T) {
	codec := NewCodec()
	if err := codec.RegisterFlag("Custom", 'S'); err == nil {
		t.Error("expected collision with standard char to be rejected")
	}
	if err := codec.RegisterFlag("Custom", 'Z'); err != nil {
		t.Errorf("unexpected error registering non-colliding flag: %v", err)
	}
	if err := codec.RegisterFlag("Other", 'Z'); err == nil {
		t.Error("expected collision with prior custom entry to be rejected")
	}
}

func TestNewMessagesGoToNewNoSuffix(t *testing.T) {
	codec := NewCodec()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	name := Filename(date, "id1", "host", nil, codec)
	if name == "" || name[len(name)-1] == ',' {
		t.Fatalf("unexpected filename %q", name)
	}
	if _, err := ParseFilename(name, codec); err != nil {
		t.Fatalf("ParseFilename failed on flagless name: %v", err)
	}
}

func TestIsValidMaildir(t *testing.T) {
	dir := t.TempDir()
	if IsValidMaildir(dir) {
		t.Fatal("empty dir should not be a valid maildir")
	}
	if err := EnsureMaildir(dir); err != nil {
		t.Fatalf("EnsureMaildir failed: %v", err)
	}
	if !IsValidMaildir(dir) {
		t.Fatal("expected maildir to be valid after EnsureMaildir")
	}
}

func TestExportChoosesCurWhenFlagged(t *testing.T) {
	root := t.TempDir()
	ex := NewExporter("testhost")
	m := &message.Message{
		ID:        "msg-1",
		Date:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Subject:   "hello",
		FromEmail: "a@example.com",
		BodyText:  "hi there",
		Flags:     []message.Flag{message.FlagSeen},
	}
	result, err := ex.ExportFolder(root, "INBOX", []*message.Message{m})
	if err != nil {
		t.Fatalf("ExportFolder failed: %v", err)
	}
	if result.MessagesExported != 1 {
		t.Fatalf("expected 1 message exported, got %d", result.MessagesExported)
	}
	entries, err := os.ReadDir(filepath.Join(root, "INBOX", "cur"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected flagged message written to cur/, err=%v entries=%v", err, entries)
	}
}

func TestExportChoosesNewWhenUnflagged(t *testing.T) {
	root := t.TempDir()
	ex := NewExporter("testhost")
	m := &message.Message{
		ID:        "msg-2",
		Date:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Subject:   "hello",
		FromEmail: "a@example.com",
		BodyText:  "hi there",
	}
	if _, err := ex.ExportFolder(root, "INBOX", []*message.Message{m}); err != nil {
		t.Fatalf("ExportFolder failed: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "INBOX", "new"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected unflagged message written to new/, err=%v entries=%v", err, entries)
	}
}

func TestImporterImportWalksMaildirTree(t *testing.T) {
	root := t.TempDir()
	ex := NewExporter("testhost")
	m := &message.Message{
		ID:        "export-1",
		MessageID: "walk-msg@example.com",
		Date:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Subject:   "hello from export",
		FromEmail: "a@example.com",
		BodyText:  "body text",
	}
	if _, err := ex.ExportFolder(root, "INBOX", []*message.Message{m}); err != nil {
		t.Fatalf("ExportFolder failed: %v", err)
	}

	store := newTestMessageStore(t)
	importer := NewImporter(store)
	result, err := importer.Import("acct-1", root, ImportConfig{ValidateFormat: true})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.FoldersFound != 1 {
		t.Errorf("expected 1 folder found, got %d", result.FoldersFound)
	}
	if result.MessagesFound != 1 || result.MessagesImported != 1 {
		t.Errorf("expected 1 message found/imported, got found=%d imported=%d", result.MessagesFound, result.MessagesImported)
	}

	got, err := store.GetMessages("acct-1", "INBOX", 10)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(got))
	}
	if got[0].Subject != "hello from export" {
		t.Errorf("expected subject to survive the export/import round trip, got %q", got[0].Subject)
	}
}

func TestAttachmentRoundTripExportThenImport(t *testing.T) {
	root := t.TempDir()
	attachDir := filepath.Join(root, "attachments")
	content := []byte("%PDF-1.4 placeholder attachment content")

	ex := NewExporter("testhost")
	m := &message.Message{
		ID:        "export-2",
		MessageID: "att-msg@example.com",
		Date:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Subject:   "with attachment",
		FromEmail: "a@example.com",
		ReplyTo:   "replies@example.com",
		BodyText:  "see attached",
		Attachments: []message.Attachment{
			{ID: "att-1", Filename: "report.pdf", ContentType: "application/pdf", Size: int64(len(content)), Bytes: content},
		},
	}
	if _, err := ex.ExportFolder(root, "INBOX", []*message.Message{m}); err != nil {
		t.Fatalf("ExportFolder failed: %v", err)
	}

	store := newTestMessageStore(t)
	importer := NewImporter(store)
	importer.SetAttachmentDir(attachDir)
	result, err := importer.Import("acct-1", root, ImportConfig{ValidateFormat: true})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.MessagesImported != 1 {
		t.Fatalf("expected 1 message imported, got %d (errors: %v)", result.MessagesImported, result.Errors)
	}

	list, err := store.GetMessages("acct-1", "INBOX", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 stored message, got %d (err=%v)", len(list), err)
	}
	if list[0].ReplyTo != "replies@example.com" {
		t.Errorf("expected Reply-To to survive the round trip, got %q", list[0].ReplyTo)
	}

	got, err := store.GetMessage(list[0].ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(got.Attachments))
	}
	a := got.Attachments[0]
	if a.Filename != "report.pdf" {
		t.Errorf("expected filename to survive, got %q", a.Filename)
	}
	if a.ContentType != "application/pdf" {
		t.Errorf("expected content type to survive, got %q", a.ContentType)
	}
	if a.Path == "" {
		t.Fatalf("expected attachment content to be persisted to disk, got empty Path")
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		t.Fatalf("failed to read persisted attachment blob: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("expected attachment content to round-trip byte for byte, got %q", string(data))
	}
}
