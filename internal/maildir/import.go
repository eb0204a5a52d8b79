package maildir

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/meridian-pim/meridian/internal/message"
	"github.com/rs/zerolog"
)

const maxImportDepth = 10

// ImportConfig controls a single import run, mirroring the Maildir
// section of spec §6's configuration surface.
type ImportConfig struct {
	IncludeDrafts      bool
	IncludeDeleted     bool
	PreserveTimestamps bool
	SkipDuplicates     bool
	ValidateFormat     bool
}

// ImportResult is the per-batch failure model spec §4.3 requires: a
// single bad message never aborts the run.
type ImportResult struct {
	FoldersFound      int
	MessagesFound     int
	MessagesImported  int
	MessagesFailed    int
	DuplicatesSkipped int
	Errors            []string
}

// Importer walks a Maildir tree and ingests every message into the
// Message Store.
type Importer struct {
	store  *message.Store
	parser *message.Parser
	codec  *Codec
	log    zerolog.Logger
}

// NewImporter creates an Importer writing into store.
func NewImporter(store *message.Store) *Importer {
	return &Importer{
		store:  store,
		parser: message.NewParser(),
		codec:  NewCodec(),
		log:    logging.WithComponent("maildir-import"),
	}
}

// SetAttachmentDir persists non-inline or oversized attachment content
// under dir instead of dropping it; see message.Parser.SetAttachmentDir.
func (im *Importer) SetAttachmentDir(dir string) {
	im.parser.SetAttachmentDir(dir)
}

// Import walks root recursively (max depth 10), treating every
// Maildir-shaped subdirectory as a folder named by its path relative to
// root, per spec §4.3.
func (im *Importer) Import(accountID, root string, cfg ImportConfig) (*ImportResult, error) {
	result := &ImportResult{}
	if err := im.walk(accountID, root, root, 0, cfg, result); err != nil {
		return result, err
	}
	return result, nil
}

func (im *Importer) walk(accountID, root, dir string, depth int, cfg ImportConfig, result *ImportResult) error {
	if depth > maxImportDepth {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("maildir: failed to read %s: %w", dir, err)
	}

	if cfg.ValidateFormat && looksLikeMaildirRoot(entries) {
		if IsValidMaildir(dir) {
			folderName := folderNameFor(root, dir)
			result.FoldersFound++
			im.importFolder(accountID, folderName, dir, cfg, result)
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: missing new/cur/tmp, skipped", dir))
			return nil
		}
	}

	if !cfg.ValidateFormat && IsValidMaildir(dir) {
		folderName := folderNameFor(root, dir)
		result.FoldersFound++
		im.importFolder(accountID, folderName, dir, cfg, result)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if e.Name() == "new" || e.Name() == "cur" || e.Name() == "tmp" {
			continue
		}
		if err := im.walk(accountID, root, filepath.Join(dir, e.Name()), depth+1, cfg, result); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}
	return nil
}

func looksLikeMaildirRoot(entries []os.DirEntry) bool {
	want := map[string]bool{"new": false, "cur": false, "tmp": false}
	for _, e := range entries {
		if e.IsDir() {
			if _, ok := want[e.Name()]; ok {
				want[e.Name()] = true
			}
		}
	}
	return want["new"] || want["cur"] || want["tmp"]
}

func folderNameFor(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return "INBOX"
	}
	return filepath.ToSlash(rel)
}

func (im *Importer) importFolder(accountID, folderName, dir string, cfg ImportConfig, result *ImportResult) {
	for _, sub := range []string{"cur", "new"} {
		subdir := filepath.Join(dir, sub)
		entries, err := os.ReadDir(subdir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			result.MessagesFound++
			if err := im.importOne(accountID, folderName, subdir, e.Name(), sub == "cur", cfg); err != nil {
				if isDuplicate(err) {
					result.DuplicatesSkipped++
					continue
				}
				result.MessagesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", subdir, e.Name(), err))
				continue
			}
			result.MessagesImported++
		}
	}
}

func (im *Importer) importOne(accountID, folderName, subdir, filename string, fromCur bool, cfg ImportConfig) error {
	raw, err := os.ReadFile(filepath.Join(subdir, filename))
	if err != nil {
		return err
	}

	parsed := im.parser.ParseRaw(raw)

	if cfg.SkipDuplicates && parsed.MessageID != "" {
		if exists, err := im.store.ExistsByMessageID(accountID, parsed.MessageID); err == nil && exists {
			return errDuplicate
		}
	}

	var flags []message.Flag
	if fromCur {
		if pf, err := ParseFilename(filename, im.codec); err == nil {
			flags = pf.Flags
		}
	}
	if !cfg.IncludeDrafts && hasFlag(flags, message.FlagDraft) {
		return nil
	}
	if !cfg.IncludeDeleted && hasFlag(flags, message.FlagDeleted) {
		return nil
	}

	m := &message.Message{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		Folder:     folderName,
		MessageID:  parsed.MessageID,
		InReplyTo:  parsed.InReplyTo,
		References: parsed.References,
		Subject:    parsed.Subject,
		FromName:   parsed.FromName,
		FromEmail:  parsed.FromEmail,
		To:         parsed.To,
		Cc:         parsed.Cc,
		Bcc:        parsed.Bcc,
		ReplyTo:    parsed.ReplyTo,
		Date:       parsed.Date,
		BodyText:   parsed.BodyText,
		BodyHTML:   parsed.BodyHTML,
		Flags:      flags,
		Size:       int64(len(raw)),
		IsDraft:    hasFlag(flags, message.FlagDraft),
		IsDeleted:  hasFlag(flags, message.FlagDeleted),
	}
	for _, a := range parsed.Attachments {
		m.Attachments = append(m.Attachments, a)
	}

	if cfg.PreserveTimestamps {
		if pf, err := ParseFilename(filename, im.codec); err == nil {
			m.Date = timeFromUnix(pf.UnixSeconds)
		}
	}

	return im.store.StoreMessage(m)
}

func hasFlag(flags []message.Flag, want message.Flag) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

type duplicateError struct{}

func (duplicateError) Error() string { return "duplicate message, skipped" }

var errDuplicate = duplicateError{}

func isDuplicate(err error) bool {
	_, ok := err.(duplicateError)
	return ok
}

func timeFromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
