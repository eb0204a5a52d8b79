package maildir

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/meridian-pim/meridian/internal/message"
	"github.com/rs/zerolog"
)

// ExportResult mirrors ImportResult's shape for symmetry, reporting how
// many messages were written and any per-message failures.
type ExportResult struct {
	MessagesExported int
	MessagesFailed   int
	Errors           []string
}

// Exporter writes folders back out to a Maildir tree.
type Exporter struct {
	codec    *Codec
	hostname string
	log      zerolog.Logger
}

// NewExporter creates an Exporter. hostname is embedded in filenames per
// spec §4.3's grammar; an empty hostname falls back to "localhost".
func NewExporter(hostname string) *Exporter {
	if hostname == "" {
		hostname = "localhost"
	}
	return &Exporter{codec: NewCodec(), hostname: hostname, log: logging.WithComponent("maildir-export")}
}

// ExportFolder writes every message in msgs to
// <root>/<folderPath>/{new,cur,tmp}/, choosing cur/ when a message has
// any flags and new/ otherwise, and serializes the message body as a
// minimal RFC 5322 document.
func (ex *Exporter) ExportFolder(root, folderPath string, msgs []*message.Message) (*ExportResult, error) {
	dir := filepath.Join(root, folderPath)
	if err := EnsureMaildir(dir); err != nil {
		return nil, err
	}

	result := &ExportResult{}
	for _, m := range msgs {
		if err := ex.exportOne(dir, m); err != nil {
			result.MessagesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", m.ID, err))
			continue
		}
		result.MessagesExported++
	}
	return result, nil
}

func (ex *Exporter) exportOne(dir string, m *message.Message) error {
	name := Filename(m.Date, m.ID, ex.hostname, m.Flags, ex.codec)
	destSub := "new"
	if len(m.Flags) > 0 {
		destSub = "cur"
	}

	tmpPath := filepath.Join(dir, "tmp", name)
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("maildir: failed to create tmp file: %w", err)
	}

	raw, err := serializeRFC5322(m)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("maildir: failed to serialize message: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("maildir: failed to write message: %w", err)
	}
	f.Close()

	destPath := filepath.Join(dir, destSub, name)
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("maildir: failed to move message into place: %w", err)
	}
	return nil
}

// serializeRFC5322 renders an RFC 5322 message from m's envelope, body, and
// attachments. With no attachments it writes a single representative body
// part (preferring body_html); with attachments it wraps that body part
// plus one part per attachment in multipart/mixed, each attachment
// base64-encoded.
func serializeRFC5322(m *message.Message) ([]byte, error) {
	var buf bytes.Buffer
	writeHeader := func(name, value string) {
		if value == "" {
			return
		}
		buf.WriteString(name + ": " + value + "\r\n")
	}

	writeHeader("Message-Id", angleWrap(m.MessageID))
	writeHeader("Subject", m.Subject)
	writeHeader("From", formatAddress(message.Address{Name: m.FromName, Email: m.FromEmail}))
	writeHeader("To", formatAddressList(m.To))
	writeHeader("Cc", formatAddressList(m.Cc))
	writeHeader("Reply-To", m.ReplyTo)
	writeHeader("In-Reply-To", angleWrap(m.InReplyTo))
	if len(m.References) > 0 {
		var refs string
		for i, r := range m.References {
			if i > 0 {
				refs += " "
			}
			refs += angleWrap(r)
		}
		writeHeader("References", refs)
	}
	writeHeader("Date", m.Date.Format("Mon, 02 Jan 2006 15:04:05 -0700"))

	if len(m.Attachments) == 0 {
		writeBody(&buf, m)
		return buf.Bytes(), nil
	}

	mpWriter := multipart.NewWriter(&buf)
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mpWriter.Boundary()))
	buf.WriteString("\r\n")

	bodyPart, err := mpWriter.CreatePart(bodyPartHeader(m))
	if err != nil {
		return nil, fmt.Errorf("maildir: failed to open body part: %w", err)
	}
	if m.BodyHTML != "" {
		bodyPart.Write([]byte(m.BodyHTML))
	} else {
		bodyPart.Write([]byte(m.BodyText))
	}

	for i := range m.Attachments {
		if err := writeAttachmentPart(mpWriter, &m.Attachments[i]); err != nil {
			return nil, fmt.Errorf("maildir: failed to write attachment %q: %w", m.Attachments[i].Filename, err)
		}
	}

	if err := mpWriter.Close(); err != nil {
		return nil, fmt.Errorf("maildir: failed to close multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeBody(buf *bytes.Buffer, m *message.Message) {
	if m.BodyHTML != "" {
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(m.BodyHTML)
	} else {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(m.BodyText)
	}
}

func bodyPartHeader(m *message.Message) textproto.MIMEHeader {
	h := textproto.MIMEHeader{}
	if m.BodyHTML != "" {
		h.Set("Content-Type", "text/html; charset=utf-8")
	} else {
		h.Set("Content-Type", "text/plain; charset=utf-8")
	}
	return h
}

// writeAttachmentPart writes one MIME part for an attachment, reading its
// content from Bytes when still materialized (fresh off the wire) or from
// Path (the durable blob store) otherwise — at most one of the two is set
// per spec §3.
func writeAttachmentPart(w *multipart.Writer, a *message.Attachment) error {
	content := a.Bytes
	if content == nil && a.Path != "" {
		b, err := os.ReadFile(a.Path)
		if err != nil {
			return err
		}
		content = b
	}
	if content == nil {
		return fmt.Errorf("no content available (bytes and path both empty)")
	}

	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "base64")
	disposition := "attachment"
	if a.IsInline {
		disposition = "inline"
	}
	h.Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, a.Filename))
	if a.ContentID != "" {
		h.Set("Content-Id", angleWrap(a.ContentID))
	}

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	enc := base64.NewEncoder(base64.StdEncoding, part)
	if _, err := enc.Write(content); err != nil {
		return err
	}
	return enc.Close()
}

func angleWrap(id string) string {
	if id == "" {
		return ""
	}
	if id[0] == '<' {
		return id
	}
	return "<" + id + ">"
}

func formatAddress(a message.Address) string {
	if a.Email == "" {
		return ""
	}
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%q <%s>", a.Name, a.Email)
}

func formatAddressList(addrs []message.Address) string {
	var out string
	for i, a := range addrs {
		if i > 0 {
			out += ", "
		}
		out += formatAddress(a)
	}
	return out
}
