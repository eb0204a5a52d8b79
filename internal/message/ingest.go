package message

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	"github.com/google/uuid"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/teamwork/tnef"
)

const (
	maxPartSize           = 25 * 1024 * 1024 // spec §4.1: 10MB soft ceiling per message, headroom for base64 overhead
	maxInlineContentSize  = 512 * 1024
	snippetMaxLen         = 200
	bodyParseTimeout      = 10 * time.Second
)

// ParsedBody is the output of parsing a raw RFC 5322 message into a
// Message's body and attachment fields — the ingestion half of spec
// §4.1, invoked by the injected Transport's put_message callback before
// Store.StoreMessage persists the result.
type ParsedBody struct {
	Subject    string
	MessageID  string
	InReplyTo  string
	References []string
	FromName   string
	FromEmail  string
	To, Cc, Bcc []Address
	ReplyTo    string
	Date       time.Time

	BodyText       string
	BodyHTML       string
	HasAttachments bool
	Attachments    []Attachment

	DKIMVerified bool
}

var sanitizer = bluemonday.UGCPolicy()

// Parser parses raw RFC 5322 messages into Message bodies, with a bound
// timeout so a pathological message can't stall the ingestion pipeline
// indefinitely.
type Parser struct {
	log           zerolog.Logger
	attachmentDir string
}

// NewParser creates a message body parser. Non-inline or oversized
// attachment content is dropped (Size still recorded, Bytes/Path left
// empty) until SetAttachmentDir gives it somewhere durable to live —
// spec §3's "on-disk blob store (if used) is the durable owner".
func NewParser() *Parser {
	return &Parser{log: logging.WithComponent("message-ingest")}
}

// SetAttachmentDir points the parser at a directory for attachment blobs
// that don't fit inline in the Message Store (spec §3: attachments over
// maxInlineContentSize, or any non-inline attachment, get a Path instead
// of in-memory Bytes). The directory is created on first write.
func (p *Parser) SetAttachmentDir(dir string) {
	p.attachmentDir = dir
}

// ParseRaw parses raw, a full RFC 5322 message (headers + body), into a
// ParsedBody. Falls back to a best-effort plain-text extraction if
// parsing times out or the message is malformed, rather than dropping
// the message entirely; the fallback result carries BodyText only, with
// no header fields.
func (p *Parser) ParseRaw(raw []byte) *ParsedBody {
	done := make(chan *ParsedBody, 1)
	go func() {
		done <- p.parseInternal(raw)
	}()

	select {
	case result := <-done:
		return result
	case <-time.After(bodyParseTimeout):
		p.log.Warn().Int("rawLen", len(raw)).Msg("body parsing timed out, falling back to partial extraction")
		return &ParsedBody{BodyText: extractPlainTextFallback(raw)}
	}
}

func (p *Parser) parseInternal(raw []byte) *ParsedBody {
	result := &ParsedBody{}
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil {
		p.log.Debug().Err(err).Msg("failed to parse message, treating as plain text")
		result.BodyText = string(raw)
		return result
	}

	p.applyHeaders(entity.Header, result)

	if verified, err := verifyDKIM(raw); err == nil {
		result.DKIMVerified = verified
	}

	if mr := entity.MultipartReader(); mr != nil {
		p.parseMultipart(mr, result)
	} else {
		p.parseSinglePart(entity, result)
	}

	result.BodyHTML = sanitizer.Sanitize(result.BodyHTML)
	return result
}

func (p *Parser) applyHeaders(h gomessage.Header, result *ParsedBody) {
	result.Subject = decodeMIMEWord(h.Get("Subject"))
	result.MessageID = strings.Trim(h.Get("Message-Id"), "<>")
	if irt := strings.Trim(h.Get("In-Reply-To"), "<>"); irt != "" {
		result.InReplyTo = irt
	}
	if refs := h.Get("References"); refs != "" {
		for _, r := range strings.Fields(refs) {
			result.References = append(result.References, strings.Trim(r, "<>"))
		}
	}
	if from := parseAddressList(h.Get("From")); len(from) > 0 {
		result.FromName = from[0].Name
		result.FromEmail = from[0].Email
	}
	result.To = parseAddressList(h.Get("To"))
	result.Cc = parseAddressList(h.Get("Cc"))
	result.Bcc = parseAddressList(h.Get("Bcc"))
	if replyTo := parseAddressList(h.Get("Reply-To")); len(replyTo) > 0 {
		result.ReplyTo = replyTo[0].Email
	}
	if date, err := h.Date(); err == nil {
		result.Date = date.UTC()
	}
}

func (p *Parser) parseMultipart(mr gomessage.MultipartReader, result *ParsedBody) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			if !errors.Is(err, io.EOF) && !strings.Contains(err.Error(), "EOF") {
				p.log.Debug().Err(err).Msg("error reading multipart")
			}
			return
		}

		contentType, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		disposition, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		contentID := strings.Trim(part.Header.Get("Content-Id"), "<>")

		if contentType == "application/ms-tnef" || strings.HasSuffix(strings.ToLower(dispParams["filename"]), ".dat") {
			if atts, ok := p.extractTNEF(part); ok {
				result.HasAttachments = true
				result.Attachments = append(result.Attachments, atts...)
				continue
			}
		}

		if disposition == "attachment" {
			result.HasAttachments = true
			isInline := contentID != ""
			if att := p.extractAttachment(part, contentType, dispParams, contentID, isInline); att != nil {
				result.Attachments = append(result.Attachments, *att)
			}
			continue
		}

		if strings.HasPrefix(contentType, "multipart/") {
			if nested := part.MultipartReader(); nested != nil {
				p.parseMultipart(nested, result)
			}
			continue
		}

		if (disposition == "inline" && strings.HasPrefix(contentType, "image/")) ||
			(contentID != "" && strings.HasPrefix(contentType, "image/")) {
			result.HasAttachments = true
			if att := p.extractAttachment(part, contentType, dispParams, contentID, true); att != nil {
				result.Attachments = append(result.Attachments, *att)
			}
			continue
		}

		partBody, err := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
		if err != nil && len(partBody) == 0 {
			continue
		}

		charsetName := params["charset"]
		if charsetName == "" && contentType == "text/html" {
			charsetName = extractCharsetFromHTML(partBody)
		}
		decoded := decodeCharset(partBody, charsetName)

		switch contentType {
		case "text/plain":
			if result.BodyText == "" {
				result.BodyText = decoded
			}
		case "text/html":
			if result.BodyHTML == "" {
				result.BodyHTML = decoded
			}
		default:
			if contentType != "" && !strings.HasPrefix(contentType, "text/") {
				result.HasAttachments = true
			}
		}
	}
}

func (p *Parser) parseSinglePart(entity *gomessage.Entity, result *ParsedBody) {
	contentType, params, _ := mime.ParseMediaType(entity.Header.Get("Content-Type"))
	body, err := io.ReadAll(io.LimitReader(entity.Body, maxPartSize))
	if err != nil {
		return
	}
	charsetName := params["charset"]
	if charsetName == "" && contentType == "text/html" {
		charsetName = extractCharsetFromHTML(body)
	}
	decoded := decodeCharset(body, charsetName)
	switch contentType {
	case "text/html":
		result.BodyHTML = decoded
	default:
		result.BodyText = decoded
	}
}

func (p *Parser) extractAttachment(part *gomessage.Entity, contentType string, dispParams map[string]string, contentID string, isInline bool) *Attachment {
	filename := decodeMIMEWord(dispParams["filename"])
	if filename == "" {
		_, ctParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		filename = decodeMIMEWord(ctParams["name"])
	}
	if filename == "" {
		filename = "attachment" + extensionForContentType(contentType)
	}

	att := &Attachment{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentType: contentType,
		ContentID:   contentID,
		IsInline:    isInline,
	}

	content, err := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
	if err != nil {
		p.log.Debug().Err(err).Str("filename", filename).Msg("failed to read attachment content")
		return att
	}
	att.Size = int64(len(content))

	// Bytes is a process-lifetime convenience (spec §3: "owned by the
	// process only while materialized") — the Message Store never persists
	// it, only Path, so anything meant to survive past this handler call
	// needs writing to the blob store too.
	if isInline && len(content) <= maxInlineContentSize {
		att.Bytes = content
	}
	if p.attachmentDir == "" {
		if att.Bytes == nil {
			p.log.Warn().Str("filename", filename).Int64("size", att.Size).
				Msg("attachment dropped: no attachment directory configured")
		}
		return att
	}
	path, err := p.writeAttachmentBlob(att.ID, content)
	if err != nil {
		p.log.Warn().Err(err).Str("filename", filename).Msg("failed to persist attachment to disk")
		return att
	}
	att.Path = path
	return att
}

// writeAttachmentBlob writes content to <attachmentDir>/<id>, creating the
// directory on first use, and returns the path stored on the Attachment.
func (p *Parser) writeAttachmentBlob(id string, content []byte) (string, error) {
	if err := os.MkdirAll(p.attachmentDir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(p.attachmentDir, id)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// extractTNEF unpacks a winmail.dat attachment into its constituent
// attachments, a common occurrence with Outlook senders that otherwise
// hide real file content behind an opaque TNEF blob.
func (p *Parser) extractTNEF(part *gomessage.Entity) ([]Attachment, bool) {
	raw, err := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
	if err != nil {
		return nil, false
	}
	data, err := tnef.Decode(raw)
	if err != nil {
		p.log.Debug().Err(err).Msg("failed to decode TNEF attachment")
		return nil, false
	}
	var out []Attachment
	for _, a := range data.Attachments {
		out = append(out, Attachment{
			ID:          uuid.NewString(),
			Filename:    a.Title,
			ContentType: "application/octet-stream",
			Size:        int64(len(a.Data)),
			Bytes:       a.Data,
		})
	}
	return out, len(out) > 0
}

func extensionForContentType(ct string) string {
	if strings.HasPrefix(ct, "image/") {
		if parts := strings.SplitN(ct, "/", 2); len(parts) == 2 {
			return "." + parts[1]
		}
	}
	return ".bin"
}

func extractPlainTextFallback(raw []byte) string {
	rawStr := string(raw)
	bodyStart := strings.Index(rawStr, "\r\n\r\n")
	if bodyStart == -1 {
		bodyStart = strings.Index(rawStr, "\n\n")
	}
	if bodyStart == -1 {
		return ""
	}
	body := rawStr[bodyStart+4:]

	var result strings.Builder
	for _, r := range body {
		if (r >= 32 && r < 127) || r == '\n' || r == '\r' || r == '\t' {
			result.WriteRune(r)
		}
	}
	text := strings.TrimSpace(result.String())
	const maxFallback = 10 * 1024
	if len(text) > maxFallback {
		text = text[:maxFallback] + "... [truncated]"
	}
	return text
}

// GenerateSnippet produces a short quote-stripped preview of body, used by
// list views that don't want the full text.
func GenerateSnippet(body string, maxLen int) string {
	var parts []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, ">") {
			parts = append(parts, line)
		}
	}
	text := strings.Join(parts, " ")
	if len(text) > maxLen {
		text = text[:maxLen] + "..."
	}
	return text
}
