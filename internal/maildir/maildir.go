// Package maildir implements the Maildir Codec (spec §4.3): filename
// grammar, IMAP-flag mapping, and recursive import/export between a
// filesystem Maildir tree and the Message Store.
package maildir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-pim/meridian/internal/message"
)

// standardFlagChars is the alphabetical, spec-mandated IMAP-to-Maildir
// character mapping (spec §4.3 table).
var standardFlagChars = map[message.Flag]byte{
	message.FlagDraft:    'D',
	message.FlagFlagged:  'F',
	message.FlagAnswered: 'R',
	message.FlagSeen:     'S',
	message.FlagDeleted:  'T',
}

var standardCharFlags = func() map[byte]message.Flag {
	m := map[byte]message.Flag{}
	for f, c := range standardFlagChars {
		m[c] = f
	}
	return m
}()

// Codec holds any custom flag/char mappings layered on top of the
// standard five, per spec §4.3's extensibility clause.
type Codec struct {
	customFlagChars map[message.Flag]byte
	customCharFlags map[byte]message.Flag
}

// NewCodec returns a Codec with only the standard mappings.
func NewCodec() *Codec {
	return &Codec{
		customFlagChars: map[message.Flag]byte{},
		customCharFlags: map[byte]message.Flag{},
	}
}

// RegisterFlag adds a custom IMAP-flag-to-character mapping. Rejected if
// char collides with the standard set or a prior custom entry.
func (c *Codec) RegisterFlag(flag message.Flag, char byte) error {
	if _, ok := standardCharFlags[char]; ok {
		return fmt.Errorf("maildir: flag char %q is reserved by the standard mapping", char)
	}
	if _, ok := c.customCharFlags[char]; ok {
		return fmt.Errorf("maildir: flag char %q already registered", char)
	}
	c.customFlagChars[flag] = char
	c.customCharFlags[char] = flag
	return nil
}

// EncodeFlags renders flags as the alphabetically-sorted Maildir char
// suffix. Flags with no mapping are silently dropped, per spec §4.3.
func (c *Codec) EncodeFlags(flags []message.Flag) string {
	var chars []byte
	for _, f := range flags {
		if ch, ok := standardFlagChars[f]; ok {
			chars = append(chars, ch)
		} else if ch, ok := c.customFlagChars[f]; ok {
			chars = append(chars, ch)
		}
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })
	return string(chars)
}

// DecodeFlags parses a Maildir flag-char suffix. Unknown characters are
// silently dropped, per spec §4.3.
func (c *Codec) DecodeFlags(suffix string) []message.Flag {
	var flags []message.Flag
	for i := 0; i < len(suffix); i++ {
		ch := suffix[i]
		if f, ok := standardCharFlags[ch]; ok {
			flags = append(flags, f)
		} else if f, ok := c.customCharFlags[ch]; ok {
			flags = append(flags, f)
		}
	}
	return flags
}

// Filename builds a Maildir filename per spec's grammar:
// <unix_seconds>.<unique>.<hostname>[:2,<flags>]. unique is the message's
// UUID with hyphens removed, so the name is stable across re-exports of
// the same message.
func Filename(date time.Time, uniqueID, hostname string, flags []message.Flag, codec *Codec) string {
	unique := strings.ReplaceAll(uniqueID, "-", "")
	base := fmt.Sprintf("%d.%s.%s", date.Unix(), unique, hostname)
	if len(flags) == 0 {
		return base
	}
	return base + ":2," + codec.EncodeFlags(flags)
}

// ParsedFilename is the decomposition of a Maildir filename.
type ParsedFilename struct {
	UnixSeconds int64
	Unique      string
	Hostname    string
	Flags       []message.Flag
	HasFlags    bool
}

// ParseFilename decomposes a Maildir filename. Messages in new/ carry no
// flag suffix; cur/ messages may or may not.
func ParseFilename(name string, codec *Codec) (*ParsedFilename, error) {
	base := name
	var flagPart string
	hasFlags := false
	if idx := strings.Index(name, ":2,"); idx >= 0 {
		base = name[:idx]
		flagPart = name[idx+3:]
		hasFlags = true
	}

	parts := strings.SplitN(base, ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("maildir: malformed filename %q", name)
	}
	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("maildir: malformed timestamp in %q: %w", name, err)
	}

	pf := &ParsedFilename{UnixSeconds: secs, Unique: parts[1], Hostname: parts[2], HasFlags: hasFlags}
	if hasFlags {
		pf.Flags = codec.DecodeFlags(flagPart)
	}
	return pf, nil
}

// IsValidMaildir reports whether path contains the three required
// subdirectories.
func IsValidMaildir(path string) bool {
	for _, sub := range []string{"new", "cur", "tmp"} {
		info, err := os.Stat(filepath.Join(path, sub))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

// EnsureMaildir creates new/cur/tmp under path if absent.
func EnsureMaildir(path string) error {
	for _, sub := range []string{"new", "cur", "tmp"} {
		if err := os.MkdirAll(filepath.Join(path, sub), 0750); err != nil {
			return fmt.Errorf("maildir: failed to create %s: %w", sub, err)
		}
	}
	return nil
}
