package message

import (
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	msgcharset "github.com/emersion/go-message/charset"
	"github.com/meridian-pim/meridian/internal/logging"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// decodeCharset converts content from declaredCharset to UTF-8, falling
// back to auto-detection when the declared charset is missing, wrong, or
// produces invalid/gibberish UTF-8 — a routine occurrence with email sent
// by mislabeling MTAs.
func decodeCharset(content []byte, declaredCharset string) string {
	log := logging.WithComponent("charset")

	if declaredCharset == "" || strings.EqualFold(declaredCharset, "utf-8") || strings.EqualFold(declaredCharset, "us-ascii") {
		if utf8.Valid(content) {
			str := string(content)
			if !looksLikeGibberish(str) {
				return str
			}
		}

		enc, name, _ := charset.DetermineEncoding(content, "text/html")
		if decoded, err := enc.NewDecoder().Bytes(content); err == nil && !looksLikeGibberish(string(decoded)) {
			log.Debug().Str("detected", name).Msg("decoded via auto-detected encoding")
			return string(decoded)
		}

		for _, encName := range []string{"gb18030", "gbk", "gb2312", "big5", "euc-tw"} {
			enc, err := htmlindex.Get(encName)
			if err != nil {
				continue
			}
			if decoded, err := enc.NewDecoder().Bytes(content); err == nil && utf8.Valid(decoded) && !looksLikeGibberish(string(decoded)) {
				return string(decoded)
			}
		}
		return string(content)
	}

	enc, err := htmlindex.Get(declaredCharset)
	if err != nil {
		if alias, ok := charsetAliases[strings.ToLower(declaredCharset)]; ok {
			enc, err = htmlindex.Get(alias)
		}
		if err != nil {
			log.Warn().Str("charset", declaredCharset).Msg("unknown charset, returning content as-is")
			return string(content)
		}
	}

	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(decoded)
}

var charsetAliases = map[string]string{
	"gb2312": "gbk",
	"x-gbk":  "gbk",
	"x-big5": "big5",
}

// looksLikeGibberish flags strings that decoded "successfully" but are
// mostly replacement characters or rare CJK Extension B codepoints — a
// sign the wrong encoding was applied.
func looksLikeGibberish(s string) bool {
	if len(s) == 0 {
		return false
	}
	var replacementCount, cjkExtBCount, total int
	for _, r := range s {
		total++
		if r == '�' {
			replacementCount++
		}
		if r >= 0x20000 && r <= 0x2A6DF {
			cjkExtBCount++
		}
	}
	if total > 10 && float64(replacementCount)/float64(total) > 0.1 {
		return true
	}
	if total > 20 && float64(cjkExtBCount)/float64(total) > 0.05 {
		return true
	}
	return false
}

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([^"'\s>]+)`)
var metaHTTPEquivRe = regexp.MustCompile(`(?i)<meta[^>]+content=["'][^"']*charset=([^"'\s;]+)`)

// extractCharsetFromHTML looks for a charset declared in the document's
// own meta tags, used when the Content-Type header omits one.
func extractCharsetFromHTML(html []byte) string {
	search := html
	if len(search) > 1024 {
		search = search[:1024]
	}
	if m := metaCharsetRe.FindSubmatch(search); len(m) > 1 {
		return string(m[1])
	}
	if m := metaHTTPEquivRe.FindSubmatch(search); len(m) > 1 {
		return string(m[1])
	}
	return ""
}

// decodeMIMEWord decodes RFC 2047 encoded words (e.g. filenames and
// subject lines carrying non-ASCII text).
func decodeMIMEWord(s string) string {
	if s == "" {
		return s
	}
	dec := &mime.WordDecoder{
		CharsetReader: func(charsetName string, r io.Reader) (io.Reader, error) {
			if reader, err := msgcharset.Reader(charsetName, r); err == nil {
				return reader, nil
			}
			enc, err := htmlindex.Get(charsetName)
			if err != nil {
				return nil, fmt.Errorf("unknown charset: %s", charsetName)
			}
			return enc.NewDecoder().Reader(r), nil
		},
	}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
