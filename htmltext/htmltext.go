// Package htmltext reduces HTML markup, typically a decompressed NativeBody, to the
// visible text runs between tags.
package htmltext

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleBlock  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	comment     = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// Extract returns the text of b with markup removed. Each run of text between two
// tags is trimmed and emitted on its own line; empty runs are dropped. Extract is
// idempotent.
func Extract(b []byte) string {
	return ExtractString(decode(b))
}

// ExtractString is Extract for already decoded markup.
func ExtractString(html string) string {
	html = scriptBlock.ReplaceAllString(html, "")
	html = styleBlock.ReplaceAllString(html, "")
	html = comment.ReplaceAllString(html, "")

	var (
		parts   []string
		current strings.Builder
		inTag   bool
	)
	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			parts = append(parts, text)
		}
		current.Reset()
	}

	for _, r := range html {
		switch {
		case r == '<':
			flush()
			inTag = true
		case r == '>':
			inTag = false
		case inTag:
		case r == '\t' || r == '\r' || r == '\n' || (r != utf8.RuneError && unicode.IsPrint(r)):
			current.WriteRune(r)
		}
	}
	flush()

	return strings.Join(parts, "\n")
}

// Preview returns at most n runes of text, cut on a rune boundary.
func Preview(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

// decode prefers UTF-8 and falls back to Latin-1, which maps every byte.
func decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "")
	}
	return string(out)
}
