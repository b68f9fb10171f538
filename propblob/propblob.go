// Package propblob pulls sender and subject candidates out of PropertyBlob columns.
//
// A PropertyBlob carries no type or length metadata that can be relied upon, so the
// extractor only looks for shapes: an e-mail address in the raw bytes and a run of
// word-like tokens in the UTF-16LE decoding.
package propblob

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dhcgn/edb-recover/model"
	"github.com/dhcgn/edb-recover/textenc"
)

const (
	// MinTokenLen is the minimum rune length of a subject token.
	MinTokenLen = 4
	// MinTokenRun is how many consecutive qualifying tokens make a subject candidate.
	MinTokenRun = 10
	// MaxSubjectTokens is how many tokens of a run are joined into the subject.
	MaxSubjectTokens = 10
	// MaxSubjectRunes caps the subject length.
	MaxSubjectRunes = 100
	// RepeatMaxPeriod is the longest cycle LooksLikeRepeatPattern checks for.
	RepeatMaxPeriod = 4
	// RepeatDominance is the share of positions a cycle must explain to reject a text.
	RepeatDominance = 0.9
	// MinBlobBodyRunes is the length a large blob body must exceed to be accepted.
	MinBlobBodyRunes = 20

	minBlobLen        = 4
	minLargeBlobLen   = 10
	subjectMarker     = 0x4d
	markedHeaderBytes = 2
	minMarkedSubject  = 2
	maxMarkedSubject  = 100
)

// Source names used in model.Field.
const (
	SourceSender    = "propertyblob:address"
	SourceSubject   = "propertyblob:tokens"
	SourceMarked    = "propertyblob:marked"
	SourceLargeBlob = "largepropertyvalueblob"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// DefaultSkipList holds substrings of directory and system objects that leak into
// blobs next to message properties.
var DefaultSkipList = []string{
	"admin",
	"exchange",
	"recipient",
	"fydib",
	"pdlt",
	"ipm.",
	"/o=",
	"/ou=",
	"{06967759-274d-40b2-a3eb-d7f9e73727d7}",
	"{a9e2bc46-b3a0-4243-b315-60d991004455}",
}

// Extractor finds field candidates in PropertyBlob bytes. The zero value uses no
// skip list; use NewExtractor for the default one.
type Extractor struct {
	// SkipList entries are matched case-insensitively against subject candidates.
	SkipList []string
}

// NewExtractor returns an Extractor using DefaultSkipList.
func NewExtractor() *Extractor {
	return &Extractor{SkipList: DefaultSkipList}
}

// Extract runs the sender and subject passes over blob. Fields that could not be
// recovered are left empty.
func (e *Extractor) Extract(blob []byte) model.ExtractedFields {
	var fields model.ExtractedFields
	if len(blob) < minBlobLen {
		return fields
	}

	if sender := e.Sender(blob); sender != "" {
		fields.Sender = model.Field{Value: sender, Source: SourceSender, Confidence: model.ConfidenceMedium}
	}
	if subject := e.Subject(blob); subject != "" {
		fields.Subject = model.Field{Value: subject, Source: SourceSubject, Confidence: model.ConfidenceLow}
	} else if subject := e.MarkedSubject(blob); subject != "" {
		fields.Subject = model.Field{Value: subject, Source: SourceMarked, Confidence: model.ConfidenceLow}
	}
	return fields
}

// Sender returns the first e-mail address in blob. Addresses stored as UTF-16LE are
// found through the decoded text when the raw bytes contain none.
func (e *Extractor) Sender(blob []byte) string {
	if m := emailPattern.Find(blob); m != nil {
		return string(m)
	}
	return emailPattern.FindString(textenc.DecodeUTF16LELossy(blob))
}

// Subject returns the first run of word-like tokens in the UTF-16LE decoding of blob
// that passes the skip list and repeat-pattern checks.
func (e *Extractor) Subject(blob []byte) string {
	text := textenc.Printable(textenc.DecodeUTF16LELossy(blob), false)
	tokens := strings.Fields(text)

	for start := 0; start < len(tokens); {
		if utf8.RuneCountInString(tokens[start]) < MinTokenLen {
			start++
			continue
		}
		end := start
		for end < len(tokens) && utf8.RuneCountInString(tokens[end]) >= MinTokenLen {
			end++
		}
		if end-start >= MinTokenRun {
			candidate := truncateRunes(strings.Join(tokens[start:start+MaxSubjectTokens], " "), MaxSubjectRunes)
			if e.accept(candidate) {
				return candidate
			}
		}
		start = end
	}
	return ""
}

// MarkedSubject looks for a printable ASCII string stored behind a 0x4d byte and a
// one-byte length, a layout some store versions use for the subject property.
func (e *Extractor) MarkedSubject(blob []byte) string {
	for i := 0; i+markedHeaderBytes < len(blob); i++ {
		if blob[i] != subjectMarker {
			continue
		}
		n := int(blob[i+1])
		if n < minMarkedSubject || n > maxMarkedSubject || i+markedHeaderBytes+n > len(blob) {
			continue
		}
		candidate := blob[i+markedHeaderBytes : i+markedHeaderBytes+n]
		if !printableASCII(candidate) {
			continue
		}
		if s := string(candidate); e.accept(s) {
			return s
		}
	}
	return ""
}

// Skipped reports whether s contains one of the skip list entries.
func (e *Extractor) Skipped(s string) bool {
	lower := strings.ToLower(s)
	for _, entry := range e.SkipList {
		if entry != "" && strings.Contains(lower, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}

func (e *Extractor) accept(candidate string) bool {
	return !e.Skipped(candidate) && !LooksLikeRepeatPattern(candidate)
}

// LooksLikeRepeatPattern reports whether s, ignoring whitespace, is dominated by a
// cycle of at most RepeatMaxPeriod runes. Text with nothing but whitespace counts as
// degenerate.
func LooksLikeRepeatPattern(s string) bool {
	runes := []rune(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
	if len(runes) == 0 {
		return true
	}

	for period := 1; period <= RepeatMaxPeriod && period < len(runes); period++ {
		same := 0
		for i := period; i < len(runes); i++ {
			if runes[i] == runes[i-period] {
				same++
			}
		}
		if float64(same) >= RepeatDominance*float64(len(runes)-period) {
			return true
		}
	}
	return false
}

// BodyFromLargeBlob returns readable body text from a LargePropertyValueBlob, or ""
// when no candidate encoding yields more than MinBlobBodyRunes printable runes.
func BodyFromLargeBlob(blob []byte) string {
	if len(blob) < minLargeBlobLen {
		return ""
	}
	for _, enc := range textenc.BlobBodyChain {
		text := strings.TrimSpace(textenc.Printable(textenc.DecodeLossy(blob, enc), true))
		if utf8.RuneCountInString(text) > MinBlobBodyRunes {
			return text
		}
	}
	return ""
}

func printableASCII(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
