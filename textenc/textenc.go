// Package textenc decodes byte slices of unknown encoding by trying an ordered list
// of candidate encodings. Exchange stores most text columns as UTF-16LE, but
// migrated or damaged stores mix in UTF-8 and Windows code pages.
package textenc

import (
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// Encoding identifies one candidate in a fallback chain.
type Encoding string

const (
	UTF16LE     Encoding = "utf-16le"
	UTF8        Encoding = "utf-8"
	Windows1252 Encoding = "windows-1252"
	Latin1      Encoding = "iso-8859-1"
)

var (
	// ColumnChain is used for Record Store column values.
	ColumnChain = []Encoding{UTF16LE, UTF8, Latin1}

	// ASCIIWindowChain is used for raw byte windows around ASCII anchors.
	ASCIIWindowChain = []Encoding{UTF8, Windows1252}

	// WideWindowChain is used for raw byte windows around UTF-16LE anchors.
	WideWindowChain = []Encoding{UTF16LE, UTF8, Windows1252}

	// BlobBodyChain is used for LargePropertyValueBlob body candidates.
	BlobBodyChain = []Encoding{UTF8, UTF16LE, Windows1252}
)

// Decode tries each encoding in order and returns the first strict decoding with
// trailing NULs removed. It returns "" and false when no candidate decodes cleanly.
func Decode(b []byte, chain []Encoding) (string, Encoding, bool) {
	for _, enc := range chain {
		if s, ok := DecodeStrict(b, enc); ok {
			return strings.TrimRight(s, "\x00"), enc, true
		}
	}
	return "", "", false
}

// DecodeString is Decode without the bookkeeping.
func DecodeString(b []byte, chain []Encoding) string {
	s, _, _ := Decode(b, chain)
	return s
}

// DecodeStrict decodes b with a single encoding and reports whether the input was
// well formed for it.
func DecodeStrict(b []byte, enc Encoding) (string, bool) {
	switch enc {
	case UTF8:
		if !utf8.Valid(b) {
			return "", false
		}
		return string(b), true
	case UTF16LE:
		return decodeUTF16LEStrict(b)
	case Windows1252:
		return decodeWith(charmap.Windows1252, b)
	case Latin1:
		return decodeWith(charmap.ISO8859_1, b)
	default:
		return "", false
	}
}

// DecodeUTF16LELossy decodes b as UTF-16LE, dropping ill-formed code units and a
// trailing odd byte instead of failing.
func DecodeUTF16LELossy(b []byte) string {
	b = b[:len(b)&^1]
	dec := xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(b)
	if err != nil {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r == utf8.RuneError {
			return -1
		}
		return r
	}, string(out))
}

// DecodeLossy decodes b with enc, dropping whatever does not decode.
func DecodeLossy(b []byte, enc Encoding) string {
	switch enc {
	case UTF8:
		return strings.ToValidUTF8(string(b), "")
	case UTF16LE:
		return DecodeUTF16LELossy(b)
	default:
		s, _ := DecodeStrict(b, enc)
		return strings.ReplaceAll(s, string(utf8.RuneError), "")
	}
}

// EncodeUTF16LE returns s encoded as UTF-16LE without a BOM.
func EncodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2*len(units))
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}

// Printable removes control and other non-printable runes, keeping spaces and,
// when keepBreaks is set, tabs and line breaks.
func Printable(s string, keepBreaks bool) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == utf8.RuneError:
			return -1
		case keepBreaks && (r == '\t' || r == '\n' || r == '\r'):
			return r
		case unicode.IsPrint(r):
			return r
		default:
			return -1
		}
	}, s)
}

func decodeUTF16LEStrict(b []byte) (string, bool) {
	if len(b)%2 != 0 {
		return "", false
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u >= 0xD800 && u < 0xDC00:
			if i+1 >= len(units) || units[i+1] < 0xDC00 || units[i+1] >= 0xE000 {
				return "", false
			}
			i++
		case u >= 0xDC00 && u < 0xE000:
			return "", false
		}
	}
	return string(utf16.Decode(units)), true
}

func decodeWith(e encoding.Encoding, b []byte) (string, bool) {
	out, err := e.NewDecoder().Bytes(b)
	if err != nil {
		return "", false
	}
	return string(out), true
}
