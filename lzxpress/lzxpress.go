// Package lzxpress decodes the plain LZ77 variant of MS-XCA ("LZXPRESS") used by
// Exchange to compress NativeBody columns.
//
// The stream is a sequence of units: a little-endian uint32 flag word followed by up
// to 32 tokens. Flag bits are consumed least-significant first; a 0 bit is a literal
// byte, a 1 bit a little-endian uint16 match token.
package lzxpress

import "encoding/binary"

const (
	// MinMatch is added to every decoded match length.
	MinMatch = 3

	// MaxUnboundedOutput bounds the output when the caller supplies no limit, so a
	// crafted 32-bit match length cannot exhaust memory.
	MaxUnboundedOutput = 64 << 20
)

// Stats describes what the decoder had to tolerate while decoding a stream.
type Stats struct {
	Literals       int
	Matches        int
	InvalidMatches int
	Truncated      bool
}

// Decompress decodes src and returns at most maxOutput bytes. A maxOutput <= 0
// means no declared limit. Decompress never fails: malformed tokens are skipped and
// a short stream yields whatever was produced so far.
func Decompress(src []byte, maxOutput int) []byte {
	out, _ := DecompressStats(src, maxOutput)
	return out
}

// DecompressStats is Decompress plus a summary of skipped or truncated input.
func DecompressStats(src []byte, maxOutput int) ([]byte, Stats) {
	var st Stats
	if len(src) == 0 {
		return []byte{}, st
	}

	limit := maxOutput
	if limit <= 0 || limit > MaxUnboundedOutput {
		limit = MaxUnboundedOutput
	}

	capHint := limit
	if capHint > 4*len(src) {
		capHint = 4 * len(src)
	}
	out := make([]byte, 0, capHint)
	in := 0

	for in+4 <= len(src) {
		flags := binary.LittleEndian.Uint32(src[in : in+4])
		in += 4

		for bit := 0; bit < 32; bit++ {
			if in >= len(src) {
				return out, st
			}
			if len(out) >= limit {
				st.Truncated = true
				return out[:limit], st
			}

			if flags&(1<<uint(bit)) == 0 {
				out = append(out, src[in])
				in++
				st.Literals++
				continue
			}

			if in+2 > len(src) {
				return out, st
			}
			token := int(binary.LittleEndian.Uint16(src[in : in+2]))
			in += 2

			offset := (token >> 3) + 1
			length, n, ok := matchLength(src[in:], token&7)
			if !ok {
				return out, st
			}
			in += n
			length += MinMatch

			if offset > len(out) {
				st.InvalidMatches++
				continue
			}

			// Source and destination may overlap: read from out as it grows.
			start := len(out) - offset
			for i := 0; i < length; i++ {
				if len(out) >= limit {
					st.Truncated = true
					break
				}
				out = append(out, out[start+i])
			}
			st.Matches++
		}
	}

	return out, st
}

// matchLength resolves the extended length encoding that follows a match token.
// It returns the length before MinMatch is added and the number of bytes consumed.
func matchLength(src []byte, base int) (length, consumed int, ok bool) {
	length = base
	if length != 7 {
		return length, 0, true
	}

	if len(src) < 1 {
		return 0, 0, false
	}
	length += int(src[0])
	consumed = 1
	if length != 7+255 {
		return length, consumed, true
	}

	if len(src) < consumed+2 {
		return 0, 0, false
	}
	length = int(binary.LittleEndian.Uint16(src[consumed : consumed+2]))
	consumed += 2
	if length != 0 {
		return length, consumed, true
	}

	if len(src) < consumed+4 {
		return 0, 0, false
	}
	length = int(binary.LittleEndian.Uint32(src[consumed : consumed+4]))
	consumed += 4
	return length, consumed, true
}
