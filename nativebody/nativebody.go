// Package nativebody unwraps the 7-byte envelope Exchange puts in front of
// LZXPRESS-compressed NativeBody values.
//
// Envelope layout:
//
//	byte 0     marker (0x18, 0x19 or 0x9a when compressed)
//	bytes 1-2  uncompressed size, little-endian uint16
//	bytes 3-6  reserved
//	bytes 7..  LZXPRESS payload
package nativebody

import (
	"encoding/binary"

	"github.com/dhcgn/edb-recover/htmltext"
	"github.com/dhcgn/edb-recover/lzxpress"
)

// HeaderSize is the length of the envelope header.
const HeaderSize = 7

// Origin tells how the bytes of a Body were obtained.
type Origin string

const (
	OriginDecompressed   Origin = "decompressed"
	OriginHeaderStripped Origin = "header-stripped"
	OriginRaw            Origin = "raw"
)

var markers = map[byte]struct{}{
	0x18: {},
	0x19: {},
	0x9a: {},
}

// IsMarker reports whether b announces a compressed envelope.
func IsMarker(b byte) bool {
	_, ok := markers[b]
	return ok
}

// Envelope is the parsed header of a compressed value.
type Envelope struct {
	Marker       byte
	DeclaredSize int
	Reserved     [4]byte
	Payload      []byte
}

// ParseEnvelope splits raw into header fields and payload. It returns false when raw
// is too short or does not start with a known marker.
func ParseEnvelope(raw []byte) (Envelope, bool) {
	if len(raw) < HeaderSize || !IsMarker(raw[0]) {
		return Envelope{}, false
	}
	env := Envelope{
		Marker:       raw[0],
		DeclaredSize: int(binary.LittleEndian.Uint16(raw[1:3])),
		Payload:      raw[HeaderSize:],
	}
	copy(env.Reserved[:], raw[3:7])
	return env, true
}

// Body is the result of decoding a raw column value.
type Body struct {
	Data           []byte
	Origin         Origin
	DeclaredSize   int
	InvalidMatches int
}

// Decode returns the uncompressed content of raw. Values without a recognised
// envelope are returned unchanged; if decompression yields nothing the payload is
// returned with the header stripped. Decode never fails.
func Decode(raw []byte) Body {
	env, ok := ParseEnvelope(raw)
	if !ok {
		return Body{Data: raw, Origin: OriginRaw}
	}

	// A zero declared size would mean "unbounded" to the decoder.
	var (
		out []byte
		st  lzxpress.Stats
	)
	if env.DeclaredSize > 0 {
		out, st = lzxpress.DecompressStats(env.Payload, env.DeclaredSize)
	}
	if len(out) > 0 {
		return Body{
			Data:           out,
			Origin:         OriginDecompressed,
			DeclaredSize:   env.DeclaredSize,
			InvalidMatches: st.InvalidMatches,
		}
	}

	return Body{
		Data:           env.Payload,
		Origin:         OriginHeaderStripped,
		DeclaredSize:   env.DeclaredSize,
		InvalidMatches: st.InvalidMatches,
	}
}

// Text decodes raw and reduces the result to plain text.
func Text(raw []byte) (string, Body) {
	body := Decode(raw)
	return htmltext.Extract(body.Data), body
}
