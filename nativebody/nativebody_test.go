package nativebody

import (
	"bytes"
	"testing"
)

func envelope(marker byte, size uint16, payload ...byte) []byte {
	raw := []byte{marker, byte(size), byte(size >> 8), 0, 0, 0, 0}
	return append(raw, payload...)
}

// literalStream encodes b as LZXPRESS units that contain only literals.
func literalStream(b []byte) []byte {
	var out []byte
	for len(b) > 0 {
		n := min(32, len(b))
		out = append(out, 0x00, 0x00, 0x00, 0x00)
		out = append(out, b[:n]...)
		b = b[n:]
	}
	return out
}

func TestDecode_ShortInputUnchanged(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, {0x18}, {0x18, 0x05, 0x00, 0x00, 0x00, 0x00}} {
		body := Decode(raw)
		if !bytes.Equal(body.Data, raw) {
			t.Errorf("Decode(%x) = %x, want input unchanged", raw, body.Data)
		}
		if body.Origin != OriginRaw {
			t.Errorf("Decode(%x) origin = %q, want %q", raw, body.Origin, OriginRaw)
		}
	}
}

func TestDecode_UnknownMarkerIsIdentity(t *testing.T) {
	raw := []byte("<html><body>plain stored body</body></html>")
	body := Decode(raw)
	if !bytes.Equal(body.Data, raw) {
		t.Fatalf("Decode() = %q, want input unchanged", body.Data)
	}
	if body.Origin != OriginRaw {
		t.Errorf("origin = %q, want %q", body.Origin, OriginRaw)
	}
}

func TestDecode_Hello(t *testing.T) {
	raw := envelope(0x18, 5, 0x00, 0x00, 0x00, 0x00, 'H', 'e', 'l', 'l', 'o')

	body := Decode(raw)
	if string(body.Data) != "Hello" {
		t.Fatalf("Decode() = %q, want %q", body.Data, "Hello")
	}
	if body.Origin != OriginDecompressed {
		t.Errorf("origin = %q, want %q", body.Origin, OriginDecompressed)
	}
	if body.DeclaredSize != 5 {
		t.Errorf("declared size = %d, want 5", body.DeclaredSize)
	}
}

func TestDecode_DeclaredSizeCapsOutput(t *testing.T) {
	for _, marker := range []byte{0x18, 0x19, 0x9a} {
		raw := envelope(marker, 3, 0x00, 0x00, 0x00, 0x00, 'H', 'e', 'l', 'l', 'o')
		body := Decode(raw)
		if string(body.Data) != "Hel" {
			t.Errorf("marker %#x: Decode() = %q, want %q", marker, body.Data, "Hel")
		}
	}
}

func TestDecode_FallsBackToStrippedPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want []byte
	}{
		{
			name: "payload shorter than flag word",
			raw:  envelope(0x19, 40, 'a', 'b'),
			want: []byte("ab"),
		},
		{
			name: "only invalid matches",
			raw:  envelope(0x18, 40, 0x01, 0x00, 0x00, 0x00, 0x40, 0x00),
			want: []byte{0x01, 0x00, 0x00, 0x00, 0x40, 0x00},
		},
		{
			name: "zero declared size",
			raw:  envelope(0x18, 0, 0x00, 0x00, 0x00, 0x00, 'x'),
			want: []byte{0x00, 0x00, 0x00, 0x00, 'x'},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := Decode(tt.raw)
			if !bytes.Equal(body.Data, tt.want) {
				t.Fatalf("Decode() = %x, want %x", body.Data, tt.want)
			}
			if body.Origin != OriginHeaderStripped {
				t.Errorf("origin = %q, want %q", body.Origin, OriginHeaderStripped)
			}
		})
	}
}

func TestParseEnvelope(t *testing.T) {
	raw := []byte{0x9a, 0x34, 0x12, 0xde, 0xad, 0xbe, 0xef, 0x01, 0x02}
	env, ok := ParseEnvelope(raw)
	if !ok {
		t.Fatal("ParseEnvelope() = false, want true")
	}
	if env.Marker != 0x9a || env.DeclaredSize != 0x1234 {
		t.Errorf("header = %#x/%d", env.Marker, env.DeclaredSize)
	}
	if env.Reserved != [4]byte{0xde, 0xad, 0xbe, 0xef} {
		t.Errorf("reserved = %x", env.Reserved)
	}
	if !bytes.Equal(env.Payload, []byte{0x01, 0x02}) {
		t.Errorf("payload = %x", env.Payload)
	}

	if _, ok := ParseEnvelope([]byte{0x20, 0, 0, 0, 0, 0, 0}); ok {
		t.Error("ParseEnvelope() accepted unknown marker")
	}
}

func TestText(t *testing.T) {
	html := "<html><body><p>Meeting moved</p></body></html>"
	raw := envelope(0x18, uint16(len(html)), literalStream([]byte(html))...)

	text, body := Text(raw)
	if body.Origin != OriginDecompressed {
		t.Fatalf("origin = %q", body.Origin)
	}
	if text != "Meeting moved" {
		t.Errorf("Text() = %q", text)
	}
}
