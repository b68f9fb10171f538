package textenc

import "testing"

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		chain   []Encoding
		want    string
		wantEnc Encoding
		wantOK  bool
	}{
		{
			name:    "utf-16le column",
			input:   EncodeUTF16LE("Quarterly report\x00"),
			chain:   ColumnChain,
			want:    "Quarterly report",
			wantEnc: UTF16LE,
			wantOK:  true,
		},
		{
			name:    "odd length falls through to utf-8",
			input:   []byte("hello"),
			chain:   ColumnChain,
			want:    "hello",
			wantEnc: UTF8,
			wantOK:  true,
		},
		{
			name:    "lone surrogate falls through",
			input:   []byte{0x00, 0xDC, 0x41, 0x00},
			chain:   []Encoding{UTF16LE, Latin1},
			want:    "\x00ÜA",
			wantEnc: Latin1,
			wantOK:  true,
		},
		{
			name:    "windows-1252 window",
			input:   []byte("Caf\xe9 \x80"),
			chain:   ASCIIWindowChain,
			want:    "Café €",
			wantEnc: Windows1252,
			wantOK:  true,
		},
		{
			name:   "nothing decodes",
			input:  []byte{0xff, 0xfe, 0xfd},
			chain:  []Encoding{UTF8, UTF16LE},
			want:   "",
			wantOK: false,
		},
		{
			name:   "empty chain",
			input:  []byte("abc"),
			chain:  nil,
			want:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, enc, ok := Decode(tt.input, tt.chain)
			if ok != tt.wantOK {
				t.Fatalf("Decode() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Decode() = %q, want %q", got, tt.want)
			}
			if enc != tt.wantEnc {
				t.Errorf("Decode() encoding = %q, want %q", enc, tt.wantEnc)
			}
		})
	}
}

func TestDecodeUTF16LELossy(t *testing.T) {
	input := append(EncodeUTF16LE("Subject line"), 0x41)
	if got := DecodeUTF16LELossy(input); got != "Subject line" {
		t.Fatalf("DecodeUTF16LELossy() = %q", got)
	}
}

func TestPrintable(t *testing.T) {
	in := "a\x00b\tc\r\nd\x07 e"
	if got := Printable(in, false); got != "abcd e" {
		t.Errorf("Printable(false) = %q", got)
	}
	if got := Printable(in, true); got != "ab\tc\r\nd e" {
		t.Errorf("Printable(true) = %q", got)
	}
}

func TestDecodeLossy(t *testing.T) {
	if got := DecodeLossy([]byte("ok\xffay"), UTF8); got != "okay" {
		t.Errorf("utf-8 = %q", got)
	}
	if got := DecodeLossy(EncodeUTF16LE("wide"), UTF16LE); got != "wide" {
		t.Errorf("utf-16le = %q", got)
	}
	if got := DecodeLossy([]byte("caf\xe9"), Windows1252); got != "café" {
		t.Errorf("windows-1252 = %q", got)
	}
}
