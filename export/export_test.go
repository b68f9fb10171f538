package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/dhcgn/edb-recover/model"
)

func sample() model.RecoveredMessage {
	return model.RecoveredMessage{
		ID:         "Message/12",
		Subject:    "Grüße aus Köln",
		Sender:     "alice@example.com",
		SenderName: "Alice",
		Recipients: []string{"bob@example.com"},
		Date:       time.Date(2020, 2, 3, 4, 5, 6, 0, time.UTC),
		Folder:     "Top of Information Store/Inbox",
		Body:       "Hallo Bob,\nanbei die Zahlen.",
		Tier:       model.TierStructured,
		Confidence: model.ConfidenceMedium,
		Recovered:  true,
		Notes:      []string{"subject from property blob", "sender from property blob"},
	}
}

func TestRender(t *testing.T) {
	raw, err := Render(sample())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	mr, err := mail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("CreateReader() error = %v", err)
	}
	defer mr.Close()

	h := mr.Header
	if s, _ := h.Subject(); s != "Grüße aus Köln" {
		t.Errorf("Subject = %q", s)
	}
	from, err := h.AddressList("From")
	if err != nil || len(from) != 1 || from[0].Address != "alice@example.com" || from[0].Name != "Alice" {
		t.Errorf("From = %v, %v", from, err)
	}
	if d, err := h.Date(); err != nil || !d.Equal(sample().Date) {
		t.Errorf("Date = %v, %v", d, err)
	}
	if id, _ := h.MessageID(); id != "Message_12@recovered.invalid" {
		t.Errorf("Message-ID = %q", id)
	}
	for key, want := range map[string]string{
		HeaderRecovered:  "true",
		HeaderTier:       "structured",
		HeaderConfidence: "medium",
	} {
		if got := h.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if folder, _ := h.Text(HeaderFolder); folder != "Top of Information Store/Inbox" {
		t.Errorf("%s = %q", HeaderFolder, folder)
	}
	if notes := h.Values(HeaderNote); len(notes) != 2 {
		t.Errorf("%s values = %v", HeaderNote, notes)
	}

	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart() error = %v", err)
	}
	body, _ := io.ReadAll(part.Body)
	if !strings.Contains(string(body), "anbei die Zahlen.") {
		t.Errorf("body = %q", body)
	}
}

func TestRender_NoSubjectNoSender(t *testing.T) {
	raw, err := Render(model.RecoveredMessage{ID: "page-3", MessageID: "<abc@host>", Tier: model.TierRawScan, Confidence: model.ConfidenceLow, Recovered: true})
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	if !strings.Contains(text, "Subject: (No Subject)") {
		t.Errorf("missing placeholder subject in %q", text)
	}
	if strings.Contains(text, "From:") {
		t.Errorf("unexpected From header in %q", text)
	}
	if !strings.Contains(text, "abc@host") {
		t.Errorf("original Message-ID not kept in %q", text)
	}
}

func TestFileName(t *testing.T) {
	m := sample()
	if got := FileName(m); got != "20200203_040506_Grüße aus Köln" {
		t.Errorf("FileName() = %q", got)
	}

	m.Date = time.Time{}
	m.Subject = strings.Repeat("x", 80)
	m.ID = "Message/123456789012345678901234"
	got := FileName(m)
	if !strings.HasPrefix(got, "Message_123456789012_") || len(got) != 21+50 {
		t.Errorf("FileName() = %q (%d)", got, len(got))
	}

	m.Subject = ""
	if got := FileName(m); !strings.HasSuffix(got, "_no_subject") {
		t.Errorf("FileName() = %q", got)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`a/b\c:d`, "a_b_c_d"},
		{" . ", "unnamed"},
		{"..hidden.", "hidden"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	parts := SanitizePath("/Top of Information Store//Inbox?/")
	if len(parts) != 2 || parts[0] != "Top of Information Store" || parts[1] != "Inbox_" {
		t.Errorf("SanitizePath() = %v", parts)
	}
}

func TestEMLWriter(t *testing.T) {
	dir := t.TempDir()
	w, err := NewEMLWriter(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx := context.Background()
	m := sample()
	for i := 0; i < 3; i++ {
		if err := w.Export(ctx, m); err != nil {
			t.Fatalf("Export() #%d error = %v", i, err)
		}
	}

	folder := filepath.Join(dir, "Top of Information Store", "Inbox")
	entries, err := os.ReadDir(folder)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := []string{
		"20200203_040506_Grüße aus Köln.eml",
		"20200203_040506_Grüße aus Köln_1.eml",
		"20200203_040506_Grüße aus Köln_2.eml",
	}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Errorf("files = %v, want %v", names, want)
	}
}
