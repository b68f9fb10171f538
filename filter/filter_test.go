package filter

import (
	"strings"
	"testing"

	"github.com/dhcgn/edb-recover/model"
)

func message(subject, sender, body string) model.RecoveredMessage {
	return model.RecoveredMessage{
		ID:         "Message/1",
		Subject:    subject,
		Sender:     sender,
		Body:       body,
		Tier:       model.TierStructured,
		Confidence: model.ConfidenceHigh,
	}
}

func TestFilter_Allows_IncludeMode(t *testing.T) {
	f, err := New(Options{IncludeHeader: []string{"Subject: Test"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows(message("Test Message", "sender@example.com", "body")) {
		t.Error("Expected message to be allowed (header matches)")
	}
	if f.Allows(message("Other", "sender@example.com", "body")) {
		t.Error("Expected message to be filtered out (header doesn't match)")
	}

	stats := f.GetStats()
	if stats.Checked != 2 || stats.Allowed != 1 || stats.IncludeHits["Subject: Test"] != 1 {
		t.Errorf("GetStats() = %+v", stats)
	}
}

func TestFilter_Allows_ExcludeMode(t *testing.T) {
	f, err := New(Options{ExcludeHeader: []string{"spam"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows(message("Normal Message", "sender@example.com", "body")) {
		t.Error("Expected message to be allowed (no spam)")
	}
	if f.Allows(message("This is spam", "spammer@example.com", "body")) {
		t.Error("Expected message to be filtered out (contains spam)")
	}
	if got := f.GetStats().ExcludeHits["spam"]; got != 1 {
		t.Errorf("exclude hits = %d, want 1", got)
	}
}

func TestFilter_MutuallyExclusive(t *testing.T) {
	_, err := New(Options{
		IncludeHeader: []string{"test"},
		ExcludeHeader: []string{"spam"},
	})
	if err == nil {
		t.Error("Expected error when both include and exclude are specified")
	}
}

func TestFilter_InvalidPattern(t *testing.T) {
	if _, err := New(Options{IncludeBody: []string{"("}}); err == nil {
		t.Error("Expected error for an invalid pattern")
	}
}

func TestFilter_NoFilters(t *testing.T) {
	f, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !f.Allows(message("Any Message", "", "Any body content")) {
		t.Error("Expected message to be allowed when no filters are active")
	}
}

func TestFilter_BodyFiltering(t *testing.T) {
	f, err := New(Options{IncludeBody: []string{"important"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows(message("Message", "", "This is an important message")) {
		t.Error("Expected message to be allowed (body matches)")
	}
	if f.Allows(message("Message", "", "This is a regular message")) {
		t.Error("Expected message to be filtered out (body doesn't match)")
	}
}

func TestFilter_TierAndFolder(t *testing.T) {
	f, err := New(Options{ExcludeHeader: []string{"(?m)^X-Recovery-Tier: raw-scan$", "(?m)^X-Folder: Deleted Items"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	raw := message("Scanned", "", "body")
	raw.Tier = model.TierRawScan
	if f.Allows(raw) {
		t.Error("Expected raw-scan message to be excluded")
	}
	if !f.Allows(message("Structured", "", "body")) {
		t.Error("Expected structured message to be allowed")
	}
}

func TestFilter_MinConfidence(t *testing.T) {
	f, err := New(Options{MinConfidence: model.ConfidenceMedium})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		confidence model.Confidence
		want       bool
	}{
		{model.ConfidenceHigh, true},
		{model.ConfidenceMedium, true},
		{model.ConfidenceLow, false},
	}
	for _, tt := range tests {
		msg := message("s", "", "b")
		msg.Confidence = tt.confidence
		if got := f.Allows(msg); got != tt.want {
			t.Errorf("Allows(%s) = %v, want %v", tt.confidence, got, tt.want)
		}
	}
	if got := f.GetStats().LowConfidence; got != 1 {
		t.Errorf("LowConfidence = %d, want 1", got)
	}
}

func TestHeaderText(t *testing.T) {
	msg := message("Hello", "alice@example.com", "")
	msg.SenderName = "Alice"
	msg.Recipients = []string{"bob@example.com", "carol@example.com"}
	msg.Folder = "Inbox"

	got := HeaderText(msg)
	for _, want := range []string{
		"Subject: Hello\n",
		"From: Alice <alice@example.com>\n",
		"To: bob@example.com, carol@example.com\n",
		"X-Folder: Inbox\n",
		"X-Recovery-Tier: structured\n",
		"X-Recovery-Confidence: high\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("HeaderText() = %q, missing %q", got, want)
		}
	}
	if strings.Contains(got, "Message-ID") {
		t.Errorf("HeaderText() = %q, empty fields must be omitted", got)
	}
}
