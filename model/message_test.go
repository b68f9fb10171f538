package model

import "testing"

func TestFingerprint(t *testing.T) {
	a := RecoveredMessage{Tier: TierStructured, Table: "Message_101", Record: 3, Subject: "Budget", Body: "numbers"}
	b := a
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("identical messages produced different fingerprints")
	}

	b.Record = 4
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different records produced the same fingerprint")
	}

	c := a
	c.Notes = []string{"extra note"}
	if a.Fingerprint() != c.Fingerprint() {
		t.Error("notes must not change the fingerprint")
	}
}

func TestAddNoteKeepsOrder(t *testing.T) {
	var m RecoveredMessage
	m.AddNote("tier %s", TierRawScan)
	m.AddNote("page %d", 7)
	if len(m.Notes) != 2 || m.Notes[0] != "tier raw-scan" || m.Notes[1] != "page 7" {
		t.Fatalf("Notes = %q", m.Notes)
	}
}

func TestExtractedFieldsEmpty(t *testing.T) {
	var e ExtractedFields
	if !e.Empty() {
		t.Error("zero value should be empty")
	}
	e.Sender = Field{Value: "a@b.cd", Source: "propertyblob", Confidence: ConfidenceMedium}
	if e.Empty() {
		t.Error("fields with a sender should not be empty")
	}
}

func TestConfidenceRankAndParse(t *testing.T) {
	if !(ConfidenceLow.Rank() < ConfidenceMedium.Rank() && ConfidenceMedium.Rank() < ConfidenceHigh.Rank()) {
		t.Error("confidence ranks are not ordered low < medium < high")
	}
	if Confidence("bogus").Rank() != 0 {
		t.Error("unknown confidence must rank 0")
	}

	tests := []struct {
		in      string
		want    Confidence
		wantErr bool
	}{
		{"", "", false},
		{" High ", ConfidenceHigh, false},
		{"medium", ConfidenceMedium, false},
		{"certain", "", true},
	}
	for _, tt := range tests {
		got, err := ParseConfidence(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseConfidence(%q) = %q, %v", tt.in, got, err)
		}
	}
}
