package cmd

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dhcgn/edb-recover/mbox"
	"github.com/dhcgn/edb-recover/model"
	"github.com/dhcgn/edb-recover/recovery"
)

func TestFromMboxRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := mbox.NewWriter(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	in := model.RecoveredMessage{
		ID:         "Message/7",
		Subject:    "Budget review",
		Sender:     "alice@example.com",
		SenderName: "Alice",
		Folder:     "Inbox",
		Body:       "numbers attached",
		Date:       time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC),
		Tier:       model.TierStructured,
		Confidence: model.ConfidenceHigh,
		Recovered:  true,
	}
	if err := w.Export(t.Context(), in); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	var got []model.RecoveredMessage
	err = mbox.Read(w.FileFor("Inbox"), func(m *mbox.Message) error {
		got = append(got, fromMbox(m))
		return nil
	})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("read %d messages, want 1", len(got))
	}
	out := got[0]
	if out.ID != in.ID || out.Subject != in.Subject || out.Sender != in.Sender || out.SenderName != in.SenderName {
		t.Errorf("fromMbox() = %+v", out)
	}
	if out.Folder != "Inbox" || out.Tier != model.TierStructured || out.Confidence != model.ConfidenceHigh {
		t.Errorf("provenance = %q %q %q", out.Folder, out.Tier, out.Confidence)
	}
	if !out.Date.Equal(in.Date) {
		t.Errorf("Date = %v, want %v", out.Date, in.Date)
	}
}

func TestCounterAndCSV(t *testing.T) {
	c := newCounter()
	c.add(model.RecoveredMessage{Subject: "a", Sender: "x@example.com", Tier: model.TierRawScan, Confidence: model.ConfidenceLow})
	c.add(model.RecoveredMessage{Subject: "a", Tier: model.TierRawScan, Confidence: model.ConfidenceLow})
	c.add(model.RecoveredMessage{Tier: model.TierStructured})

	if c.total != 3 || c.values["Subject"]["a"] != 2 || c.values["Subject"]["(No Subject)"] != 1 {
		t.Errorf("subject counts = %v", c.values["Subject"])
	}
	if c.values["From"]["<x@example.com>"] != 1 {
		t.Errorf("from counts = %v", c.values["From"])
	}

	dir := t.TempDir()
	if err := saveCSVReports(c.values, statsCategories, dir, 1000); err != nil {
		t.Fatalf("saveCSVReports() error = %v", err)
	}
	f, err := os.Open(filepath.Join(dir, "report_tier.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[1][0] != "raw-scan" || rows[1][1] != "2" {
		t.Errorf("report_tier.csv = %v", rows)
	}
}

func TestSummarizeStore_Mailboxes(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"Mailbox.tsv":     "MailboxNumber\tMessageCount\tMailboxGuid\n101\t2\t00112233445566778899aabbccddeeff\n10\t1\t\n",
		"Message_101.tsv": "Subject\nfirst\nsecond\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := summarizeStore(dir)
	if err != nil {
		t.Fatalf("summarizeStore() error = %v", err)
	}
	if len(summary.tables) != 2 {
		t.Errorf("tables = %v", summary.tables)
	}

	want := []recovery.Mailbox{
		{Number: 101, MessageCount: 2, GUID: "00112233445566778899aabbccddeeff", Table: "Message_101", Records: 2},
		{Number: 10, MessageCount: 1, Table: "Message_10", Records: -1},
	}
	if len(summary.mailboxes) != len(want) {
		t.Fatalf("mailboxes = %+v", summary.mailboxes)
	}
	for i := range want {
		if summary.mailboxes[i] != want[i] {
			t.Errorf("mailbox %d = %+v, want %+v", i, summary.mailboxes[i], want[i])
		}
	}

	rows := mailboxRows(summary.mailboxes)
	if rows[1][3] != "missing" || rows[0][3] != "2" {
		t.Errorf("rows = %q", rows)
	}
}

func TestSummarizeStore_NoMailboxTable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Message_7.tsv"), []byte("Subject\nhello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	summary, err := summarizeStore(dir)
	if err != nil {
		t.Fatalf("summarizeStore() error = %v", err)
	}
	if len(summary.mailboxes) != 0 {
		t.Errorf("mailboxes = %+v, want none", summary.mailboxes)
	}
}
