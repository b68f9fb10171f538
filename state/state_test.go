package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMemoryTracker(t *testing.T) {
	m := NewMemoryTracker()
	if m.AlreadyProcessed("") {
		t.Error("empty fingerprint must never count as processed")
	}
	if err := m.MarkProcessed(Entry{Fingerprint: "a", SourceID: "Message/1", Targets: []string{"eml", "mbox"}}); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if err := m.MarkProcessed(Entry{Fingerprint: "a", SourceID: "Message/1", Targets: []string{"imap"}}); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if !m.AlreadyProcessed("a") || m.AlreadyProcessed("b") {
		t.Error("AlreadyProcessed() mismatch")
	}

	s := m.Snapshot()
	if s.Processed != 1 || s.ByTarget["eml"] != 1 || s.ByTarget["imap"] != 0 {
		t.Errorf("Snapshot() = %+v, first entry must win", s)
	}
}

func TestFileTracker_Reload(t *testing.T) {
	dir := t.TempDir()

	tracker, err := NewFileTracker(dir, true)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	for _, fp := range []string{"one", "two", "one"} {
		if err := tracker.MarkProcessed(Entry{Fingerprint: fp, SourceID: "id-" + fp, Targets: []string{"eml"}}); err != nil {
			t.Fatalf("MarkProcessed(%s) error = %v", fp, err)
		}
	}
	if err := tracker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("journal has %d lines, want 2 (duplicates are not rewritten)", lines)
	}

	reloaded, err := NewFileTracker(dir, false)
	if err != nil {
		t.Fatalf("NewFileTracker() reload error = %v", err)
	}
	defer reloaded.Close()
	if !reloaded.AlreadyProcessed("one") || !reloaded.AlreadyProcessed("two") {
		t.Error("reloaded tracker lost entries")
	}
	entry, ok := reloaded.Lookup("two")
	if !ok || entry.SourceID != "id-two" || entry.ExportedAt.IsZero() {
		t.Errorf("Lookup(two) = %+v, %v", entry, ok)
	}
}

func TestFileTracker_DryRunDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewFileTracker(dir, false)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	if err := tracker.MarkProcessed(Entry{Fingerprint: "x"}); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if err := tracker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(tracker.Path()); !os.IsNotExist(err) {
		t.Errorf("dry run created %s", tracker.Path())
	}
}

func TestFileTracker_CorruptJournal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{not json}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileTracker(dir, false); err == nil {
		t.Error("expected parse error for corrupt journal")
	}
}

func TestNewFileTracker_EmptyDir(t *testing.T) {
	if _, err := NewFileTracker("  ", true); err == nil {
		t.Error("expected error for empty state directory")
	}
}
