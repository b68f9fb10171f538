package state

import (
	"fmt"
	"testing"
	"time"
)

var benchTargets = [][]string{
	{"eml"},
	{"eml", "catalog"},
	{"mbox", "imap"},
}

func benchEntry(i int) Entry {
	return Entry{
		Fingerprint: fmt.Sprintf("fp-%d", i),
		SourceID:    fmt.Sprintf("Message_101_%d", i),
		Targets:     benchTargets[i%len(benchTargets)],
		ExportedAt:  time.Unix(int64(i), 0).UTC(),
	}
}

// journal writes n entries to a persistent tracker in dir and closes it.
func journal(b *testing.B, dir string, n int) {
	b.Helper()
	tracker, err := NewFileTracker(dir, true)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if err := tracker.MarkProcessed(benchEntry(i)); err != nil {
			b.Fatal(err)
		}
	}
	if err := tracker.Close(); err != nil {
		b.Fatal(err)
	}
}

func BenchmarkFileTracker_MarkProcessed(b *testing.B) {
	tracker, err := NewFileTracker(b.TempDir(), true)
	if err != nil {
		b.Fatal(err)
	}
	defer tracker.Close()

	i := 0
	for b.Loop() {
		if err := tracker.MarkProcessed(benchEntry(i)); err != nil {
			b.Fatal(err)
		}
		i++
	}
}

// Re-exporting a message already in the journal keeps the first entry and writes nothing.
func BenchmarkFileTracker_MarkDuplicate(b *testing.B) {
	dir := b.TempDir()
	journal(b, dir, 1000)
	tracker, err := NewFileTracker(dir, true)
	if err != nil {
		b.Fatal(err)
	}
	defer tracker.Close()

	i := 0
	for b.Loop() {
		if err := tracker.MarkProcessed(benchEntry(i % 1000)); err != nil {
			b.Fatal(err)
		}
		i++
	}
}

func BenchmarkFileTracker_AlreadyProcessed(b *testing.B) {
	dir := b.TempDir()
	journal(b, dir, 1000)
	tracker, err := NewFileTracker(dir, false)
	if err != nil {
		b.Fatal(err)
	}

	i := 0
	for b.Loop() {
		_ = tracker.AlreadyProcessed(fmt.Sprintf("fp-%d", i%2000))
		i++
	}
}

// BenchmarkFileTracker_Replay measures reading a 10k entry exported.jsonl on startup.
func BenchmarkFileTracker_Replay(b *testing.B) {
	dir := b.TempDir()
	journal(b, dir, 10000)

	for b.Loop() {
		tracker, err := NewFileTracker(dir, false)
		if err != nil {
			b.Fatal(err)
		}
		if got := tracker.Snapshot().Processed; got != 10000 {
			b.Fatalf("Processed = %d after replay", got)
		}
	}
}

func BenchmarkFileTracker_FlushEvery100(b *testing.B) {
	tracker, err := NewFileTracker(b.TempDir(), true)
	if err != nil {
		b.Fatal(err)
	}
	defer tracker.Close()

	i := 0
	for b.Loop() {
		if err := tracker.MarkProcessed(benchEntry(i)); err != nil {
			b.Fatal(err)
		}
		if i%100 == 0 {
			if err := tracker.Flush(); err != nil {
				b.Fatal(err)
			}
		}
		i++
	}
}

// BenchmarkSnapshot_ByTarget measures the per-target tally printed after a run.
func BenchmarkSnapshot_ByTarget(b *testing.B) {
	for _, n := range []int{100, 10000} {
		b.Run(fmt.Sprintf("entries=%d", n), func(b *testing.B) {
			tracker := NewMemoryTracker()
			for i := 0; i < n; i++ {
				if err := tracker.MarkProcessed(benchEntry(i)); err != nil {
					b.Fatal(err)
				}
			}

			for b.Loop() {
				s := tracker.Snapshot()
				if s.ByTarget["eml"] == 0 {
					b.Fatal("no eml targets counted")
				}
			}
		})
	}
}

func BenchmarkMemoryTracker_MarkProcessed(b *testing.B) {
	tracker := NewMemoryTracker()

	i := 0
	for b.Loop() {
		if err := tracker.MarkProcessed(benchEntry(i)); err != nil {
			b.Fatal(err)
		}
		i++
	}
}
