// Package state remembers which recovered messages were already exported so a
// rerun over the same store only emits what is new.
package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the journal written inside the state directory.
const FileName = "exported.jsonl"

type Tracker interface {
	AlreadyProcessed(fingerprint string) bool
	MarkProcessed(entry Entry) error
	Snapshot() Snapshot
	Close() error
}

// Entry records one exported message.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	SourceID    string    `json:"source_id"`
	Targets     []string  `json:"targets,omitempty"`
	ExportedAt  time.Time `json:"exported_at"`
}

type Snapshot struct {
	Processed int
	ByTarget  map[string]int
}

type MemoryTracker struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{entries: make(map[string]Entry)}
}

func (m *MemoryTracker) AlreadyProcessed(fingerprint string) bool {
	if fingerprint == "" {
		return false
	}

	m.mu.RLock()
	_, ok := m.entries[fingerprint]
	m.mu.RUnlock()
	return ok
}

func (m *MemoryTracker) MarkProcessed(entry Entry) error {
	m.remember(entry)
	return nil
}

// remember stores entry and reports whether it was new.
func (m *MemoryTracker) remember(entry Entry) bool {
	if entry.Fingerprint == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[entry.Fingerprint]; exists {
		return false
	}
	m.entries[entry.Fingerprint] = entry
	return true
}

// Lookup returns the stored entry for fingerprint.
func (m *MemoryTracker) Lookup(fingerprint string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[fingerprint]
	return e, ok
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{Processed: len(m.entries), ByTarget: make(map[string]int)}
	for _, e := range m.entries {
		for _, t := range e.Targets {
			s.ByTarget[t]++
		}
	}
	return s
}

func (m *MemoryTracker) Close() error {
	return nil
}

// FileTracker persists exported fingerprints so future runs can skip them.
type FileTracker struct {
	*MemoryTracker
	path    string
	persist bool
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
}

// NewFileTracker loads <stateDir>/exported.jsonl. With persist false (dry runs)
// the journal is read but never written.
func NewFileTracker(stateDir string, persist bool) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		path:          filepath.Join(stateDir, FileName),
		persist:       persist,
	}

	if err := tracker.load(); err != nil {
		return nil, err
	}

	if persist {
		file, err := os.OpenFile(tracker.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open state file for append: %w", err)
		}
		tracker.file = file
		tracker.writer = bufio.NewWriterSize(file, 64*1024)
	}

	return tracker, nil
}

func (f *FileTracker) Path() string {
	return f.path
}

func (f *FileTracker) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(text, &entry); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		f.remember(entry)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	return nil
}

func (f *FileTracker) MarkProcessed(entry Entry) error {
	if entry.ExportedAt.IsZero() {
		entry.ExportedAt = time.Now().UTC()
	}
	if !f.remember(entry) || !f.persist {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.writer.Write(data); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	return nil
}

// Flush writes any buffered data to the underlying file.
func (f *FileTracker) Flush() error {
	if !f.persist || f.writer == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush state file: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync state file: %w", err)
	}
	return nil
}

// Close flushes and closes the state file.
func (f *FileTracker) Close() error {
	if !f.persist || f.file == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var firstErr error
	if err := f.writer.Flush(); err != nil {
		firstErr = fmt.Errorf("flush state file: %w", err)
	}
	if err := f.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync state file: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close state file: %w", err)
	}
	f.file = nil

	return firstErr
}
