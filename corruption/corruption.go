// Package corruption inspects the header page of an Exchange database file and
// classifies how badly it is damaged.
package corruption

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sync"
)

// Kind classifies the damage found.
type Kind string

const (
	KindNone             Kind = "none"
	KindFileNotFound     Kind = "file_not_found"
	KindReadError        Kind = "read_error"
	KindTruncatedHeader  Kind = "truncated_header"
	KindInvalidSignature Kind = "invalid_signature"
	KindDirtyShutdown    Kind = "dirty_shutdown"
	KindSizeMismatch     Kind = "size_mismatch"
)

// Severity grades the damage. Higher values are worse.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityModerate
	SeveritySevere
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityMinor:
		return "minor"
	case SeverityModerate:
		return "moderate"
	case SeveritySevere:
		return "severe"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DBState is the database state flag stored in the file header.
type DBState uint32

const (
	StateUnknown DBState = 0
	StateClean   DBState = 1
	StateDirty   DBState = 2
	StateBackup  DBState = 3
)

func (s DBState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateBackup:
		return "backup"
	default:
		return "unknown"
	}
}

func (s DBState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	// HeaderSize is the minimum number of bytes a readable header page has.
	HeaderSize = 4096
	// DefaultPageSize is assumed when no page size field can be found.
	DefaultPageSize = 8192
)

var (
	// Signature is the magic value identifying the container format.
	Signature = []byte{0xef, 0xcd, 0xab, 0x89}

	// Header layouts differ between product versions, so fields are probed at
	// several offsets and the first plausible value wins.
	signatureOffsets = []int{0, 4}
	stateOffsets     = []int{52, 56, 60}
	pageSizeOffsets  = []int{236, 240, 244}

	// PageSizes are the page sizes the store engine supports.
	PageSizes = []int{4096, 8192, 16384, 32768}
)

// Report is the result of analysing one file.
type Report struct {
	Path        string   `json:"path"`
	Corrupted   bool     `json:"corrupted"`
	Kind        Kind     `json:"kind"`
	Severity    Severity `json:"severity"`
	Recoverable bool     `json:"recoverable"`
	Details     string   `json:"details,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	State       DBState  `json:"state"`
	PageSize    int      `json:"page_size"`
	FileSize    int64    `json:"file_size"`

	// SignatureOffset is where the magic value was found in the header.
	SignatureOffset int `json:"signature_offset"`
}

func (r *Report) flag(kind Kind, sev Severity, recoverable bool, details string) {
	r.Corrupted = true
	r.Kind = kind
	r.Severity = sev
	r.Recoverable = recoverable
	r.Details = details
}

// PageCount returns the number of whole pages in the file.
func (r Report) PageCount() int64 {
	if r.PageSize <= 0 {
		return 0
	}
	return r.FileSize / int64(r.PageSize)
}

// Analyzer examines a single file. The report is computed on first use and cached.
type Analyzer struct {
	path   string
	logger *slog.Logger

	once   sync.Once
	report Report
}

// NewAnalyzer returns an Analyzer for path. A nil logger discards output.
func NewAnalyzer(path string, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{path: path, logger: logger}
}

// Path returns the analysed file path.
func (a *Analyzer) Path() string {
	return a.path
}

// Analyze returns the corruption report for the file.
func (a *Analyzer) Analyze() Report {
	a.once.Do(func() {
		a.report = analyze(a.path)
		a.logger.Info("corruption analysis finished",
			"path", a.path,
			"kind", a.report.Kind,
			"severity", a.report.Severity.String(),
			"recoverable", a.report.Recoverable,
			"page_size", a.report.PageSize,
			"state", a.report.State.String(),
		)
		for _, w := range a.report.Warnings {
			a.logger.Warn("corruption analysis warning", "path", a.path, "warning", w)
		}
	})
	return a.report
}

func analyze(path string) Report {
	r := Report{Path: path, Kind: KindNone, Recoverable: true}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.flag(KindFileNotFound, SeveritySevere, false, fmt.Sprintf("file not found: %s", path))
		} else {
			r.flag(KindReadError, SeveritySevere, false, fmt.Sprintf("failed to open file: %v", err))
		}
		return r
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		r.flag(KindReadError, SeveritySevere, false, fmt.Sprintf("failed to stat file: %v", err))
		return r
	}
	r.FileSize = info.Size()

	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		r.flag(KindReadError, SeveritySevere, false, fmt.Sprintf("failed to read header: %v", err))
		return r
	}
	if n < HeaderSize {
		r.flag(KindTruncatedHeader, SeveritySevere, false,
			fmt.Sprintf("header truncated: read %d of %d bytes", n, HeaderSize))
		return r
	}

	off, ok := signatureOffset(header)
	if !ok {
		r.flag(KindInvalidSignature, SeveritySevere, false,
			fmt.Sprintf("invalid signature: expected %x, got %x", Signature, header[:len(Signature)]))
		return r
	}
	r.SignatureOffset = off
	if off != 0 {
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("signature found at offset %d instead of the start of the file (leading %x)", off, header[:off]))
	}

	r.State = probeState(header)
	if r.State == StateDirty {
		r.flag(KindDirtyShutdown, SeverityMinor, true, "database was not shut down cleanly")
	}

	pageSize, ok := probePageSize(header)
	if !ok {
		pageSize = DefaultPageSize
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("page size not found in header, assuming %d", DefaultPageSize))
	}
	r.PageSize = pageSize

	if rem := r.FileSize % int64(pageSize); rem != 0 && r.Severity < SeverityModerate {
		r.flag(KindSizeMismatch, SeverityModerate, true,
			fmt.Sprintf("file size %d is not a multiple of page size %d (%d trailing bytes)", r.FileSize, pageSize, rem))
	}

	return r
}

func signatureOffset(header []byte) (int, bool) {
	for _, off := range signatureOffsets {
		if bytes.Equal(header[off:off+len(Signature)], Signature) {
			return off, true
		}
	}
	return 0, false
}

func probeState(header []byte) DBState {
	for _, off := range stateOffsets {
		switch s := DBState(binary.LittleEndian.Uint32(header[off:])); s {
		case StateClean, StateDirty, StateBackup:
			return s
		}
	}
	return StateUnknown
}

func probePageSize(header []byte) (int, bool) {
	for _, off := range pageSizeOffsets {
		v := int(binary.LittleEndian.Uint32(header[off:]))
		if slices.Contains(PageSizes, v) {
			return v, true
		}
	}
	return 0, false
}
