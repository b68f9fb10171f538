package model

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tier names the recovery strategy that produced a message.
type Tier string

const (
	TierStructured Tier = "structured"
	TierRawScan    Tier = "raw-scan"
)

// Confidence grades how much a recovered value can be trusted.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank orders confidences: low < medium < high. Unknown values rank 0.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	}
	return 0
}

// ParseConfidence accepts "", "low", "medium" and "high" in any case.
func ParseConfidence(s string) (Confidence, error) {
	c := Confidence(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case "", ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return c, nil
	}
	return "", fmt.Errorf("unknown confidence %q", s)
}

// Field is a single recovered value with its provenance. An empty Value means the
// field could not be recovered.
type Field struct {
	Value      string
	Source     string
	Confidence Confidence
}

// IsSet reports whether the field carries a value.
func (f Field) IsSet() bool {
	return f.Value != ""
}

// ExtractedFields are the candidates a heuristic extractor found in an untyped blob.
type ExtractedFields struct {
	Subject     Field
	Sender      Field
	BodyPreview Field
}

// Empty reports whether no field was recovered.
func (e ExtractedFields) Empty() bool {
	return !e.Subject.IsSet() && !e.Sender.IsSet() && !e.BodyPreview.IsSet()
}

// RecoveredMessage is a best-effort reconstruction of a mailbox message. Recovered is
// always true for messages produced by the recovery pipeline; Notes records, in
// order, which tier produced the message and what had to be tolerated on the way.
type RecoveredMessage struct {
	ID         string
	MessageID  string
	Subject    string
	Sender     string
	SenderName string
	Recipients []string
	Date       time.Time
	Folder     string
	Body       string
	Table      string
	Record     int
	Page       int
	Offset     int
	Tier       Tier
	Confidence Confidence
	Recovered  bool
	Notes      []string
}

// AddNote appends a formatted provenance note.
func (m *RecoveredMessage) AddNote(format string, args ...any) {
	m.Notes = append(m.Notes, fmt.Sprintf(format, args...))
}

// HasContent reports whether any of subject, sender or body was recovered.
func (m RecoveredMessage) HasContent() bool {
	return m.Subject != "" || m.Sender != "" || m.Body != ""
}

// Fingerprint identifies a message by its recovered content so that reruns over the
// same file can skip messages that were already exported.
func (m RecoveredMessage) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{
		string(m.Tier),
		m.Table,
		strconv.Itoa(m.Record),
		strconv.Itoa(m.Page),
		strconv.Itoa(m.Offset),
		m.Subject,
		m.Sender,
		m.Body,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// DisplaySubject returns the subject or a placeholder.
func (m RecoveredMessage) DisplaySubject() string {
	if s := strings.TrimSpace(m.Subject); s != "" {
		return s
	}
	return "(No Subject)"
}

// Envelope wraps a recovered message alongside an optional terminal error.
type Envelope struct {
	Message RecoveredMessage
	Err     error
}
