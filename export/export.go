// Package export renders recovered messages as RFC 5322 mail and writes them to
// their destinations.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/mail"

	"github.com/dhcgn/edb-recover/model"
)

// Provenance headers carried by every rendered message.
const (
	HeaderRecovered  = "X-Recovered"
	HeaderTier       = "X-Recovery-Tier"
	HeaderConfidence = "X-Recovery-Confidence"
	HeaderNote       = "X-Recovery-Note"
	HeaderFolder     = "X-Folder"
	HeaderSource     = "X-Recovery-Source"
)

// Exporter writes recovered messages to one destination.
type Exporter interface {
	Name() string
	Export(ctx context.Context, msg model.RecoveredMessage) error
	Close() error
}

// Render formats msg as a single-part text/plain message.
func Render(msg model.RecoveredMessage) ([]byte, error) {
	var h mail.Header
	if !msg.Date.IsZero() {
		h.SetDate(msg.Date)
	}
	h.SetSubject(msg.DisplaySubject())
	if msg.Sender != "" {
		h.SetAddressList("From", []*mail.Address{{Name: msg.SenderName, Address: msg.Sender}})
	}
	if len(msg.Recipients) > 0 {
		h.SetText("To", strings.Join(msg.Recipients, ", "))
	}
	h.SetMessageID(messageID(msg))
	if msg.Folder != "" {
		h.SetText(HeaderFolder, msg.Folder)
	}

	h.Set(HeaderRecovered, fmt.Sprintf("%t", msg.Recovered))
	h.Set(HeaderTier, string(msg.Tier))
	h.Set(HeaderConfidence, string(msg.Confidence))
	h.SetText(HeaderSource, msg.ID)
	for _, note := range msg.Notes {
		h.Add(HeaderNote, mime.QEncoding.Encode("utf-8", note))
	}

	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

var idUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func messageID(msg model.RecoveredMessage) string {
	if id := strings.Trim(msg.MessageID, "<> "); id != "" {
		return id
	}
	return idUnsafe.ReplaceAllString(msg.ID, "_") + "@recovered.invalid"
}

var fileUnsafe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeName makes s safe to use as a single path element.
func SanitizeName(s string) string {
	s = fileUnsafe.ReplaceAllString(s, "_")
	s = strings.Trim(s, ". ")
	if s == "" {
		return "unnamed"
	}
	return s
}

// SanitizePath sanitizes every element of a slash separated folder path.
func SanitizePath(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		out = append(out, SanitizeName(part))
	}
	return out
}

const maxSubjectInName = 50

// FileName returns the base name (without extension) for a message file: the date
// and subject when a date is known, the message id and subject otherwise.
func FileName(msg model.RecoveredMessage) string {
	subject := msg.Subject
	if subject == "" {
		subject = "no_subject"
	}
	subject = SanitizeName(subject)
	if utf8.RuneCountInString(subject) > maxSubjectInName {
		subject = string([]rune(subject)[:maxSubjectInName])
	}

	if !msg.Date.IsZero() {
		return msg.Date.UTC().Format("20060102_150405") + "_" + subject
	}
	id := msg.ID
	if len(id) > 20 {
		id = id[:20]
	}
	return SanitizeName(id) + "_" + subject
}
