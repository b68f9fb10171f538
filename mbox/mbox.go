// Package mbox writes recovered messages into mbox files, one per folder, and
// reads mbox files back for statistics.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	mboxlib "github.com/emersion/go-mbox"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/dhcgn/edb-recover/export"
	"github.com/dhcgn/edb-recover/model"
)

// DefaultFile receives messages without a folder.
const DefaultFile = "recovered"

const unknownSender = "MAILER-DAEMON"

// envelopeSender returns the address for the From_ separator line. Anything that
// is not a single address without spaces falls back to unknownSender.
func envelopeSender(sender string) string {
	addr, err := mail.ParseAddress(strings.TrimSpace(sender))
	if err != nil || addr.Address == "" || strings.ContainsAny(addr.Address, " \t\r\n") {
		return unknownSender
	}
	return addr.Address
}

// Writer appends rendered messages to <dir>/<folder>.mbox.
type Writer struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	files map[string]*folderFile
}

type folderFile struct {
	file   *os.File
	writer *mboxlib.Writer
}

func NewWriter(dir string, logger *slog.Logger) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("mbox output directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mbox directory: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{dir: dir, logger: logger, files: make(map[string]*folderFile)}, nil
}

func (w *Writer) Name() string {
	return "mbox"
}

// FileFor returns the mbox path a message with the given folder is written to.
func (w *Writer) FileFor(folder string) string {
	name := strings.Join(export.SanitizePath(folder), "_")
	if name == "" {
		name = DefaultFile
	}
	return filepath.Join(w.dir, name+".mbox")
}

func (w *Writer) Export(ctx context.Context, msg model.RecoveredMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := export.Render(msg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ff, err := w.open(w.FileFor(msg.Folder))
	if err != nil {
		return err
	}

	from := envelopeSender(msg.Sender)
	date := msg.Date
	if date.IsZero() {
		date = time.Unix(0, 0).UTC()
	}
	mw, err := ff.writer.CreateMessage(from, date)
	if err != nil {
		return fmt.Errorf("mbox create message: %w", err)
	}
	if _, err := mw.Write(raw); err != nil {
		return fmt.Errorf("mbox write message: %w", err)
	}
	return nil
}

func (w *Writer) open(path string) (*folderFile, error) {
	if ff, ok := w.files[path]; ok {
		return ff, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open mbox %s: %w", path, err)
	}
	ff := &folderFile{file: file, writer: mboxlib.NewWriter(file)}
	w.files[path] = ff
	w.logger.Debug("opened mbox", "path", path)
	return ff, nil
}

// Close finishes every open mbox file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for path, ff := range w.files {
		if err := ff.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("finish mbox %s: %w", path, err))
		}
		if err := ff.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mbox %s: %w", path, err))
		}
		delete(w.files, path)
	}
	return errors.Join(errs...)
}

// Message is a single message read back from an mbox file.
type Message struct {
	Header mail.Header
	Body   []byte
}

// Read iterates the messages of an mbox file. Messages that cannot be parsed
// are skipped.
func Read(path string, callback func(m *Message) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	return ReadFrom(file, callback)
}

func ReadFrom(r io.Reader, callback func(m *Message) error) error {
	reader := mboxlib.NewReader(r)
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		msg, err := parse(msgReader)
		if err != nil {
			// try to continue
			continue
		}
		if err := callback(msg); err != nil {
			return err
		}
	}
}

func parse(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, err
	}
	defer mr.Close()

	msg := &Message{Header: mr.Header}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, ok := part.Header.(*mail.InlineHeader); !ok {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, err
		}
		msg.Body = append(msg.Body, body...)
	}
	return msg, nil
}

// CountMessages counts the total number of messages in an mbox file.
func CountMessages(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}
		if _, err := io.Copy(io.Discard, msgReader); err != nil {
			return 0, err
		}
		count++
	}
}
