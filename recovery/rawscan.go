package recovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/dhcgn/edb-recover/corruption"
	"github.com/dhcgn/edb-recover/model"
	"github.com/dhcgn/edb-recover/textenc"
)

const (
	// WindowBefore and WindowAfter bound the bytes taken around an ASCII anchor.
	// UTF-16LE anchors use twice as many.
	WindowBefore = 100
	WindowAfter  = 500
)

// Anchors are searched in this order; the first one present in a page wins.
var Anchors = []string{"Subject:", "From:", "To:", "Date:", "Message-ID:"}

type anchor struct {
	name    string
	pattern []byte
	wide    bool
}

var scanAnchors = func() []anchor {
	out := make([]anchor, 0, 2*len(Anchors))
	for _, a := range Anchors {
		out = append(out, anchor{name: a, pattern: []byte(a)})
	}
	for _, a := range Anchors {
		out = append(out, anchor{name: a, pattern: textenc.EncodeUTF16LE(a), wide: true})
	}
	return out
}()

// rawScan reads the file page by page and emits at most one message per page.
func (p *Pipeline) rawScan(ctx context.Context, pageSize int, emit func(model.RecoveredMessage) bool) (int, bool, error) {
	if pageSize <= 0 {
		pageSize = corruption.DefaultPageSize
	}
	f, err := os.Open(p.opts.Path)
	if err != nil {
		return 0, false, fmt.Errorf("open database: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, false, fmt.Errorf("stat database: %w", err)
	}

	p.logger.Info("starting raw scan", "path", p.opts.Path, "page_size", pageSize, "size", info.Size())

	buf := make([]byte, pageSize)
	count := 0
	for page := 0; int64(page)*int64(pageSize) < info.Size(); page++ {
		if err := ctx.Err(); err != nil {
			return count, false, err
		}
		off := int64(page) * int64(pageSize)
		n, err := f.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			p.skip(Skip{Tier: model.TierRawScan, Record: -1, Page: page, Err: fmt.Errorf("read page: %w", err)})
			continue
		}

		msg, ok, err := isolate(func() (model.RecoveredMessage, bool, error) {
			m, ok := scanPage(buf[:n], page, off)
			return m, ok, nil
		})
		if err != nil {
			p.skip(Skip{Tier: model.TierRawScan, Record: -1, Page: page, Err: err})
			continue
		}
		if page%1000 == 999 {
			p.logger.Debug("raw scan progress", "pages", page+1, "messages", count)
		}
		if !ok {
			continue
		}
		count++
		if !emit(msg) {
			return count, true, nil
		}
	}
	return count, false, nil
}

// scanPage looks for the first anchor present in page and reconstructs a message
// from the window around its first occurrence.
func scanPage(page []byte, pageNum int, pageOffset int64) (model.RecoveredMessage, bool) {
	for _, a := range scanAnchors {
		idx := bytes.Index(page, a.pattern)
		if idx < 0 {
			continue
		}

		text, enc, ok := decodeWindow(page, idx, a.wide)
		if !ok {
			continue
		}

		msg := model.RecoveredMessage{
			ID:         fmt.Sprintf("raw_%d_%d", pageNum, idx),
			Body:       text,
			Record:     -1,
			Page:       pageNum,
			Offset:     int(pageOffset) + idx,
			Tier:       model.TierRawScan,
			Confidence: model.ConfidenceLow,
		}
		msg.AddNote("recovered by raw scan of page %d at offset %d (anchor %q, %s)", pageNum, msg.Offset, a.name, enc)
		parseHeaderLines(&msg, text)
		return msg, true
	}
	return model.RecoveredMessage{}, false
}

func decodeWindow(page []byte, idx int, wide bool) (string, textenc.Encoding, bool) {
	before, after, chain := WindowBefore, WindowAfter, textenc.ASCIIWindowChain
	if wide {
		before, after, chain = 2*WindowBefore, 2*WindowAfter, textenc.WideWindowChain
	}

	start := max(0, idx-before)
	end := min(len(page), idx+after)
	if wide {
		// Keep the window aligned to the anchor's code units.
		if (idx-start)%2 != 0 {
			start++
		}
		if (end-start)%2 != 0 {
			end--
		}
	}

	text, enc, ok := textenc.Decode(page[start:end], chain)
	if !ok {
		return "", "", false
	}
	text = strings.TrimSpace(textenc.Printable(text, true))
	if text == "" {
		return "", "", false
	}
	return text, enc, true
}

// parseHeaderLines fills subject, sender and message id from header-like lines.
func parseHeaderLines(msg *model.RecoveredMessage, text string) {
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch strings.ToLower(name) {
		case "subject":
			if msg.Subject == "" {
				msg.Subject = value
			}
		case "from":
			if msg.Sender != "" {
				continue
			}
			if addr, err := mail.ParseAddress(value); err == nil {
				msg.Sender = addr.Address
				msg.SenderName = addr.Name
			} else {
				msg.Sender = value
			}
		case "message-id":
			if msg.MessageID == "" {
				msg.MessageID = strings.Trim(value, " <>")
			}
		}
	}
}
