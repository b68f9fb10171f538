package recovery

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dhcgn/edb-recover/model"
	"github.com/dhcgn/edb-recover/nativebody"
	"github.com/dhcgn/edb-recover/propblob"
	"github.com/dhcgn/edb-recover/recordstore"
	"github.com/dhcgn/edb-recover/textenc"
)

// structured runs the Record Store tier. It returns the number of emitted messages
// and whether the consumer stopped the sequence. A non-nil error means the store
// itself could not be used.
func (p *Pipeline) structured(ctx context.Context, emit func(model.RecoveredMessage) bool) (int, bool, error) {
	if p.opts.Opener == nil {
		return 0, false, ErrNoStore
	}
	store, err := p.opts.Opener(p.opts.Path)
	if err != nil {
		return 0, false, fmt.Errorf("open record store: %w", err)
	}
	defer store.Close()

	names, err := store.TableNames()
	if err != nil {
		return 0, false, fmt.Errorf("list tables: %w", err)
	}

	for _, n := range p.opts.Mailboxes {
		if findTable(names, MessageTableName(n)) == "" {
			p.logger.Warn("mailbox has no message table", "mailbox", n, "table", MessageTableName(n))
		}
	}

	count := 0
	for _, table := range names {
		if !p.isMessageTable(table) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return count, false, err
		}

		columns, err := store.Columns(table)
		if err != nil {
			p.skip(Skip{Tier: model.TierStructured, Table: table, Record: -1, Page: -1, Err: fmt.Errorf("list columns: %w", err)})
			continue
		}
		set := p.opts.Fields.narrow(columns)
		if set.empty() {
			p.logger.Debug("table has no message columns", "table", table)
			continue
		}
		records, err := store.RecordCount(table)
		if err != nil {
			p.skip(Skip{Tier: model.TierStructured, Table: table, Record: -1, Page: -1, Err: fmt.Errorf("count records: %w", err)})
			continue
		}
		p.logger.Info("reading message table", "table", table, "records", records)

		for idx := 0; idx < records; idx++ {
			if err := ctx.Err(); err != nil {
				return count, false, err
			}
			rr := recordReader{store: store, table: table, record: idx, columns: set}
			msg, ok, err := isolate(func() (model.RecoveredMessage, bool, error) {
				return p.mapRecord(rr)
			})
			if err != nil {
				p.skip(Skip{Tier: model.TierStructured, Table: table, Record: idx, Page: -1, Err: err})
				continue
			}
			if !ok {
				continue
			}
			count++
			if !emit(msg) {
				return count, true, nil
			}
		}
	}
	return count, false, nil
}

func (p *Pipeline) isMessageTable(name string) bool {
	if len(p.opts.Mailboxes) > 0 {
		for _, n := range p.opts.Mailboxes {
			if strings.EqualFold(name, MessageTableName(n)) {
				return true
			}
		}
		return false
	}
	lower := strings.ToLower(name)
	for _, hint := range p.opts.TableHints {
		if hint != "" && strings.Contains(lower, strings.ToLower(hint)) {
			return true
		}
	}
	return false
}

// mapRecord builds a message from one record. It reports false for records that
// hold no subject, sender or body.
func (p *Pipeline) mapRecord(rr recordReader) (model.RecoveredMessage, bool, error) {
	msg := model.RecoveredMessage{
		ID:         fmt.Sprintf("%s_%d", rr.table, rr.record),
		Table:      rr.table,
		Record:     rr.record,
		Page:       -1,
		Offset:     -1,
		Tier:       model.TierStructured,
		Confidence: model.ConfidenceHigh,
	}
	msg.AddNote("recovered by structured read of table %s record %d", rr.table, rr.record)

	var err error
	if msg.Subject, err = rr.text(&msg, FieldSubject); err != nil {
		return msg, false, err
	}
	if msg.Sender, err = rr.text(&msg, FieldSender); err != nil {
		return msg, false, err
	}
	if msg.SenderName, err = rr.text(&msg, FieldSenderName); err != nil {
		return msg, false, err
	}
	if msg.MessageID, err = rr.text(&msg, FieldMessageID); err != nil {
		return msg, false, err
	}
	msg.MessageID = strings.Trim(msg.MessageID, " <>")

	if err := p.mapBody(rr, &msg); err != nil {
		return msg, false, err
	}
	if err := p.mapPropertyBlob(rr, &msg); err != nil {
		return msg, false, err
	}

	to, err := rr.text(&msg, FieldDisplayTo)
	if err != nil {
		return msg, false, err
	}
	for _, r := range strings.Split(to, ";") {
		if r = strings.TrimSpace(r); r != "" {
			msg.Recipients = append(msg.Recipients, r)
		}
	}

	raw, col, err := rr.first(FieldDate)
	if err != nil {
		return msg, false, err
	}
	if raw != nil {
		if t, ok := FromFiletime(raw); ok {
			msg.Date = t
		} else {
			msg.AddNote("column %s is not a valid FILETIME", col)
		}
	}

	raw, _, err = rr.first(FieldFolder)
	if err != nil {
		return msg, false, err
	}
	if raw != nil {
		msg.Folder = p.opts.Folders.Name(hex.EncodeToString(raw))
	}

	class, err := rr.text(&msg, FieldMessageClass)
	if err != nil {
		return msg, false, err
	}
	if class != "" && !strings.HasPrefix(class, "IPM.") {
		msg.Confidence = model.ConfidenceLow
		msg.AddNote("message class %q does not start with IPM., content may be encrypted", class)
	}

	return msg, msg.HasContent(), nil
}

func (p *Pipeline) mapBody(rr recordReader, msg *model.RecoveredMessage) error {
	body, err := rr.text(msg, FieldBody)
	if err != nil {
		return err
	}
	if body != "" {
		msg.Body = body
		return nil
	}

	for _, field := range []Field{FieldNativeBody, FieldHTML} {
		raw, col, err := rr.first(field)
		if err != nil {
			return err
		}
		if raw == nil {
			continue
		}
		text, decoded := nativebody.Text(raw)
		if text == "" {
			msg.AddNote("column %s held no readable text", col)
			continue
		}
		msg.Body = text
		msg.AddNote("body decoded from %s (%s)", col, decoded.Origin)
		if decoded.InvalidMatches > 0 {
			msg.AddNote("skipped %d invalid back-references in %s", decoded.InvalidMatches, col)
		}
		if decoded.Origin == nativebody.OriginHeaderStripped {
			msg.Confidence = lower(msg.Confidence, model.ConfidenceMedium)
		}
		return nil
	}

	raw, col, err := rr.first(FieldLargeBlob)
	if err != nil {
		return err
	}
	if text := propblob.BodyFromLargeBlob(raw); text != "" {
		msg.Body = text
		msg.AddNote("body recovered heuristically from %s", col)
		msg.Confidence = lower(msg.Confidence, model.ConfidenceMedium)
	}
	return nil
}

func (p *Pipeline) mapPropertyBlob(rr recordReader, msg *model.RecoveredMessage) error {
	if msg.Subject != "" && msg.Sender != "" {
		return nil
	}
	raw, col, err := rr.first(FieldPropertyBlob)
	if err != nil || raw == nil {
		return err
	}

	fields := p.opts.Blobs.Extract(raw)
	if msg.Sender == "" && fields.Sender.IsSet() {
		msg.Sender = fields.Sender.Value
		msg.AddNote("sender recovered heuristically from %s (%s)", col, fields.Sender.Source)
		msg.Confidence = lower(msg.Confidence, fields.Sender.Confidence)
	}
	if msg.Subject == "" && fields.Subject.IsSet() {
		msg.Subject = fields.Subject.Value
		msg.AddNote("subject recovered heuristically from %s (%s)", col, fields.Subject.Source)
		msg.Confidence = lower(msg.Confidence, fields.Subject.Confidence)
	}
	return nil
}

func lower(a, b model.Confidence) model.Confidence {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}

type recordReader struct {
	store   recordstore.Store
	table   string
	record  int
	columns columnSet
}

// first returns the first non-empty value among the candidate columns of field.
func (rr recordReader) first(field Field) ([]byte, string, error) {
	for _, col := range rr.columns[field] {
		raw, err := recordstore.Read(rr.store, rr.table, rr.record, col)
		if err != nil {
			return nil, col, fmt.Errorf("read %s: %w", col, err)
		}
		if len(raw) > 0 {
			return raw, col, nil
		}
	}
	return nil, "", nil
}

// text decodes the candidates of field in order and returns the first one that
// holds printable text. Values that decode in none of the column encodings are
// noted and skipped.
func (rr recordReader) text(msg *model.RecoveredMessage, field Field) (string, error) {
	for _, col := range rr.columns[field] {
		raw, err := recordstore.Read(rr.store, rr.table, rr.record, col)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", col, err)
		}
		if len(raw) == 0 {
			continue
		}
		s, _, ok := textenc.Decode(raw, textenc.ColumnChain)
		if !ok {
			msg.AddNote("column %s could not be decoded", col)
			continue
		}
		if s = strings.TrimSpace(textenc.Printable(s, true)); s != "" {
			return s, nil
		}
	}
	return "", nil
}
