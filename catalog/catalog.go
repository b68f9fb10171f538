// Package catalog indexes recovered messages in a SQLite database with an FTS5
// table, so a recovery can be searched without opening every exported file.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/dhcgn/edb-recover/htmltext"
	"github.com/dhcgn/edb-recover/model"
)

// FileName is the database created inside the output directory.
const FileName = "catalog.db"

// PreviewRunes bounds the indexed body text.
const PreviewRunes = 10000

type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

// Entry is one catalogued message.
type Entry struct {
	ID          int64
	Fingerprint string
	SourceID    string
	MessageID   string
	Subject     string
	Sender      string
	SenderName  string
	Recipients  string
	Folder      string
	Date        sql.NullTime
	Tier        model.Tier
	Confidence  model.Confidence
	Notes       string
	BodyPreview string
	Snippet     string
}

// Open opens or creates the catalog at dbPath. ":memory:" is accepted.
func Open(dbPath string, logger *slog.Logger) (*Catalog, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize catalog schema: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{db: db, logger: logger}, nil
}

func (c *Catalog) Name() string {
	return "catalog"
}

// Export inserts msg. A message already catalogued under the same fingerprint
// is left untouched.
func (c *Catalog) Export(ctx context.Context, msg model.RecoveredMessage) error {
	var date any
	if !msg.Date.IsZero() {
		date = msg.Date.UTC()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO messages (
			fingerprint, source_id, message_id, subject, sender, sender_name, recipients,
			folder, date, tier, confidence, source_table, source_record, source_page,
			source_offset, notes, body_preview, body_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`,
		msg.Fingerprint(), msg.ID, msg.MessageID, msg.Subject, msg.Sender, msg.SenderName,
		strings.Join(msg.Recipients, ", "), msg.Folder, date, string(msg.Tier), string(msg.Confidence),
		msg.Table, msg.Record, msg.Page, msg.Offset, strings.Join(msg.Notes, "\n"),
		htmltext.Preview(msg.Body, PreviewRunes), len(msg.Body),
	)
	if err != nil {
		return fmt.Errorf("catalog insert %s: %w", msg.ID, err)
	}
	return nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Count returns the number of catalogued messages.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// CountByTier groups the catalogue by recovery tier.
func (c *Catalog) CountByTier(ctx context.Context) (map[model.Tier]int, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT tier, COUNT(*) FROM messages GROUP BY tier")
	if err != nil {
		return nil, fmt.Errorf("count by tier: %w", err)
	}
	defer rows.Close()

	out := make(map[model.Tier]int)
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("scan tier count: %w", err)
		}
		out[model.Tier(tier)] = n
	}
	return out, rows.Err()
}

const entryColumns = `
	m.id, m.fingerprint, m.source_id, COALESCE(m.message_id, ''), COALESCE(m.subject, ''),
	COALESCE(m.sender, ''), COALESCE(m.sender_name, ''), COALESCE(m.recipients, ''),
	COALESCE(m.folder, ''), m.date, m.tier, m.confidence, COALESCE(m.notes, ''),
	COALESCE(m.body_preview, '')`

// Search runs a prefix-matching full text query. An empty query lists the most
// recent messages.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	terms := strings.Fields(query)
	if len(terms) == 0 {
		rows, err := c.db.QueryContext(ctx, `SELECT `+entryColumns+`, '' FROM messages m
			ORDER BY m.date DESC, m.id DESC LIMIT ?`, limit)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		return scanEntries(rows)
	}

	for i, term := range terms {
		terms[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"*`
	}
	rows, err := c.db.QueryContext(ctx, `SELECT `+entryColumns+`,
			snippet(messages_fts, 4, '[', ']', '...', 16)
		FROM messages m
		JOIN messages_fts ON m.id = messages_fts.rowid
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, strings.Join(terms, " "), limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var tier, confidence string
		if err := rows.Scan(
			&e.ID, &e.Fingerprint, &e.SourceID, &e.MessageID, &e.Subject,
			&e.Sender, &e.SenderName, &e.Recipients,
			&e.Folder, &e.Date, &tier, &confidence, &e.Notes,
			&e.BodyPreview, &e.Snippet,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		e.Tier = model.Tier(tier)
		e.Confidence = model.Confidence(confidence)
		out = append(out, e)
	}
	return out, rows.Err()
}
