// Package recovery turns a damaged Exchange database into a stream of recovered
// messages.
//
// Recovery runs in two tiers. The structured tier reads message tables through a
// Record Store and maps columns to message fields. When it yields nothing or the
// store cannot be used at all, the raw-scan tier reads the file page by page and
// reconstructs messages around header-like anchors. Files the corruption analyzer
// marks unrecoverable are not scanned at all.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/dhcgn/edb-recover/corruption"
	"github.com/dhcgn/edb-recover/folders"
	"github.com/dhcgn/edb-recover/model"
	"github.com/dhcgn/edb-recover/propblob"
	"github.com/dhcgn/edb-recover/recordstore"
)

var (
	// ErrUnrecoverable is returned when the file is too damaged for any tier.
	ErrUnrecoverable = errors.New("database is not recoverable")
	// ErrNoStore is reported when no Record Store opener is configured.
	ErrNoStore = errors.New("no record store configured")
	// ErrPanic wraps a panic raised while decoding a single record or page.
	ErrPanic = errors.New("panic during decode")
)

// DefaultTableHints select the tables that hold messages.
var DefaultTableHints = []string{"message", "msg"}

// Skip describes a record or page that was skipped because it could not be decoded.
type Skip struct {
	Tier   model.Tier
	Table  string
	Record int
	Page   int
	Err    error
}

// Options configure a Pipeline. Only Path is required.
type Options struct {
	Path string
	// Opener opens the Record Store for Path. Without it only the raw scan runs.
	Opener recordstore.Opener
	// TableHints are matched case-insensitively against table names.
	TableHints []string
	// Mailboxes restricts the structured tier to the message tables of these
	// mailbox numbers and replaces TableHints. The raw scan cannot tell mailboxes
	// apart and does not run when Mailboxes is set.
	Mailboxes []int
	Fields     FieldTable
	Folders    folders.Resolver
	Blobs      *propblob.Extractor
	// PageSize overrides the page size detected by the corruption analyzer.
	PageSize int
	// OnSkip is called for every skipped record or page.
	OnSkip func(Skip)
}

// Pipeline recovers messages from one database file.
type Pipeline struct {
	opts     Options
	logger   *slog.Logger
	analyzer *corruption.Analyzer
}

// New validates opts and returns a Pipeline. A nil logger discards output.
func New(opts Options, logger *slog.Logger) (*Pipeline, error) {
	opts.Path = strings.TrimSpace(opts.Path)
	if opts.Path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if opts.PageSize < 0 {
		return nil, fmt.Errorf("page size must not be negative")
	}
	for _, n := range opts.Mailboxes {
		if n < 0 {
			return nil, fmt.Errorf("mailbox number must not be negative: %d", n)
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(opts.TableHints) == 0 {
		opts.TableHints = DefaultTableHints
	}
	if opts.Fields == nil {
		opts.Fields = DefaultFieldTable()
	}
	if opts.Folders == nil {
		opts.Folders = folders.DefaultTable()
	}
	if opts.Blobs == nil {
		opts.Blobs = propblob.NewExtractor()
	}

	return &Pipeline{
		opts:     opts,
		logger:   logger,
		analyzer: corruption.NewAnalyzer(opts.Path, logger),
	}, nil
}

// Report returns the cached corruption report of the file.
func (p *Pipeline) Report() corruption.Report {
	return p.analyzer.Analyze()
}

// Messages returns the recovered messages as a lazy sequence. The sequence ends
// with a non-nil error only for terminal conditions: an unrecoverable file
// (wrapping ErrUnrecoverable) or a cancelled context. Stopping the range loop early
// releases the file and the Record Store.
func (p *Pipeline) Messages(ctx context.Context) iter.Seq2[model.RecoveredMessage, error] {
	return func(yield func(model.RecoveredMessage, error) bool) {
		report := p.Report()
		if !report.Recoverable {
			p.logger.Error("database is not recoverable", "path", p.opts.Path, "kind", report.Kind, "details", report.Details)
			yield(model.RecoveredMessage{}, fmt.Errorf("%w: %s: %s", ErrUnrecoverable, report.Kind, report.Details))
			return
		}

		emit := func(m model.RecoveredMessage) bool {
			m.Recovered = true
			return yield(m, nil)
		}

		count, stopped, err := p.structured(ctx, emit)
		if stopped {
			return
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			yield(model.RecoveredMessage{}, ctxErr)
			return
		}
		switch {
		case err != nil:
			p.logger.Warn("structured recovery failed, falling back to raw scan", "path", p.opts.Path, "err", err)
		case count == 0:
			p.logger.Info("structured recovery found no messages, falling back to raw scan", "path", p.opts.Path)
		default:
			p.logger.Info("structured recovery finished", "path", p.opts.Path, "messages", count)
			return
		}
		if len(p.opts.Mailboxes) > 0 {
			p.logger.Warn("raw scan skipped, pages cannot be attributed to a mailbox", "path", p.opts.Path, "mailboxes", p.opts.Mailboxes)
			return
		}

		pageSize := p.opts.PageSize
		if pageSize == 0 {
			pageSize = report.PageSize
		}
		count, stopped, err = p.rawScan(ctx, pageSize, emit)
		if stopped {
			return
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			yield(model.RecoveredMessage{}, ctxErr)
			return
		}
		if err != nil {
			p.logger.Error("raw scan failed", "path", p.opts.Path, "err", err)
			return
		}
		p.logger.Info("raw scan finished", "path", p.opts.Path, "messages", count)
	}
}

// Stream sends the recovered messages to out. A terminal error is sent as an
// envelope and ends the stream.
func (p *Pipeline) Stream(ctx context.Context, out chan<- model.Envelope) error {
	for msg, err := range p.Messages(ctx) {
		env := model.Envelope{Message: msg, Err: err}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- env:
		}
		if err != nil {
			return nil
		}
	}
	return nil
}

func (p *Pipeline) skip(s Skip) {
	p.logger.Warn("skipping undecodable item",
		"tier", s.Tier,
		"table", s.Table,
		"record", s.Record,
		"page", s.Page,
		"err", s.Err,
	)
	if p.opts.OnSkip != nil {
		p.opts.OnSkip(s)
	}
}

// isolate runs fn and converts a panic into an error so that one bad record or
// page never ends the run.
func isolate(fn func() (model.RecoveredMessage, bool, error)) (msg model.RecoveredMessage, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg, ok, err = model.RecoveredMessage{}, false, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
