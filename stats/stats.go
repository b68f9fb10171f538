package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dhcgn/edb-recover/model"
)

type Stage string

const (
	StageRecovery Stage = "recovery"
	StageExport   Stage = "export"
)

type EventType string

const (
	EventTypeRecovered    EventType = "recovered"
	EventTypeSkipped      EventType = "skipped"
	EventTypeFiltered     EventType = "filtered"
	EventTypeDuplicate    EventType = "duplicate"
	EventTypeEnqueued     EventType = "enqueued"
	EventTypeExported     EventType = "exported"
	EventTypeDryRunExport EventType = "dry_run_exported"
	EventTypeError        EventType = "error"
)

type Event struct {
	Stage      Stage
	Type       EventType
	MessageID  string
	Tier       model.Tier
	Confidence model.Confidence
	Err        error
	Detail     string
}

type Summary struct {
	Recovered      int
	Skipped        int
	Filtered       int
	Duplicates     int
	Enqueued       int
	Exported       int
	DryRunExported int
	Errors         int
	ByTier         map[model.Tier]int
	ByConfidence   map[model.Confidence]int
	LastError      error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"recovered", s.Recovered,
		"structured", s.ByTier[model.TierStructured],
		"rawScan", s.ByTier[model.TierRawScan],
		"lowConfidence", s.ByConfidence[model.ConfidenceLow],
		"skipped", s.Skipped,
		"filtered", s.Filtered,
		"duplicates", s.Duplicates,
		"exported", s.Exported,
		"dryRunExported", s.DryRunExported,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

// Snapshot returns a copy of the current summary.
func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	summary := c.summary
	summary.ByTier = make(map[model.Tier]int, len(c.summary.ByTier))
	for k, v := range c.summary.ByTier {
		summary.ByTier[k] = v
	}
	summary.ByConfidence = make(map[model.Confidence]int, len(c.summary.ByConfidence))
	for k, v := range c.summary.ByConfidence {
		summary.ByConfidence[k] = v
	}
	return summary
}

func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeRecovered:
		c.summary.Recovered++
		if c.summary.ByTier == nil {
			c.summary.ByTier = make(map[model.Tier]int)
			c.summary.ByConfidence = make(map[model.Confidence]int)
		}
		if evt.Tier != "" {
			c.summary.ByTier[evt.Tier]++
		}
		if evt.Confidence != "" {
			c.summary.ByConfidence[evt.Confidence]++
		}
	case EventTypeSkipped:
		c.summary.Skipped++
	case EventTypeFiltered:
		c.summary.Filtered++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeEnqueued:
		c.summary.Enqueued++
	case EventTypeExported:
		c.summary.Exported++
	case EventTypeDryRunExport:
		c.summary.DryRunExported++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// Pair is a counted value.
type Pair struct {
	Key   string
	Value int
}

// Top returns the entries of m sorted by count, highest first, ties by key.
func Top(m map[string]int, limit int) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})
	if limit >= 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(m map[string]int, limit int) {
	for i, p := range Top(m, limit) {
		fmt.Printf("%d. %s (%d)\n", i+1, p.Key, p.Value)
	}
}
