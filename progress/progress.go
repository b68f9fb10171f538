package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/edb-recover/model"
	"github.com/dhcgn/edb-recover/stats"
)

// Spinner shows a live count of recovered and exported messages. The number of
// messages in a damaged store is unknown up front, so there is no bar.
type Spinner struct {
	sp      *pterm.SpinnerPrinter
	mu      sync.Mutex
	enabled bool
	counts  stats.Collector
}

// New creates a spinner if logLevel is "info".
func New(source string, logLevel string) *Spinner {
	s := &Spinner{enabled: logLevel == "info"}
	if !s.enabled {
		return s
	}

	pterm.Info.Printf("Recovering from: %s\n", source)
	sp, err := pterm.DefaultSpinner.WithRemoveWhenDone(false).Start("Recovering messages")
	if err != nil {
		s.enabled = false
		return s
	}
	s.sp = sp
	return s
}

// Update applies evt to the counters and refreshes the spinner text.
func (s *Spinner) Update(evt stats.Event) {
	if !s.enabled || s.sp == nil {
		return
	}

	s.counts.Apply(evt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Type == stats.EventTypeError && evt.Err != nil {
		pterm.Error.Printf("Error: %v\n", evt.Err)
	}
	s.sp.UpdateText(Line(s.counts.Snapshot()))
}

// Line renders the one-line running status.
func Line(sum stats.Summary) string {
	return fmt.Sprintf("Recovered %d (structured %d, raw %d) | exported %d | skipped %d | filtered %d | duplicates %d",
		sum.Recovered, sum.ByTier[model.TierStructured], sum.ByTier[model.TierRawScan],
		sum.Exported+sum.DryRunExported, sum.Skipped, sum.Filtered, sum.Duplicates)
}

// Stop finalizes the spinner.
func (s *Spinner) Stop() {
	if !s.enabled || s.sp == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sp.Success("Recovery complete: " + Line(s.counts.Snapshot()))
	s.sp = nil
}

// Subscriber updates the spinner from a stats stream and stops it when the
// stream ends.
func (s *Spinner) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	defer s.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			s.Update(evt)
		}
	}
}

// Reporter prints a pterm summary when the run finishes.
type Reporter struct {
	spinner   *Spinner
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewReporter subscribes the spinner and a summary printer when the spinner is
// enabled.
func NewReporter(stream stats.EventStream, spinner *Spinner, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		spinner:   spinner,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if spinner != nil && spinner.enabled {
		stream.SubscribeStats("progress-spinner", spinner.Subscriber)
		stream.SubscribeStats("progress-summary", reporter.collectStats)
	}

	return reporter
}

func (r *Reporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	r.collector.Run(ctx, events)
	if ctx.Err() != nil {
		return nil
	}
	PrintSummary(r.collector.Snapshot(), time.Since(r.started))
	return nil
}

// PrintSummary writes the final statistics as a pterm section and table.
func PrintSummary(sum stats.Summary, duration time.Duration) {
	pterm.Println()
	pterm.DefaultSection.Println("Summary Statistics")
	pterm.Info.Printf("Duration: %v\n", duration.Round(time.Millisecond))

	data := pterm.TableData{
		{"Metric", "Count"},
		{"Recovered", fmt.Sprint(sum.Recovered)},
		{"  structured", fmt.Sprint(sum.ByTier[model.TierStructured])},
		{"  raw scan", fmt.Sprint(sum.ByTier[model.TierRawScan])},
		{"  high confidence", fmt.Sprint(sum.ByConfidence[model.ConfidenceHigh])},
		{"  medium confidence", fmt.Sprint(sum.ByConfidence[model.ConfidenceMedium])},
		{"  low confidence", fmt.Sprint(sum.ByConfidence[model.ConfidenceLow])},
		{"Skipped records/pages", fmt.Sprint(sum.Skipped)},
		{"Filtered", fmt.Sprint(sum.Filtered)},
		{"Duplicates (skipped)", fmt.Sprint(sum.Duplicates)},
		{"Exported", fmt.Sprint(sum.Exported)},
		{"Dry-run exported", fmt.Sprint(sum.DryRunExported)},
		{"Errors", fmt.Sprint(sum.Errors)},
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		pterm.Error.Printf("render summary: %v\n", err)
	}
	if sum.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", sum.LastError)
	}
}
