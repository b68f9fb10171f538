package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dhcgn/edb-recover/model"
	"github.com/dhcgn/edb-recover/runner"
	"github.com/dhcgn/edb-recover/state"
	"github.com/dhcgn/edb-recover/stats"
)

// Stage drains the runner's export queue into every configured exporter.
type Stage struct {
	runner    *runner.Runner
	tracker   state.Tracker
	exporters []Exporter
	dryRun    bool
	logger    *slog.Logger
}

// NewStage registers the export stage on r. Exporters are closed when the
// queue is drained or the run is cancelled.
func NewStage(r *runner.Runner, exporters []Exporter, logger *slog.Logger) (*Stage, error) {
	if len(exporters) == 0 && !r.Config().DryRun {
		return nil, fmt.Errorf("no exporters configured")
	}
	tracker := r.Tracker()
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Stage{
		runner:    r,
		tracker:   tracker,
		exporters: exporters,
		dryRun:    r.Config().DryRun,
		logger:    logger,
	}
	r.AddStage("export", s.run)
	return s, nil
}

func (s *Stage) run(ctx context.Context) (err error) {
	defer func() {
		if cerr := s.close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	exports := s.runner.Exports()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-exports:
			if !ok {
				return nil
			}
			if err := s.export(ctx, msg); err != nil {
				s.runner.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
				return err
			}
		}
	}
}

func (s *Stage) export(ctx context.Context, msg model.RecoveredMessage) error {
	entry := state.Entry{Fingerprint: msg.Fingerprint(), SourceID: msg.ID}

	if s.dryRun {
		if err := s.tracker.MarkProcessed(entry); err != nil {
			return err
		}
		s.runner.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeDryRunExport, MessageID: msg.ID, Tier: msg.Tier})
		s.logger.Debug("dry-run export", "id", msg.ID, "subject", msg.Subject, "tier", msg.Tier, "confidence", msg.Confidence)
		return nil
	}

	for _, e := range s.exporters {
		if err := e.Export(ctx, msg); err != nil {
			return fmt.Errorf("%s export of %s: %w", e.Name(), msg.ID, err)
		}
		entry.Targets = append(entry.Targets, e.Name())
	}

	if err := s.tracker.MarkProcessed(entry); err != nil {
		return err
	}
	s.runner.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeExported, MessageID: msg.ID, Tier: msg.Tier, Detail: fmt.Sprint(entry.Targets)})
	s.logger.Debug("exported message", "id", msg.ID, "targets", entry.Targets)
	return nil
}

func (s *Stage) close() error {
	var errs []error
	for _, e := range s.exporters {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.Name(), err))
		}
	}
	return errors.Join(errs...)
}
