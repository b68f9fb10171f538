package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/edb-recover/config"
	"github.com/dhcgn/edb-recover/filter"
	"github.com/dhcgn/edb-recover/model"
	"github.com/dhcgn/edb-recover/state"
	"github.com/dhcgn/edb-recover/stats"
)

type StageFunc func(context.Context) error

type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	messages chan model.Envelope
	exports  chan model.RecoveredMessage

	subsMu     sync.RWMutex
	subs       []chan stats.Event
	subsClosed bool

	tracker state.Tracker
	filter  *filter.Filter

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeMailboxOnce sync.Once
	closeExportsOnce sync.Once
	since            time.Time
}

func New(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	f, err := filter.New(cfg.FilterOptions())
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	tracker, err := state.NewFileTracker(cfg.StateDir, !cfg.DryRun)
	if err != nil {
		return nil, fmt.Errorf("state tracker: %w", err)
	}

	return newRunner(cfg, logger, tracker, f), nil
}

// NewWithTracker builds a Runner around an existing tracker.
func NewWithTracker(cfg config.Config, logger *slog.Logger, tracker state.Tracker) (*Runner, error) {
	f, err := filter.New(cfg.FilterOptions())
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return newRunner(cfg, logger, tracker, f), nil
}

func newRunner(cfg config.Config, logger *slog.Logger, tracker state.Tracker, f *filter.Filter) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		messages: make(chan model.Envelope, 32),
		exports:  make(chan model.RecoveredMessage, 32),
		tracker:  tracker,
		filter:   f,
	}

	r.AddStage("bridge", r.bridge)
	return r
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) Tracker() state.Tracker {
	return r.tracker
}

func (r *Runner) Filter() *filter.Filter {
	return r.filter
}

func (r *Runner) MailboxWriter() chan<- model.Envelope {
	return r.messages
}

func (r *Runner) CloseMailbox() {
	r.closeMailboxOnce.Do(func() {
		close(r.messages)
	})
}

func (r *Runner) Exports() <-chan model.RecoveredMessage {
	return r.exports
}

// EmitEvent delivers evt to every stats subscriber.
func (r *Runner) EmitEvent(evt stats.Event) {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	if r.subsClosed {
		return
	}
	for _, ch := range r.subs {
		select {
		case <-r.ctx.Done():
			return
		case ch <- evt:
		}
	}
}

// SubscribeStats runs fn on its own copy of the event stream. Subscribe before
// adding the stages whose events fn must see.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	ch := make(chan stats.Event, 128)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()

	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

func (r *Runner) Start() error {
	r.since = time.Now()

	r.workWG.Wait()
	if err := r.tracker.Close(); err != nil {
		r.fail(fmt.Errorf("close state tracker: %w", err))
	}
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	err := r.err
	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

// Abort stops a runner whose stages could not all be set up. It cancels the
// stages already added, waits for them and returns err.
func (r *Runner) Abort(err error) error {
	if err == nil {
		err = errors.New("runner aborted")
	}
	r.fail(err)
	return r.Start()
}

func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeExports()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope, ok := <-r.messages:
			if !ok {
				return nil
			}

			if envelope.Err != nil {
				r.EmitEvent(stats.Event{Stage: stats.StageRecovery, Type: stats.EventTypeError, Err: envelope.Err})
				r.fail(fmt.Errorf("recovery envelope: %w", envelope.Err))
				continue
			}

			msg := envelope.Message
			r.EmitEvent(stats.Event{
				Stage:      stats.StageRecovery,
				Type:       stats.EventTypeRecovered,
				MessageID:  msg.ID,
				Tier:       msg.Tier,
				Confidence: msg.Confidence,
			})

			if !r.filter.Allows(msg) {
				r.EmitEvent(stats.Event{Stage: stats.StageRecovery, Type: stats.EventTypeFiltered, MessageID: msg.ID})
				continue
			}

			if r.tracker.AlreadyProcessed(msg.Fingerprint()) {
				r.EmitEvent(stats.Event{Stage: stats.StageRecovery, Type: stats.EventTypeDuplicate, MessageID: msg.ID})
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.exports <- msg:
				r.EmitEvent(stats.Event{Stage: stats.StageRecovery, Type: stats.EventTypeEnqueued, MessageID: msg.ID})
			}
		}
	}
}

func (r *Runner) closeExports() {
	r.closeExportsOnce.Do(func() {
		close(r.exports)
	})
}

func (r *Runner) closeEvents() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	if r.subsClosed {
		return
	}
	r.subsClosed = true
	for _, ch := range r.subs {
		close(ch)
	}
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
