package recovery

import (
	"context"

	"github.com/dhcgn/edb-recover/runner"
)

// Producer feeds a Pipeline into a runner as its "recovery" stage.
type Producer struct {
	pipeline *Pipeline
	runner   *runner.Runner
}

func NewProducer(p *Pipeline, r *runner.Runner) *Producer {
	producer := &Producer{pipeline: p, runner: r}
	r.AddStage("recovery", producer.run)
	return producer
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseMailbox()
	return p.pipeline.Stream(ctx, p.runner.MailboxWriter())
}
