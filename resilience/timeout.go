package resilience

import (
	"time"

	"github.com/pipelinekit/pipelinekit/errs"
	"github.com/pipelinekit/pipelinekit/events"
	"github.com/pipelinekit/pipelinekit/pipeline"
	"github.com/pipelinekit/pipelinekit/pipelinectx"
)

// Timeout races the inner chain against Budget, cooperatively cancelling
// on expiry. If the context already carries a tighter deadline,
// pipelinectx.Context.WithDeadline keeps the smaller of the two.
type Timeout struct {
	Budget  time.Duration
	Emitter *events.Emitter
}

// NewTimeout creates a Timeout middleware with the given budget.
func NewTimeout(budget time.Duration, emitter *events.Emitter) *Timeout {
	return &Timeout{Budget: budget, Emitter: emitter}
}

func (t *Timeout) Name() string               { return "timeout" }
func (t *Timeout) Priority() pipeline.Priority { return pipeline.PriorityTimeout }

func (t *Timeout) Execute(ctx *pipelinectx.Context, cmd any, next pipeline.Next) (any, error) {
	deadlineCtx, cancel := ctx.WithDeadline(time.Now().Add(t.Budget))
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := next(deadlineCtx, cmd)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-deadlineCtx.Done():
		t.Emitter.TimeoutExpired(t.Budget)
		return nil, errs.New(errs.KindTimeout, "budget exceeded")
	}
}
