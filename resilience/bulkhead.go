package resilience

import (
	"github.com/pipelinekit/pipelinekit/backpressure"
	"github.com/pipelinekit/pipelinekit/errs"
	"github.com/pipelinekit/pipelinekit/pipeline"
	"github.com/pipelinekit/pipelinekit/pipelinectx"
)

// Bulkhead associates a named backpressure.Semaphore with a resource.
// Each call acquires a token before invoking next; the token is released
// on every exit path.
type Bulkhead struct {
	name string
	sem  *backpressure.Semaphore
}

// NewBulkhead creates a Bulkhead guarding the named resource with sem.
func NewBulkhead(name string, sem *backpressure.Semaphore) *Bulkhead {
	return &Bulkhead{name: name, sem: sem}
}

func (b *Bulkhead) Name() string               { return "bulkhead:" + b.name }
func (b *Bulkhead) Priority() pipeline.Priority { return pipeline.PriorityBulkhead }

func (b *Bulkhead) Execute(ctx *pipelinectx.Context, cmd any, next pipeline.Next) (any, error) {
	token, err := b.sem.Acquire(ctx, 0)
	if err != nil {
		return nil, errs.Wrap(errs.KindBackPressureRejected, "bulkhead."+b.name+" rejected", err)
	}
	defer token.Release()

	return next(ctx, cmd)
}
