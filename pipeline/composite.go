package pipeline

import (
	"golang.org/x/sync/errgroup"

	"github.com/pipelinekit/pipelinekit/errs"
	"github.com/pipelinekit/pipelinekit/pipelinectx"
)

// ParallelStrategy selects how Parallel resolves its branches.
type ParallelStrategy int

const (
	// FirstCompleted returns the first branch to finish, success or
	// error, and cancels the loser.
	FirstCompleted ParallelStrategy = iota
	// AllCompleted awaits both branches; returns the last successful
	// result, propagating an error only if every branch failed.
	AllCompleted
	// Race returns the first success; if both branches fail, surfaces an
	// aggregated AllPipelinesFailed error carrying both causes.
	Race
)

// SequentialPipeline runs A, then B, with the same command and context —
// unless the command implements ChainTransformer[R], in which case B runs
// the command A's result produces via Chain. Grounded in stage/builder.go's
// Chain helper, which links two stages by running the first and feeding
// its output to the second.
type SequentialPipeline struct {
	A, B Pipeline
}

func (s *SequentialPipeline) Execute(ctx *pipelinectx.Context, cmd any) (any, error) {
	resultA, err := s.A.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}

	nextCmd := cmd
	if transformer, ok := cmd.(ChainTransformer); ok {
		transformed, terr := transformer.Chain(resultA)
		if terr != nil {
			return nil, errs.Wrap(errs.KindExecutionFailed, "chain transform failed", terr)
		}
		nextCmd = transformed
	}
	return s.B.Execute(ctx, nextCmd)
}

// branchResult carries one Parallel branch's outcome.
type branchResult struct {
	value any
	err   error
}

// ParallelPipeline runs A and B on forked contexts under one of three
// strategies. Uses golang.org/x/sync/errgroup for AllCompleted (fail-fast
// Wait is fine there since both branches' results are needed regardless);
// FirstCompleted and Race use a manual two-goroutine race with a buffered
// channel, since errgroup's Wait doesn't expose a first-to-finish signal.
type ParallelPipeline struct {
	A, B     Pipeline
	Strategy ParallelStrategy
}

func (p *ParallelPipeline) Execute(ctx *pipelinectx.Context, cmd any) (any, error) {
	switch p.Strategy {
	case AllCompleted:
		return p.executeAllCompleted(ctx, cmd)
	case Race:
		return p.executeRace(ctx, cmd)
	default:
		return p.executeFirstCompleted(ctx, cmd)
	}
}

func (p *ParallelPipeline) executeAllCompleted(ctx *pipelinectx.Context, cmd any) (any, error) {
	ctxA, cancelA := ctx.Fork()
	defer cancelA()
	ctxB, cancelB := ctx.Fork()
	defer cancelB()

	var resultA, resultB branchResult
	var g errgroup.Group
	g.Go(func() error {
		resultA.value, resultA.err = p.A.Execute(ctxA, cmd)
		return nil
	})
	g.Go(func() error {
		resultB.value, resultB.err = p.B.Execute(ctxB, cmd)
		return nil
	})
	_ = g.Wait()

	if resultB.err == nil {
		return resultB.value, nil
	}
	if resultA.err == nil {
		return resultA.value, nil
	}
	return nil, errs.Wrap(errs.KindAllPipelinesFailed, "all branches failed", resultB.err)
}

func (p *ParallelPipeline) executeFirstCompleted(ctx *pipelinectx.Context, cmd any) (any, error) {
	ctxA, cancelA := ctx.Fork()
	ctxB, cancelB := ctx.Fork()

	results := make(chan branchResult, 2)
	go func() {
		v, err := p.A.Execute(ctxA, cmd)
		results <- branchResult{v, err}
	}()
	go func() {
		v, err := p.B.Execute(ctxB, cmd)
		results <- branchResult{v, err}
	}()

	first := <-results
	cancelA()
	cancelB()
	return first.value, first.err
}

func (p *ParallelPipeline) executeRace(ctx *pipelinectx.Context, cmd any) (any, error) {
	ctxA, cancelA := ctx.Fork()
	ctxB, cancelB := ctx.Fork()
	defer cancelA()
	defer cancelB()

	results := make(chan branchResult, 2)
	go func() {
		v, err := p.A.Execute(ctxA, cmd)
		results <- branchResult{v, err}
	}()
	go func() {
		v, err := p.B.Execute(ctxB, cmd)
		results <- branchResult{v, err}
	}()

	first := <-results
	if first.err == nil {
		return first.value, nil
	}
	second := <-results
	if second.err == nil {
		return second.value, nil
	}
	return nil, errs.Wrap(errs.KindAllPipelinesFailed, "all branches failed", second.err)
}

// Predicate decides whether ConditionalPipeline delegates to Inner.
type Predicate func(ctx *pipelinectx.Context, cmd any) bool

// DefaultFactory produces a fallback result when the predicate is false
// and the command has no DefaultResultProvider capability.
type DefaultFactory func(ctx *pipelinectx.Context, cmd any) (any, error)

// ConditionalPipeline evaluates Predicate; if true it delegates to Inner,
// otherwise it produces a default result from Factory, or the command's
// DefaultResultProvider capability, or fails with conditionNotMet.
type ConditionalPipeline struct {
	Predicate Predicate
	Inner     Pipeline
	Factory   DefaultFactory
}

func (c *ConditionalPipeline) Execute(ctx *pipelinectx.Context, cmd any) (any, error) {
	if c.Predicate(ctx, cmd) {
		return c.Inner.Execute(ctx, cmd)
	}
	if c.Factory != nil {
		return c.Factory(ctx, cmd)
	}
	if provider, ok := cmd.(DefaultResultProvider); ok {
		return provider.DefaultResult(), nil
	}
	return nil, errs.New(errs.KindConditionNotMet, "predicate false and no default result available")
}

// ErrorHook observes a failure from the inner pipeline for side effects
// (logging, metrics). Returning a non-nil error replaces the original
// error that propagates to the caller; the hook may not swallow the
// failure by returning nil.
type ErrorHook func(ctx *pipelinectx.Context, cmd any, err error) error

// ErrorHandlingPipeline runs Inner; on failure it invokes Hook and
// re-raises whatever error Hook returns (or the original, if Hook returns
// nil is disallowed by contract but tolerated defensively here by falling
// back to the original error).
type ErrorHandlingPipeline struct {
	Inner Pipeline
	Hook  ErrorHook
}

func (e *ErrorHandlingPipeline) Execute(ctx *pipelinectx.Context, cmd any) (any, error) {
	result, err := e.Inner.Execute(ctx, cmd)
	if err == nil {
		return result, nil
	}
	if e.Hook == nil {
		return nil, err
	}
	hookErr := e.Hook(ctx, cmd, err)
	if hookErr == nil {
		return nil, err
	}
	return nil, hookErr
}
