package pipeline

import (
	"sync/atomic"

	"github.com/pipelinekit/pipelinekit/errs"
	"github.com/pipelinekit/pipelinekit/logger"
	"github.com/pipelinekit/pipelinekit/pipelinectx"
)

// Error message format strings, hoisted out of inline fmt.Errorf calls.
const (
	errDuplicateNextCall = "middleware called next() more than once"
	errChainNotContinued = "middleware did not call next() and did not short-circuit"
)

// guardedNext wraps a middleware's Next so that calling it more than once
// fails with a pipelineViolation error instead of silently re-entering the
// downstream chain, rather than merely logging the violation.
//
// Middleware marked Unsafe bypasses the guard entirely and is responsible
// for its own idempotence (retry/replay patterns).
type guardedNext struct {
	called atomic.Bool
	next   Next
}

func newGuardedNext(next Next) *guardedNext {
	return &guardedNext{next: next}
}

// call invokes the wrapped Next, enforcing at-most-once unless unsafe is
// true.
func (g *guardedNext) call(unsafe bool, ctx *pipelinectx.Context, cmd any) (any, error) {
	if !unsafe {
		if !g.called.CompareAndSwap(false, true) {
			return nil, errs.New(errs.KindPipelineViolation, "duplicateNextCall")
		}
	}
	select {
	case <-ctx.Done():
		return nil, errs.Wrap(errs.KindCancelled, "downstream call cancelled", ctx.Err())
	default:
	}
	return g.next(ctx, cmd)
}

// wasCalled reports whether call ever ran the downstream chain.
func (g *guardedNext) wasCalled() bool {
	return g.called.Load()
}

// warnIfDropped logs a debug-build warning when middleware never called
// next and didn't declare MayShortCircuit, mirroring executeChain's
// errMiddlewareChainBroken warning but scoped to middleware that didn't
// opt in to short-circuiting.
func warnIfDropped(mw Middleware, position int, called bool) {
	if called {
		return
	}
	if sc, ok := mw.(MayShortCircuit); ok && sc.MayShortCircuit() {
		return
	}
	logger.Debug(errChainNotContinued, "middleware", mw.Name(), "position", position)
}
