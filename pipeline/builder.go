package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/pipelinekit/pipelinekit/errs"
	"github.com/pipelinekit/pipelinekit/pipelinectx"
)

// defaultMaxMiddlewareDepth bounds how deep a pipeline can be built;
// builds past this depth fail fast rather than producing a pipeline that
// would blow the goroutine/call stack at execution time.
const defaultMaxMiddlewareDepth = 64

// chain is the folded closure a Builder produces: runs the sorted
// middleware (if any remain) or the terminal handler.
type chain func(ctx *pipelinectx.Context, cmd any) (any, error)

// Builder collects middleware descriptors and folds them, with a terminal
// handler, into a ready-to-execute chain. The fold itself is grounded in
// executeChain's index-based recursion (pipeline/pipeline.go), reshaped
// here into an iterative closure fold at Build() time so the returned
// Pipeline has no per-call recursion bookkeeping — only the closures
// themselves nest.
type Builder struct {
	middleware         []Middleware
	maxMiddlewareDepth int
}

// NewBuilder creates an empty Builder with the default middleware-depth
// limit.
func NewBuilder() *Builder {
	return &Builder{maxMiddlewareDepth: defaultMaxMiddlewareDepth}
}

// WithMaxMiddlewareDepth overrides the default depth limit enforced at
// Build() time.
func (b *Builder) WithMaxMiddlewareDepth(n int) *Builder {
	if n > 0 {
		b.maxMiddlewareDepth = n
	}
	return b
}

// Use appends a middleware descriptor. Duplicate instances are permitted;
// the Builder compares by reference (not type) when middleware is later
// removed.
func (b *Builder) Use(mw Middleware) *Builder {
	b.middleware = append(b.middleware, mw)
	return b
}

// Remove drops the first middleware matching target by identity (pointer
// equality), not by type. It is a no-op if target was never added.
func (b *Builder) Remove(target Middleware) *Builder {
	for i, mw := range b.middleware {
		if mw == target {
			b.middleware = append(b.middleware[:i], b.middleware[i+1:]...)
			return b
		}
	}
	return b
}

// buildChain stable-sorts the collected middleware by Priority (equal
// priorities keep insertion order, via sort.SliceStable) and folds them
// with terminal into a single chain, outermost first.
func (b *Builder) buildChain(terminal chain) (chain, error) {
	if len(b.middleware) > b.maxMiddlewareDepth {
		return nil, errs.New(errs.KindMaxDepthExceeded, fmt.Sprintf(
			"%d middleware exceeds max depth %d", len(b.middleware), b.maxMiddlewareDepth))
	}

	sorted := make([]Middleware, len(b.middleware))
	copy(sorted, b.middleware)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	next := terminal
	for i := len(sorted) - 1; i >= 0; i-- {
		mw := sorted[i]
		downstream := next
		position := i
		next = func(ctx *pipelinectx.Context, cmd any) (any, error) {
			if s, ok := mw.(Scoped); ok && !HasScope(cmd, s.Scope()) {
				return downstream(ctx, cmd)
			}
			guard := newGuardedNext(downstream)
			unsafe := false
			if u, ok := mw.(Unsafe); ok {
				unsafe = u.UnsafeNext()
			}
			guardedCall := func(ctx *pipelinectx.Context, cmd any) (any, error) {
				return guard.call(unsafe, ctx, cmd)
			}

			ctx.Emitter().MiddlewareStarted(mw.Name(), position)
			started := time.Now()
			result, err := mw.Execute(ctx, cmd, guardedCall)
			if err != nil {
				ctx.Emitter().MiddlewareFailed(mw.Name(), position, errKindOf(err))
			} else {
				ctx.Emitter().MiddlewareCompleted(mw.Name(), position, time.Since(started))
			}
			if !unsafe {
				warnIfDropped(mw, position, guard.wasCalled())
			}
			return result, err
		}
	}
	return next, nil
}

// errKindOf extracts an *errs.Error's Kind for event properties, falling
// back to "unknown" for errors this core didn't construct.
func errKindOf(err error) string {
	if e, ok := err.(*errs.Error); ok {
		return string(e.Kind)
	}
	return "unknown"
}
