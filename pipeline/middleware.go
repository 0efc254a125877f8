package pipeline

import "github.com/pipelinekit/pipelinekit/pipelinectx"

// Priority orders middleware in a pipeline, ascending: lower values run
// closer to the caller, higher values run closer to the handler. Values
// are deliberately spaced (not 0,1,2,...) so new priorities can be
// inserted between existing ones without renumbering, mirroring the
// teacher's convention of leaving headroom in enumerated constants.
type Priority int

const (
	PriorityAuthentication Priority = 100
	PriorityValidation     Priority = 200
	PriorityRateLimit      Priority = 300
	PriorityCache          Priority = 400
	PriorityCircuitBreaker Priority = 500
	PriorityRetry          Priority = 600
	PriorityBulkhead       Priority = 700
	PriorityTimeout        Priority = 800
	PriorityLogging        Priority = 900
)

// Next is the continuation a middleware calls to run the remainder of the
// chain. It accepts the (possibly transformed) command and context and
// returns the handler's eventual result.
type Next func(ctx *pipelinectx.Context, cmd any) (any, error)

// Middleware is the dyn-safe (type-erased) contract every pipeline stage
// implements. Operating on `any` rather than a generic type parameter lets
// a Builder hold a single []Middleware slice regardless of how many
// distinct Command[R] types flow through it — the same reasoning behind
// pipz's decision to keep Chainable generic per-pipeline rather than
// per-middleware, adapted here because this core's pipelines are built
// once and reused across many command types.
type Middleware interface {
	// Name identifies the middleware for logging, events, and debugging.
	Name() string
	// Priority determines this middleware's position in the sorted chain.
	Priority() Priority
	// Execute runs this middleware's logic. It must call next at most
	// once under normal semantics (see nextguard.go), unless it also
	// implements Unsafe.
	Execute(ctx *pipelinectx.Context, cmd any, next Next) (any, error)
}

// Scoped is an optional capability: middleware that should only run when
// the command declares a matching ScopeMarker tag. The Builder's standard
// chain checks Scope() before invoking Execute; unscoped middleware always
// runs.
type Scoped interface {
	Scope() string
}

// MayShortCircuit marks middleware whose deliberate choice not to call
// next is expected behavior, suppressing the next-guard's debug-build
// warning for dropped continuations.
type MayShortCircuit interface {
	MayShortCircuit() bool
}

// Unsafe marks middleware that legitimately calls next more than once
// (retry/replay patterns). Such middleware opts out of the next-guard's
// duplicate-call error and takes on responsibility for its own
// idempotence.
type Unsafe interface {
	UnsafeNext() bool
}

// Func adapts a plain function to the Middleware interface for cases that
// don't need Scoped/MayShortCircuit/Unsafe.
type Func struct {
	name     string
	priority Priority
	exec     func(ctx *pipelinectx.Context, cmd any, next Next) (any, error)
}

// NewFunc builds a Middleware from a name, priority, and execute function.
func NewFunc(name string, priority Priority, exec func(ctx *pipelinectx.Context, cmd any, next Next) (any, error)) *Func {
	return &Func{name: name, priority: priority, exec: exec}
}

func (f *Func) Name() string     { return f.name }
func (f *Func) Priority() Priority { return f.priority }
func (f *Func) Execute(ctx *pipelinectx.Context, cmd any, next Next) (any, error) {
	return f.exec(ctx, cmd, next)
}

// Typed adapts a compile-time-typed middleware function to the dyn-safe
// Middleware interface, so callers who know their command/result types
// statically don't have to write `any` type assertions by hand. Invoking
// it with a command of the wrong dynamic type is a programming error — a
// Builder only ever receives one typed middleware per handler's command
// type — and Execute degrades rather than panics: the mismatched command
// (or the next handler's mismatched result) is silently replaced with its
// zero value instead of propagating into t.exec.
type Typed[C Command[R], R any] struct {
	name     string
	priority Priority
	exec     func(ctx *pipelinectx.Context, cmd C, next func(*pipelinectx.Context, C) (R, error)) (R, error)
}

// NewTyped builds a type-checked Middleware wrapper.
func NewTyped[C Command[R], R any](name string, priority Priority, exec func(ctx *pipelinectx.Context, cmd C, next func(*pipelinectx.Context, C) (R, error)) (R, error)) *Typed[C, R] {
	return &Typed[C, R]{name: name, priority: priority, exec: exec}
}

func (t *Typed[C, R]) Name() string     { return t.name }
func (t *Typed[C, R]) Priority() Priority { return t.priority }

func (t *Typed[C, R]) Execute(ctx *pipelinectx.Context, cmd any, next Next) (any, error) {
	typedCmd, ok := cmd.(C)
	if !ok {
		var zero C
		typedCmd = zero
	}
	typedNext := func(ctx *pipelinectx.Context, cmd C) (R, error) {
		result, err := next(ctx, cmd)
		if err != nil {
			var zero R
			return zero, err
		}
		typed, ok := result.(R)
		if !ok {
			var zero R
			return zero, nil
		}
		return typed, nil
	}
	return t.exec(ctx, typedCmd, typedNext)
}
