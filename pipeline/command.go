// Package pipeline implements the command execution core: typed commands
// dispatched through a stable-sorted middleware chain to a terminal
// handler, with first-class composition operators.
//
// The generic Command[R]/Result[R] shape is grounded in the Chainable[T]
// pattern from the pipz reference library (other_examples/): a generic
// interface whose method signature mentions the type parameter, so the
// compiler ties a command to its result type even though the middleware
// chain itself operates on type-erased values (see Middleware in
// middleware.go and the "type-erased existentials" note it's grounded on).
package pipeline

import "github.com/pipelinekit/pipelinekit/pipelinectx"

// Command is a typed value carrying a statically-known Result type R.
// pipelineResult is unexported so only types embedding Result[R] (or
// implementing it deliberately) satisfy the interface — it exists purely
// to carry R at the type level; it is never called.
type Command[R any] interface {
	pipelineResult() R
}

// Result embeds into a concrete command struct to satisfy Command[R]
// without boilerplate:
//
//	type CreateOrder struct {
//		pipeline.Result[OrderConfirmation]
//		CustomerID string
//	}
type Result[R any] struct{}

func (Result[R]) pipelineResult() R {
	var zero R
	return zero
}

// Handler is the terminal step of a pipeline: polymorphic over its
// accepted command type, producing the command's declared Result.
type Handler[C Command[R], R any] func(ctx *pipelinectx.Context, cmd C) (R, error)

// Validator is a command capability: commands that need pre-dispatch
// validation implement it. Validate returns a non-nil error (conventionally
// an *errs.Error with Kind errs.KindValidation) to reject the command
// before any middleware runs.
type Validator interface {
	Validate() error
}

// Sanitizer is a command capability for stripping or normalizing fields
// before the command enters the chain (e.g. trimming whitespace, lower-
// casing an identifier).
type Sanitizer interface {
	Sanitize()
}

// SensitiveFieldAccessor lets a command declare which of its fields must
// never reach a log line or event payload verbatim.
type SensitiveFieldAccessor interface {
	SensitiveFields() []string
}

// ChainTransformer is the capability Sequential composition (§4.6) looks
// for: given the upstream pipeline's result, produce the command to run
// next. Since SequentialPipeline itself is dyn-safe (it composes type-
// erased Pipeline values, not Pipeline[R]), this capability is expressed
// over `any` rather than a generic R; callers that want the compile-time-
// typed version should check the result's dynamic type inside Chain. A
// generic wrapper (WithChainTransform[R]) can narrow this for a specific
// Command[R] at the call site if desired.
type ChainTransformer interface {
	Chain(previous any) (any, error)
}

// DefaultResultProvider is the capability Conditional composition (§4.6)
// consults when its predicate is false and no explicit default factory was
// supplied.
type DefaultResultProvider interface {
	DefaultResult() any
}

// ScopeMarker lets a command declare capability tags (e.g. "requires
// encryption") that scoped middleware checks before running Execute.
type ScopeMarker interface {
	Scopes() []string
}

// HasScope reports whether cmd declares scope among its ScopeMarker tags.
// Commands that don't implement ScopeMarker are treated as having no
// scopes, so scoped middleware is a no-op for them.
func HasScope(cmd any, scope string) bool {
	sm, ok := cmd.(ScopeMarker)
	if !ok {
		return false
	}
	for _, s := range sm.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}
