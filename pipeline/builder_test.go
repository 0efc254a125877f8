package pipeline

import (
	"errors"
	"testing"

	"github.com/pipelinekit/pipelinekit/errs"
	"github.com/pipelinekit/pipelinekit/events"
	"github.com/pipelinekit/pipelinekit/pipelinectx"
)

func newTestContext() *pipelinectx.Context {
	bus := events.NewEventBus()
	emitter := events.NewEmitter(bus, "test-correlation")
	return pipelinectx.New(nil, pipelinectx.NewMetadata("", "test-correlation", "test"), emitter)
}

// orderingMiddleware appends its name to a shared trace slice, then calls
// next. Used to verify that three middlewares with priorities 200/100/500
// execute in priority order "b","a","c".
func orderingMiddleware(name string, priority Priority, trace *[]string) Middleware {
	return NewFunc(name, priority, func(ctx *pipelinectx.Context, cmd any, next Next) (any, error) {
		*trace = append(*trace, name)
		return next(ctx, cmd)
	})
}

func TestBuilderStableSortsByPriority(t *testing.T) {
	var trace []string
	b := NewBuilder()
	b.Use(orderingMiddleware("a", 200, &trace))
	b.Use(orderingMiddleware("b", 100, &trace))
	b.Use(orderingMiddleware("c", 500, &trace))

	terminal := func(ctx *pipelinectx.Context, cmd any) (any, error) {
		return "handled", nil
	}
	chain, err := b.buildChain(terminal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := newTestContext()
	result, err := chain(ctx, "cmd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "handled" {
		t.Fatalf("expected handled, got %v", result)
	}

	want := []string{"b", "a", "c"}
	if len(trace) != len(want) {
		t.Fatalf("expected trace %v, got %v", want, trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("expected trace %v, got %v", want, trace)
		}
	}
}

func TestBuilderEqualPrioritiesKeepInsertionOrder(t *testing.T) {
	var trace []string
	b := NewBuilder()
	b.Use(orderingMiddleware("first", 100, &trace))
	b.Use(orderingMiddleware("second", 100, &trace))

	terminal := func(ctx *pipelinectx.Context, cmd any) (any, error) { return nil, nil }
	chain, _ := b.buildChain(terminal)
	chain(newTestContext(), "cmd")

	if trace[0] != "first" || trace[1] != "second" {
		t.Fatalf("expected insertion order preserved for equal priorities, got %v", trace)
	}
}

func TestBuilderEmptyMiddlewareCallsHandlerDirectly(t *testing.T) {
	b := NewBuilder()
	called := false
	terminal := func(ctx *pipelinectx.Context, cmd any) (any, error) {
		called = true
		return "ok", nil
	}
	chain, err := b.buildChain(terminal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := chain(newTestContext(), "cmd")
	if err != nil || result != "ok" || !called {
		t.Fatalf("expected handler invoked directly, got result=%v err=%v called=%v", result, err, called)
	}
}

func TestBuilderRejectsPastMaxMiddlewareDepth(t *testing.T) {
	b := NewBuilder().WithMaxMiddlewareDepth(1)
	var trace []string
	b.Use(orderingMiddleware("a", 100, &trace))
	b.Use(orderingMiddleware("b", 200, &trace))

	_, err := b.buildChain(func(ctx *pipelinectx.Context, cmd any) (any, error) { return nil, nil })
	if err == nil {
		t.Fatal("expected maxDepthExceeded error")
	}
	if !errors.Is(err, errs.New(errs.KindMaxDepthExceeded, "")) {
		t.Fatalf("expected KindMaxDepthExceeded, got %v", err)
	}
}

func TestBuilderShortCircuitSkipsDownstream(t *testing.T) {
	var trace []string
	b := NewBuilder()
	b.Use(NewFunc("gate", 100, func(ctx *pipelinectx.Context, cmd any, next Next) (any, error) {
		trace = append(trace, "gate")
		return "short-circuited", nil
	}))
	b.Use(orderingMiddleware("unreachable", 200, &trace))

	chain, _ := b.buildChain(func(ctx *pipelinectx.Context, cmd any) (any, error) {
		trace = append(trace, "handler")
		return "handled", nil
	})
	result, err := chain(newTestContext(), "cmd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "short-circuited" {
		t.Fatalf("expected short-circuited result, got %v", result)
	}
	if len(trace) != 1 || trace[0] != "gate" {
		t.Fatalf("expected only gate to run, got %v", trace)
	}
}

func TestBuilderDuplicateNextCallFails(t *testing.T) {
	b := NewBuilder()
	b.Use(NewFunc("double-call", 100, func(ctx *pipelinectx.Context, cmd any, next Next) (any, error) {
		if _, err := next(ctx, cmd); err != nil {
			return nil, err
		}
		return next(ctx, cmd)
	}))

	chain, _ := b.buildChain(func(ctx *pipelinectx.Context, cmd any) (any, error) { return "ok", nil })
	_, err := chain(newTestContext(), "cmd")
	if err == nil {
		t.Fatal("expected duplicate next() call to fail")
	}
	if !errors.Is(err, errs.New(errs.KindPipelineViolation, "")) {
		t.Fatalf("expected KindPipelineViolation, got %v", err)
	}
}

func TestBuilderUnsafeMiddlewareMayCallNextRepeatedly(t *testing.T) {
	attempts := 0
	b := NewBuilder()
	retry := &unsafeRetryMiddleware{maxAttempts: 3}
	b.Use(retry)

	chain, _ := b.buildChain(func(ctx *pipelinectx.Context, cmd any) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})
	result, err := chain(newTestContext(), "cmd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || attempts != 3 {
		t.Fatalf("expected retry to succeed on third attempt, got result=%v attempts=%d", result, attempts)
	}
}

// unsafeRetryMiddleware is a minimal Unsafe middleware used only to prove
// the next-guard's opt-out path.
type unsafeRetryMiddleware struct {
	maxAttempts int
}

func (u *unsafeRetryMiddleware) Name() string       { return "unsafe-retry" }
func (u *unsafeRetryMiddleware) Priority() Priority { return PriorityRetry }
func (u *unsafeRetryMiddleware) UnsafeNext() bool   { return true }
func (u *unsafeRetryMiddleware) Execute(ctx *pipelinectx.Context, cmd any, next Next) (any, error) {
	var lastErr error
	for i := 0; i < u.maxAttempts; i++ {
		result, err := next(ctx, cmd)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
