package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pipelinekit/pipelinekit/backpressure"
	"github.com/pipelinekit/pipelinekit/errs"
	"github.com/pipelinekit/pipelinekit/pipelinectx"
)

// Error message format strings, hoisted as named constants.
const (
	errFailedToAcquireSlot = "failed to acquire execution slot: %w"
	errShutdownTimeout     = "shutdown timeout after %v"
)

// ErrPipelineShuttingDown is returned by Execute once Shutdown has been
// called.
var ErrPipelineShuttingDown = errs.New(errs.KindPipelineViolation, "pipeline is shutting down")

// Pipeline is the interface every composition strategy satisfies:
// StandardPipeline, CompositePipeline, ConditionalPipeline, and
// ErrorHandlingPipeline (composite.go).
type Pipeline interface {
	Execute(ctx *pipelinectx.Context, cmd any) (any, error)
}

// Config configures a StandardPipeline's resource limits: zero-valued
// fields are filled with defaults rather than rejected.
type Config struct {
	// BackPressure bounds concurrent executions. Zero value uses
	// backpressure.DefaultConfig().
	BackPressure backpressure.Config
	// ExecutionTimeout bounds a single Execute call. Zero disables the
	// per-execution timeout (callers still get context cancellation).
	ExecutionTimeout time.Duration
	// GracefulShutdownTimeout bounds how long Shutdown waits for
	// in-flight executions to finish.
	GracefulShutdownTimeout time.Duration
	// MaxMiddlewareDepth rejects Build() past this many middleware.
	MaxMiddlewareDepth int
}

// DefaultConfig returns a Config with sensible non-zero defaults.
func DefaultConfig() Config {
	return Config{
		BackPressure:            backpressure.DefaultConfig(),
		ExecutionTimeout:        30 * time.Second,
		GracefulShutdownTimeout: 10 * time.Second,
		MaxMiddlewareDepth:      defaultMaxMiddlewareDepth,
	}
}

func mergeDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.BackPressure.MaxConcurrency == 0 {
		cfg.BackPressure = d.BackPressure
	}
	if cfg.ExecutionTimeout == 0 {
		cfg.ExecutionTimeout = d.ExecutionTimeout
	}
	if cfg.GracefulShutdownTimeout == 0 {
		cfg.GracefulShutdownTimeout = d.GracefulShutdownTimeout
	}
	if cfg.MaxMiddlewareDepth == 0 {
		cfg.MaxMiddlewareDepth = d.MaxMiddlewareDepth
	}
	return cfg
}

// StandardPipeline is the default Pipeline implementation: a single
// terminal handler wrapped by a stable-sorted middleware chain,
// admission-controlled by a backpressure.Semaphore with graceful
// Execute/Shutdown lifecycle management.
type StandardPipeline struct {
	chain chain
	cfg   Config
	sem   *backpressure.Semaphore

	wg         sync.WaitGroup
	shutdownMu sync.RWMutex
	isShutdown bool
	shutdownCh chan struct{}
}

// NewStandardPipeline builds a StandardPipeline from a Builder and a
// terminal handler. handler must accept and return `any`; use Typed to
// bridge from a compile-time-typed Handler[C, R].
func NewStandardPipeline(b *Builder, handler func(ctx *pipelinectx.Context, cmd any) (any, error), cfg Config) (*StandardPipeline, error) {
	cfg = mergeDefaults(cfg)
	b.WithMaxMiddlewareDepth(cfg.MaxMiddlewareDepth)

	built, err := b.buildChain(handler)
	if err != nil {
		return nil, err
	}

	return &StandardPipeline{
		chain:      built,
		cfg:        cfg,
		sem:        backpressure.New(cfg.BackPressure),
		shutdownCh: make(chan struct{}),
	}, nil
}

func (p *StandardPipeline) isShuttingDown() bool {
	p.shutdownMu.RLock()
	defer p.shutdownMu.RUnlock()
	return p.isShutdown
}

// Execute validates metadata, emits command.started/completed/failed
// around the chain invocation, and enforces the configured execution
// timeout and back-pressure admission control. The handler is reached iff
// every middleware called next — guaranteed by buildChain's fold.
func (p *StandardPipeline) Execute(ctx *pipelinectx.Context, cmd any) (any, error) {
	if p.isShuttingDown() {
		return nil, ErrPipelineShuttingDown
	}

	token, err := p.sem.Acquire(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf(errFailedToAcquireSlot, err)
	}
	defer token.Release()

	p.wg.Add(1)
	defer p.wg.Done()

	execCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.ExecutionTimeout > 0 {
		var child *pipelinectx.Context
		child, cancel = ctx.WithDeadline(time.Now().Add(p.cfg.ExecutionTimeout))
		execCtx = child
		defer cancel()
	}

	commandType := fmt.Sprintf("%T", cmd)
	execCtx.Emitter().CommandStarted(commandType)
	started := time.Now()

	result, execErr := p.chain(execCtx, cmd)

	duration := time.Since(started)
	if execErr != nil {
		execCtx.Emitter().CommandFailed(commandType, errKindOf(execErr), duration)
	} else {
		execCtx.Emitter().CommandCompleted(commandType, duration)
	}

	return result, execErr
}

// Shutdown stops accepting new executions and waits for in-flight ones to
// finish, up to GracefulShutdownTimeout. Calling Shutdown more than once
// is a no-op.
func (p *StandardPipeline) Shutdown(ctx context.Context) error {
	p.shutdownMu.Lock()
	if p.isShutdown {
		p.shutdownMu.Unlock()
		return nil
	}
	p.isShutdown = true
	close(p.shutdownCh)
	p.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, p.cfg.GracefulShutdownTimeout)
	defer cancel()

	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf(errShutdownTimeout, p.cfg.GracefulShutdownTimeout)
	}
}
