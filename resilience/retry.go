package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pipelinekit/pipelinekit/errs"
	"github.com/pipelinekit/pipelinekit/events"
	"github.com/pipelinekit/pipelinekit/pipeline"
	"github.com/pipelinekit/pipelinekit/pipelinectx"
)

// BackoffKind selects the backoff policy shape.
type BackoffKind int

const (
	BackoffFixed BackoffKind = iota
	BackoffLinear
	BackoffExponential
)

// RetryConfig configures a Retry middleware.
type RetryConfig struct {
	MaxAttempts int
	Kind        BackoffKind
	Base        time.Duration
	Max         time.Duration
	// Jitter adds randomized +/-jitter fraction to each delay (0..1).
	Jitter float64
	// Retryable classifies whether err should trigger another attempt.
	// A nil Retryable retries every error.
	Retryable func(err error) bool
	Emitter   *events.Emitter
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Base <= 0 {
		c.Base = 100 * time.Millisecond
	}
	if c.Max <= 0 {
		c.Max = 10 * time.Second
	}
	return c
}

func (c RetryConfig) newBackOff() backoff.BackOff {
	switch c.Kind {
	case BackoffFixed:
		return backoff.NewConstantBackOff(c.Base)
	case BackoffLinear:
		return &linearBackOff{base: c.Base, max: c.Max}
	default:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = c.Base
		eb.MaxInterval = c.Max
		eb.RandomizationFactor = c.Jitter
		return eb
	}
}

// linearBackOff grows by a fixed increment per attempt, capped at max.
// backoff/v5 ships constant and exponential policies but not linear, so
// this satisfies backoff.BackOff directly.
type linearBackOff struct {
	base    time.Duration
	max     time.Duration
	attempt int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	d := l.base * time.Duration(l.attempt)
	if d > l.max {
		d = l.max
	}
	return d
}

// Retry retries the downstream chain up to MaxAttempts times with the
// configured backoff policy, consulting Retryable after each failure.
// It opts out of the pipeline's next-guard (UnsafeNext) because it
// legitimately calls next more than once; callers must only wrap
// idempotent handlers with Retry.
type Retry struct {
	cfg RetryConfig
}

// NewRetry creates a Retry middleware.
func NewRetry(cfg RetryConfig) *Retry {
	return &Retry{cfg: cfg.withDefaults()}
}

func (r *Retry) Name() string               { return "retry" }
func (r *Retry) Priority() pipeline.Priority { return pipeline.PriorityRetry }
func (r *Retry) UnsafeNext() bool            { return true }

func (r *Retry) Execute(ctx *pipelinectx.Context, cmd any, next pipeline.Next) (any, error) {
	bo := r.cfg.newBackOff()

	operation := func() (any, error) {
		result, err := next(ctx, cmd)
		if err == nil {
			return result, nil
		}
		if r.cfg.Retryable != nil && !r.cfg.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	attempt := 0
	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, d time.Duration) {
			attempt++
			r.cfg.Emitter.RetryAttempt(attempt, err)
		}),
	)
	if err != nil {
		if ctx.Err() == context.Canceled || ctx.Err() == context.DeadlineExceeded {
			return nil, errs.Wrap(errs.KindCancelled, "retry aborted by cancellation", ctx.Err())
		}
		r.cfg.Emitter.RetryExhausted(attempt+1, err)
		return nil, errs.Wrap(errs.KindRetryExhausted, "all retry attempts failed", err)
	}
	return result, nil
}
