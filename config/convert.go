package config

import (
	"time"

	"github.com/pipelinekit/pipelinekit/backpressure"
	"github.com/pipelinekit/pipelinekit/errs"
	"github.com/pipelinekit/pipelinekit/events"
	"github.com/pipelinekit/pipelinekit/pipeline"
	"github.com/pipelinekit/pipelinekit/resilience"
)

// ToBackPressureConfig converts the document's back-pressure fields into a
// backpressure.Config. Zero fields are left zero; backpressure.New fills
// them with its own defaults.
func (s Spec) ToBackPressureConfig() (backpressure.Config, error) {
	strategy, err := parseStrategy(s.BackPressureStrategy)
	if err != nil {
		return backpressure.Config{}, err
	}
	return backpressure.Config{
		MaxConcurrency: s.MaxConcurrency,
		MaxOutstanding: s.MaxOutstanding,
		MaxQueueMemory: s.MaxQueueMemory,
		Strategy:       strategy,
	}, nil
}

// ToPipelineConfig converts the document into a pipeline.Config, parsing
// its duration strings and nested back-pressure strategy.
func (s Spec) ToPipelineConfig() (pipeline.Config, error) {
	bp, err := s.ToBackPressureConfig()
	if err != nil {
		return pipeline.Config{}, err
	}

	execTimeout, err := parseDuration(s.ExecutionTimeout)
	if err != nil {
		return pipeline.Config{}, errs.Wrap(errs.KindConfig, "invalid executionTimeout", err)
	}
	shutdownTimeout, err := parseDuration(s.GracefulShutdownTimeout)
	if err != nil {
		return pipeline.Config{}, errs.Wrap(errs.KindConfig, "invalid gracefulShutdownTimeout", err)
	}

	return pipeline.Config{
		BackPressure:            bp,
		ExecutionTimeout:        execTimeout,
		GracefulShutdownTimeout: shutdownTimeout,
		MaxMiddlewareDepth:      s.MaxMiddlewareDepth,
	}, nil
}

// ToRetryConfig converts the document's retry section into a
// resilience.RetryConfig. Returns the zero config if Retry is unset.
func (s Spec) ToRetryConfig(emitter *events.Emitter) (resilience.RetryConfig, error) {
	if s.Retry == nil {
		return resilience.RetryConfig{Emitter: emitter}, nil
	}
	kind, err := parseBackoffKind(s.Retry.Backoff)
	if err != nil {
		return resilience.RetryConfig{}, err
	}
	base, err := parseDuration(s.Retry.Base)
	if err != nil {
		return resilience.RetryConfig{}, errs.Wrap(errs.KindConfig, "invalid retry.base", err)
	}
	maxDelay, err := parseDuration(s.Retry.Max)
	if err != nil {
		return resilience.RetryConfig{}, errs.Wrap(errs.KindConfig, "invalid retry.max", err)
	}
	return resilience.RetryConfig{
		MaxAttempts: s.Retry.MaxAttempts,
		Kind:        kind,
		Base:        base,
		Max:         maxDelay,
		Jitter:      s.Retry.Jitter,
		Emitter:     emitter,
	}, nil
}

// ToCircuitBreakerConfig converts the document's circuitBreaker section into a
// resilience.CircuitBreakerConfig. Returns the zero config if
// CircuitBreaker is unset.
func (s Spec) ToCircuitBreakerConfig(emitter *events.Emitter) (resilience.CircuitBreakerConfig, error) {
	if s.CircuitBreaker == nil {
		return resilience.CircuitBreakerConfig{Emitter: emitter}, nil
	}
	window, err := parseDuration(s.CircuitBreaker.Window)
	if err != nil {
		return resilience.CircuitBreakerConfig{}, errs.Wrap(errs.KindConfig, "invalid circuitBreaker.window", err)
	}
	cooldown, err := parseDuration(s.CircuitBreaker.Cooldown)
	if err != nil {
		return resilience.CircuitBreakerConfig{}, errs.Wrap(errs.KindConfig, "invalid circuitBreaker.cooldown", err)
	}
	return resilience.CircuitBreakerConfig{
		Name:              s.CircuitBreaker.Name,
		FailureThreshold:  s.CircuitBreaker.FailureThreshold,
		Window:            window,
		Cooldown:          cooldown,
		HalfOpenMaxProbes: s.CircuitBreaker.HalfOpenMaxProbes,
		Emitter:           emitter,
	}, nil
}

// parseDuration parses s with time.ParseDuration, treating an empty
// string as "no value" (zero duration) rather than an error, so optional
// duration fields can be omitted from a document.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func parseStrategy(s string) (backpressure.Strategy, error) {
	switch s {
	case "", "suspend":
		return backpressure.Suspend, nil
	case "dropNewest":
		return backpressure.DropNewest, nil
	case "dropOldest":
		return backpressure.DropOldest, nil
	case "fail":
		return backpressure.Fail, nil
	default:
		return 0, errs.New(errs.KindConfig, "unknown backPressureStrategy "+s)
	}
}

func parseBackoffKind(s string) (resilience.BackoffKind, error) {
	switch s {
	case "", "exponential":
		return resilience.BackoffExponential, nil
	case "fixed":
		return resilience.BackoffFixed, nil
	case "linear":
		return resilience.BackoffLinear, nil
	default:
		return 0, errs.New(errs.KindConfig, "unknown retry.backoff "+s)
	}
}
