// Package resilience implements the core's fault-tolerance middleware:
// circuit breaker, retry, timeout, and bulkhead, each a
// pipeline.Middleware that wraps the downstream chain.
package resilience

import (
	"sync"
	"time"

	"github.com/pipelinekit/pipelinekit/errs"
	"github.com/pipelinekit/pipelinekit/events"
	"github.com/pipelinekit/pipelinekit/pipeline"
	"github.com/pipelinekit/pipelinekit/pipelinectx"
)

// circuitState is one of the three circuit-breaker states.
type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreakerConfig configures a CircuitBreaker instance.
type CircuitBreakerConfig struct {
	// Name identifies this breaker in emitted events.
	Name string
	// FailureThreshold is how many failures within Window open the
	// circuit.
	FailureThreshold int
	// Window bounds how far back failures are counted.
	Window time.Duration
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// HalfOpenMaxProbes caps concurrent admissions while half-open.
	HalfOpenMaxProbes int
	// Emitter receives circuit.opened/halfOpen/closed events. May be nil.
	Emitter *events.Emitter
}

// CircuitBreaker is a pipeline.Middleware implementing a circuit-breaker
// state machine: closed -> (failures >= threshold within window) -> open
// -> (after cooldown) -> half-open -> (probe success) -> closed, or
// (probe failure) -> open.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu            sync.Mutex
	state         circuitState
	failures      []time.Time
	openedAt      time.Time
	halfOpenInUse int
}

// NewCircuitBreaker creates a CircuitBreaker starting in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = 1
	}
	return &CircuitBreaker{cfg: cfg}
}

func (c *CircuitBreaker) Name() string              { return "circuitBreaker:" + c.cfg.Name }
func (c *CircuitBreaker) Priority() pipeline.Priority { return pipeline.PriorityCircuitBreaker }

// admit decides whether this call may proceed, transitioning open ->
// half-open after cooldown elapses.
func (c *CircuitBreaker) admit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(c.openedAt) >= c.cfg.Cooldown {
			c.state = stateHalfOpen
			c.halfOpenInUse = 0
			c.cfg.Emitter.CircuitHalfOpen(c.cfg.Name)
		} else {
			return false
		}
		fallthrough
	case stateHalfOpen:
		if c.halfOpenInUse >= c.cfg.HalfOpenMaxProbes {
			return false
		}
		c.halfOpenInUse++
		return true
	}
	return false
}

func (c *CircuitBreaker) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateHalfOpen {
		c.state = stateClosed
		c.failures = nil
		c.cfg.Emitter.CircuitClosed(c.cfg.Name)
	}
}

func (c *CircuitBreaker) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateHalfOpen {
		c.state = stateOpen
		c.openedAt = time.Now()
		c.cfg.Emitter.CircuitOpened(c.cfg.Name, len(c.failures))
		return
	}

	now := time.Now()
	c.failures = append(c.failures, now)
	cutoff := now.Add(-c.cfg.Window)
	pruned := c.failures[:0]
	for _, f := range c.failures {
		if f.After(cutoff) {
			pruned = append(pruned, f)
		}
	}
	c.failures = pruned

	if c.state == stateClosed && len(c.failures) >= c.cfg.FailureThreshold {
		c.state = stateOpen
		c.openedAt = now
		c.cfg.Emitter.CircuitOpened(c.cfg.Name, len(c.failures))
	}
}

func (c *CircuitBreaker) Execute(ctx *pipelinectx.Context, cmd any, next pipeline.Next) (any, error) {
	if !c.admit() {
		return nil, errs.New(errs.KindCircuitBreakerOpen, "circuit "+c.cfg.Name+" is open")
	}

	result, err := next(ctx, cmd)
	if err != nil {
		c.recordFailure()
		return nil, err
	}
	c.recordSuccess()
	return result, nil
}
