package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pipelinekit/pipelinekit/events"
)

// LoadFactor reports current system load as a value in [0, 2], where 1.0
// is nominal: below 1.0 grants extra capacity, above 1.0 shrinks it.
type LoadFactor func() float64

// Adaptive computes effective capacity = baseRate * (2 - loadFactor())
// and applies token-bucket semantics at that capacity. The per-identifier
// limiter is rebuilt whenever the computed capacity drifts from the
// limiter's current burst size.
type Adaptive struct {
	baseRate float64
	load     LoadFactor

	mu       sync.Mutex
	limiters map[string]*adaptiveLimiter
	emitter  *events.Emitter
}

type adaptiveLimiter struct {
	limiter  *rate.Limiter
	capacity int
}

// NewAdaptive creates an adaptive limiter with base rate baseRate
// (tokens/second at loadFactor()==1.0).
func NewAdaptive(baseRate float64, load LoadFactor, emitter *events.Emitter) *Adaptive {
	return &Adaptive{
		baseRate: baseRate,
		load:     load,
		limiters: make(map[string]*adaptiveLimiter),
		emitter:  emitter,
	}
}

func (a *Adaptive) effectiveCapacity() int {
	factor := a.load()
	if factor < 0 {
		factor = 0
	}
	if factor > 2 {
		factor = 2
	}
	capacity := a.baseRate * (2 - factor)
	if capacity < 1 {
		capacity = 1
	}
	return int(capacity)
}

func (a *Adaptive) limiterFor(identifier string) *rate.Limiter {
	capacity := a.effectiveCapacity()

	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.limiters[identifier]
	if !ok || entry.capacity != capacity {
		entry = &adaptiveLimiter{
			limiter:  rate.NewLimiter(rate.Limit(capacity), capacity),
			capacity: capacity,
		}
		a.limiters[identifier] = entry
	}
	return entry.limiter
}

// Allow consumes cost tokens against the current effective capacity.
func (a *Adaptive) Allow(identifier string, cost int) Decision {
	l := a.limiterFor(identifier)
	if !l.AllowN(time.Now(), cost) {
		a.emitter.RateLimitExceeded(identifier, int(l.Burst()), time.Now())
		return Decision{Allowed: false, Limit: l.Burst()}
	}
	return Decision{Allowed: true, Limit: l.Burst()}
}

// Status reports the current effective capacity and remaining tokens.
func (a *Adaptive) Status(identifier string) Decision {
	l := a.limiterFor(identifier)
	return Decision{Limit: l.Burst(), Remaining: int(l.Tokens())}
}
