// Package ratelimit implements identifier-keyed admission control: token
// bucket, sliding window, and adaptive strategies.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pipelinekit/pipelinekit/events"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// TokenBucket is a per-identifier token-bucket limiter built on
// golang.org/x/time/rate.Limiter.
type TokenBucket struct {
	capacity   int
	refillRate float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	emitter  *events.Emitter
}

// NewTokenBucket creates a token-bucket limiter: capacity tokens,
// refilling at refillRate tokens/second.
func NewTokenBucket(capacity int, refillRate float64, emitter *events.Emitter) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		limiters:   make(map[string]*rate.Limiter),
		emitter:    emitter,
	}
}

func (t *TokenBucket) limiterFor(identifier string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[identifier]
	if !ok {
		l = rate.NewLimiter(rate.Limit(t.refillRate), t.capacity)
		t.limiters[identifier] = l
	}
	return l
}

// Allow consumes cost tokens for identifier if available.
func (t *TokenBucket) Allow(identifier string, cost int) Decision {
	l := t.limiterFor(identifier)
	reservation := l.ReserveN(time.Now(), cost)
	if !reservation.OK() {
		t.emitter.RateLimitExceeded(identifier, t.capacity, time.Now())
		return Decision{Allowed: false, Limit: t.capacity}
	}
	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		t.emitter.RateLimitExceeded(identifier, t.capacity, time.Now().Add(delay))
		return Decision{Allowed: false, Limit: t.capacity, RetryAfter: delay, ResetAt: time.Now().Add(delay)}
	}
	return Decision{Allowed: true, Limit: t.capacity}
}

// Status reports the current burst capacity without consuming tokens.
// ResetAt is when the next token becomes available: now, if one is
// already available, computed the same way Allow computes a caller's
// wait — reserve one token and read its Delay — then immediately
// cancelling the reservation so Status never consumes capacity.
func (t *TokenBucket) Status(identifier string) Decision {
	l := t.limiterFor(identifier)
	now := time.Now()
	r := l.ReserveN(now, 1)
	delay := r.Delay()
	r.Cancel()
	return Decision{
		Limit:     t.capacity,
		Remaining: int(l.Tokens()),
		ResetAt:   now.Add(delay),
	}
}

// Prune removes limiters for identifiers that currently sit at full
// capacity (a reasonable proxy for "inactive" since an idle limiter
// refills to capacity). Intended to be called on a cleanup interval.
func (t *TokenBucket) Prune() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, l := range t.limiters {
		if int(l.Tokens()) >= t.capacity {
			delete(t.limiters, id)
		}
	}
}
