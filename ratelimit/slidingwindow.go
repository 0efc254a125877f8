package ratelimit

import (
	"sync"
	"time"

	"github.com/pipelinekit/pipelinekit/events"
)

// SlidingWindow records request timestamps per identifier and admits
// while the count within [now-windowSize, now] stays at or under
// maxRequests, pruning older entries lazily (append, then filter-in-place
// against a cutoff) rather than running a ticking goroutine.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int

	mu         sync.Mutex
	timestamps map[string][]time.Time
	emitter    *events.Emitter
}

// NewSlidingWindow creates a sliding-window limiter.
func NewSlidingWindow(windowSize time.Duration, maxRequests int, emitter *events.Emitter) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		timestamps:  make(map[string][]time.Time),
		emitter:     emitter,
	}
}

func (s *SlidingWindow) prune(identifier string, now time.Time) []time.Time {
	cutoff := now.Add(-s.windowSize)
	existing := s.timestamps[identifier]
	kept := existing[:0]
	for _, ts := range existing {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// Allow records a request for identifier and admits iff the window's
// count (after pruning) is at or under maxRequests.
func (s *SlidingWindow) Allow(identifier string) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	kept := s.prune(identifier, now)

	if len(kept) >= s.maxRequests {
		s.timestamps[identifier] = kept
		s.emitter.RateLimitExceeded(identifier, s.maxRequests, kept[0].Add(s.windowSize))
		return Decision{
			Allowed: false,
			Limit:   s.maxRequests,
			ResetAt: kept[0].Add(s.windowSize),
		}
	}

	kept = append(kept, now)
	s.timestamps[identifier] = kept
	return Decision{Allowed: true, Limit: s.maxRequests, Remaining: s.maxRequests - len(kept)}
}

// Status reports the current count within the window without recording a
// new request. ResetAt is when the oldest recorded timestamp ages out of
// the window (and so is left zero-valued when the window holds nothing).
func (s *SlidingWindow) Status(identifier string) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.prune(identifier, time.Now())
	s.timestamps[identifier] = kept
	d := Decision{Limit: s.maxRequests, Remaining: s.maxRequests - len(kept)}
	if len(kept) > 0 {
		d.ResetAt = kept[0].Add(s.windowSize)
	}
	return d
}

// Prune removes identifiers with no timestamps remaining in the window.
func (s *SlidingWindow) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id := range s.timestamps {
		kept := s.prune(id, now)
		if len(kept) == 0 {
			delete(s.timestamps, id)
		} else {
			s.timestamps[id] = kept
		}
	}
}
