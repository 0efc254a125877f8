// Package backpressure implements a bounded-concurrency primitive: a
// semaphore with queue accounting across four admission strategies.
//
// It generalizes golang.org/x/sync/semaphore.Weighted into a fuller
// contract: maxConcurrency, maxOutstanding, maxQueueMemory, and a
// pluggable strategy for what happens when the semaphore is full.
package backpressure

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/pipelinekit/pipelinekit/errs"
)

// Strategy selects admission behavior when the semaphore is full.
type Strategy int

const (
	// Suspend enqueues the caller (FIFO) until a slot frees or the
	// caller's context is cancelled.
	Suspend Strategy = iota
	// DropNewest rejects the calling acquirer immediately.
	DropNewest
	// DropOldest cancels the longest-waiting queued acquirer and admits
	// the caller.
	DropOldest
	// Fail rejects immediately, identically to DropNewest but reported
	// under a distinct error kind.
	Fail
)

// Config configures a Semaphore. All fields are required; Validate fills
// in documented defaults for zero values.
type Config struct {
	MaxConcurrency int
	MaxOutstanding int
	MaxQueueMemory int64
	Strategy       Strategy
}

// DefaultConfig returns a Config with conservative, always-valid defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		MaxOutstanding: 100,
		MaxQueueMemory: 10 << 20, // 10MiB
		Strategy:       Suspend,
	}
}

// Snapshot is a point-in-time view of the semaphore's admission counters.
type Snapshot struct {
	InUse           int64
	Queued          int64
	TotalAdmissions int64
	TotalRejections int64
	PeakInUse       int64
}

type waiter struct {
	estimatedSize int64
	cancel        context.CancelFunc
}

// Semaphore is the core's bounded-concurrency primitive: maxConcurrency
// simultaneous Tokens, maxOutstanding concurrent-plus-queued acquires, and
// maxQueueMemory aggregate estimated bytes across queued acquires.
type Semaphore struct {
	cfg Config
	sem *semaphore.Weighted

	mu              sync.Mutex
	inUse           int64
	queued          int64
	queuedMemory    int64
	totalAdmissions int64
	totalRejections int64
	peakInUse       int64
	waiters         []*waiter
	nextWaiterID    uint64
}

// New creates a Semaphore from cfg, filling zero-valued fields with
// DefaultConfig's values.
func New(cfg Config) *Semaphore {
	d := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = d.MaxConcurrency
	}
	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = d.MaxOutstanding
	}
	if cfg.MaxQueueMemory <= 0 {
		cfg.MaxQueueMemory = d.MaxQueueMemory
	}
	return &Semaphore{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
	}
}

// Token is an RAII guard over one held slot. Release is idempotent;
// releasing a token whose acquire was cancelled is a no-op.
type Token struct {
	s        *Semaphore
	once     sync.Once
	released bool
}

// Release returns the slot to the semaphore, waking the next suspended
// waiter if one exists.
func (t *Token) Release() {
	t.once.Do(func() {
		t.s.sem.Release(1)
		t.s.mu.Lock()
		t.s.inUse--
		t.s.mu.Unlock()
	})
}

// Acquire blocks (for Suspend) or fails fast (for the other strategies)
// until a slot is available or ctx is cancelled. estimatedSize is an
// opaque accounting weight applied toward MaxQueueMemory while the
// acquire is queued; pass 0 if the caller does not track memory cost.
func (s *Semaphore) Acquire(ctx context.Context, estimatedSize int64) (*Token, error) {
	s.mu.Lock()
	outstanding := s.inUse + s.queued
	full := outstanding >= int64(s.cfg.MaxOutstanding) || s.queuedMemory+estimatedSize > s.cfg.MaxQueueMemory

	if full {
		switch s.cfg.Strategy {
		// Suspend still enforces maxOutstanding/maxQueueMemory as a hard
		// cap on admission: it only changes behavior below this cap
		// (wait instead of reject). Once the cap is hit there is no
		// headroom left to queue into, so it rejects exactly like
		// DropNewest.
		case DropNewest, Fail, Suspend:
			s.totalRejections++
			kind := errs.KindBackPressureRejected
			if s.cfg.Strategy == Fail {
				kind = errs.KindBackPressureExhausted
			}
			s.mu.Unlock()
			return nil, errs.New(kind, "semaphore at capacity")
		case DropOldest:
			if len(s.waiters) > 0 {
				oldest := s.waiters[0]
				s.waiters = s.waiters[1:]
				s.queued--
				s.queuedMemory -= oldest.estimatedSize
				oldest.cancel()
			} else {
				s.totalRejections++
				s.mu.Unlock()
				return nil, errs.New(errs.KindBackPressureRejected, "no waiter to preempt")
			}
		}
	}

	s.queued++
	s.queuedMemory += estimatedSize
	waitCtx, cancel := context.WithCancel(ctx)
	w := &waiter{estimatedSize: estimatedSize, cancel: cancel}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	err := s.sem.Acquire(waitCtx, 1)

	s.mu.Lock()
	s.queued--
	s.queuedMemory -= estimatedSize
	s.removeWaiter(w)
	if err != nil {
		s.totalRejections++
		s.mu.Unlock()
		cancel()
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.KindCancelled, "acquire cancelled", ctx.Err())
		}
		return nil, errs.Wrap(errs.KindBackPressurePreempted, "acquire preempted", err)
	}
	s.inUse++
	s.totalAdmissions++
	if s.inUse > s.peakInUse {
		s.peakInUse = s.inUse
	}
	s.mu.Unlock()
	cancel()

	return &Token{s: s}, nil
}

func (s *Semaphore) removeWaiter(target *waiter) {
	for i, w := range s.waiters {
		if w == target {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// TryAcquire attempts a non-blocking acquire. It returns (nil, false) if
// no slot is immediately available, regardless of Strategy.
func (s *Semaphore) TryAcquire() (*Token, bool) {
	if !s.sem.TryAcquire(1) {
		return nil, false
	}
	s.mu.Lock()
	s.inUse++
	s.totalAdmissions++
	if s.inUse > s.peakInUse {
		s.peakInUse = s.inUse
	}
	s.mu.Unlock()
	return &Token{s: s}, true
}

// Snapshot returns a point-in-time view of the semaphore's counters.
func (s *Semaphore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		InUse:           s.inUse,
		Queued:          s.queued,
		TotalAdmissions: s.totalAdmissions,
		TotalRejections: s.totalRejections,
		PeakInUse:       s.peakInUse,
	}
}
