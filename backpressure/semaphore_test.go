package backpressure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pipelinekit/pipelinekit/errs"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, MaxOutstanding: 2, Strategy: Suspend})
	tok, err := s.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Snapshot().InUse; got != 1 {
		t.Fatalf("expected InUse=1, got %d", got)
	}
	tok.Release()
	if got := s.Snapshot().InUse; got != 0 {
		t.Fatalf("expected InUse=0 after release, got %d", got)
	}
}

func TestDoubleReleaseIsNoOp(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, Strategy: Suspend})
	tok, _ := s.Acquire(context.Background(), 0)
	tok.Release()
	tok.Release()
	if got := s.Snapshot().InUse; got != 0 {
		t.Fatalf("expected InUse=0, got %d", got)
	}
}

func TestFailStrategyRejectsWhenFull(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, MaxOutstanding: 1, Strategy: Fail})
	_, err := s.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}
	_, err2 := s.Acquire(context.Background(), 0)
	if err2 == nil {
		t.Fatal("expected second acquire to be rejected")
	}
	if !errors.Is(err2, errs.New(errs.KindBackPressureExhausted, "")) {
		t.Fatalf("expected KindBackPressureExhausted, got %v", err2)
	}
}

func TestDropNewestRejectsCaller(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, MaxOutstanding: 1, Strategy: DropNewest})
	_, _ = s.Acquire(context.Background(), 0)
	_, err := s.Acquire(context.Background(), 0)
	if !errors.Is(err, errs.New(errs.KindBackPressureRejected, "")) {
		t.Fatalf("expected KindBackPressureRejected, got %v", err)
	}
}

func TestSuspendWakesOnRelease(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, MaxOutstanding: 2, Strategy: Suspend})
	tok, _ := s.Acquire(context.Background(), 0)

	done := make(chan struct{})
	go func() {
		tok2, err := s.Acquire(context.Background(), 0)
		if err == nil {
			tok2.Release()
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	tok.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected suspended acquirer to be woken after release")
	}
}

func TestSuspendRejectsPastMaxOutstanding(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, MaxOutstanding: 2, Strategy: Suspend})

	tok, err := s.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}

	// Second acquire queues (outstanding becomes 2) and blocks on the
	// held concurrency slot; it only completes once tok is released.
	queuedDone := make(chan struct{})
	go func() {
		tok2, err := s.Acquire(context.Background(), 0)
		if err == nil {
			tok2.Release()
		}
		close(queuedDone)
	}()
	time.Sleep(20 * time.Millisecond)
	if got := s.Snapshot().Queued; got != 1 {
		t.Fatalf("expected 1 queued waiter, got %d", got)
	}

	// Third acquire finds outstanding (inUse=1 + queued=1) == maxOutstanding
	// and must be rejected rather than queued unboundedly.
	_, err3 := s.Acquire(context.Background(), 0)
	if err3 == nil {
		t.Fatal("expected third acquire to be rejected once maxOutstanding is reached")
	}
	if !errors.Is(err3, errs.New(errs.KindBackPressureRejected, "")) {
		t.Fatalf("expected KindBackPressureRejected, got %v", err3)
	}

	tok.Release()
	<-queuedDone
}

func TestCancelledWaiterNeverAcquires(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, MaxOutstanding: 2, Strategy: Suspend})
	_, _ = s.Acquire(context.Background(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Acquire(ctx, 0)
	if err == nil {
		t.Fatal("expected cancelled acquire to fail")
	}
}

func TestTryAcquireNonBlocking(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, Strategy: Suspend})
	tok, ok := s.TryAcquire()
	if !ok {
		t.Fatal("expected first TryAcquire to succeed")
	}
	_, ok2 := s.TryAcquire()
	if ok2 {
		t.Fatal("expected second TryAcquire to fail while slot is held")
	}
	tok.Release()
	_, ok3 := s.TryAcquire()
	if !ok3 {
		t.Fatal("expected TryAcquire to succeed after release")
	}
}

func TestPeakInUseTracksMaximum(t *testing.T) {
	s := New(Config{MaxConcurrency: 2, MaxOutstanding: 2, Strategy: Suspend})
	t1, _ := s.Acquire(context.Background(), 0)
	t2, _ := s.Acquire(context.Background(), 0)
	if got := s.Snapshot().PeakInUse; got != 2 {
		t.Fatalf("expected PeakInUse=2, got %d", got)
	}
	t1.Release()
	t2.Release()
	if got := s.Snapshot().PeakInUse; got != 2 {
		t.Fatalf("expected PeakInUse to remain 2 after release, got %d", got)
	}
}
