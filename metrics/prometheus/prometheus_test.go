package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pipelinekit/pipelinekit/events"
)

func TestNewExporter(t *testing.T) {
	exporter := NewExporter(":9091")
	if exporter == nil {
		t.Fatal("Expected non-nil exporter")
	}
	if exporter.Registry() == nil {
		t.Error("Expected non-nil registry")
	}
}

func TestNewExporterWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9092", reg)

	if exporter.Registry() != reg {
		t.Error("Expected custom registry to be used")
	}
}

func TestExporterHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	exporter := NewExporterWithRegistry(":9093", reg)
	handler := exporter.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "test_counter") {
		t.Error("Expected response to contain test_counter metric")
	}
}

func TestExporterRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9094", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom_counter",
		Help: "Custom counter",
	})

	if err := exporter.Register(counter); err != nil {
		t.Errorf("Expected no error registering counter, got %v", err)
	}

	if err := exporter.Register(counter); err == nil {
		t.Error("Expected error when registering duplicate counter")
	}
}

func TestExporterMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9095", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "must_register_counter",
		Help: "Must register counter",
	})

	exporter.MustRegister(counter)
}

func TestExporterStartShutdown(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	errCh := make(chan error, 1)
	go func() {
		errCh <- exporter.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := exporter.Shutdown(ctx); err != nil {
		t.Errorf("Expected no error on shutdown, got %v", err)
	}

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for server to stop")
	}
}

func TestExporterDoubleStart(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	go func() {
		_ = exporter.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	if err := exporter.Start(); err != nil {
		t.Errorf("Expected nil on double start, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = exporter.Shutdown(ctx)
}

func TestListenerRecordsCommandCompletion(t *testing.T) {
	commandsTotal.Reset()
	commandDuration.Reset()

	l := NewListener()
	l.Handle(&events.Event{
		Name: events.CommandCompleted,
		Properties: map[string]any{
			"command_type": "CreateOrder",
			"duration_ms":  int64(150),
		},
	})

	count := testutil.ToFloat64(commandsTotal.WithLabelValues("CreateOrder", statusSuccess))
	if count != 1 {
		t.Errorf("expected 1 successful command, got %f", count)
	}
}

func TestListenerRecordsCommandFailure(t *testing.T) {
	commandsTotal.Reset()

	l := NewListener()
	l.Handle(&events.Event{
		Name: events.CommandFailed,
		Properties: map[string]any{
			"command_type": "CreateOrder",
			"error_kind":   "validation",
			"duration_ms":  int64(10),
		},
	})

	count := testutil.ToFloat64(commandsTotal.WithLabelValues("CreateOrder", statusError))
	if count != 1 {
		t.Errorf("expected 1 failed command, got %f", count)
	}
}

func TestListenerRecordsBackpressureRejection(t *testing.T) {
	backpressureRejectionsTotal.Reset()

	l := NewListener()
	l.Handle(&events.Event{
		Name:       events.BackpressureRejected,
		Properties: map[string]any{"reason": "queueFull"},
	})

	count := testutil.ToFloat64(backpressureRejectionsTotal.WithLabelValues("queueFull"))
	if count != 1 {
		t.Errorf("expected 1 rejection, got %f", count)
	}
}

func TestListenerRecordsCircuitTransitions(t *testing.T) {
	circuitStateTotal.Reset()

	l := NewListener()
	l.Handle(&events.Event{
		Name:       events.CircuitOpened,
		Properties: map[string]any{"circuit": "payments"},
	})
	l.Handle(&events.Event{
		Name:       events.CircuitClosed,
		Properties: map[string]any{"circuit": "payments"},
	})

	opened := testutil.ToFloat64(circuitStateTotal.WithLabelValues("payments", "opened"))
	closed := testutil.ToFloat64(circuitStateTotal.WithLabelValues("payments", "closed"))
	if opened != 1 || closed != 1 {
		t.Errorf("expected 1 opened and 1 closed transition, got opened=%f closed=%f", opened, closed)
	}
}

func TestListenerRecordsRetryAndTimeout(t *testing.T) {
	l := NewListener()

	before := testutil.ToFloat64(retryAttemptsTotal)
	l.Handle(&events.Event{Name: events.RetryAttempt, Properties: map[string]any{"attempt": 1}})
	after := testutil.ToFloat64(retryAttemptsTotal)
	if after != before+1 {
		t.Errorf("expected retry attempts to increment by 1, got %f -> %f", before, after)
	}

	beforeTimeout := testutil.ToFloat64(timeoutExpiredTotal)
	l.Handle(&events.Event{Name: events.TimeoutExpired, Properties: map[string]any{"budget_ms": int64(500)}})
	afterTimeout := testutil.ToFloat64(timeoutExpiredTotal)
	if afterTimeout != beforeTimeout+1 {
		t.Errorf("expected timeout counter to increment by 1, got %f -> %f", beforeTimeout, afterTimeout)
	}
}

func TestListenerRecordsCacheHitsMissesEvictions(t *testing.T) {
	cacheEvictionsTotal.Reset()

	l := NewListener()

	beforeHit := testutil.ToFloat64(cacheHitsTotal)
	l.Handle(&events.Event{Name: events.CacheHit, Properties: map[string]any{"fingerprint": "abc"}})
	if testutil.ToFloat64(cacheHitsTotal) != beforeHit+1 {
		t.Error("expected cache hit counter to increment")
	}

	beforeMiss := testutil.ToFloat64(cacheMissesTotal)
	l.Handle(&events.Event{Name: events.CacheMiss, Properties: map[string]any{"fingerprint": "def"}})
	if testutil.ToFloat64(cacheMissesTotal) != beforeMiss+1 {
		t.Error("expected cache miss counter to increment")
	}

	l.Handle(&events.Event{Name: events.CacheEvicted, Properties: map[string]any{"fingerprint": "abc", "reason": "lru"}})
	evicted := testutil.ToFloat64(cacheEvictionsTotal.WithLabelValues("lru"))
	if evicted != 1 {
		t.Errorf("expected 1 eviction, got %f", evicted)
	}
}

func TestListenerRecordsRateLimitExceeded(t *testing.T) {
	rateLimitExceededTotal.Reset()

	l := NewListener()
	l.Handle(&events.Event{
		Name:       events.RateLimitExceeded,
		Properties: map[string]any{"identifier": "user-42", "limit": 10},
	})

	count := testutil.ToFloat64(rateLimitExceededTotal.WithLabelValues("user-42"))
	if count != 1 {
		t.Errorf("expected 1 rate limit rejection, got %f", count)
	}
}

func TestListenerIgnoresEventsWithoutDedicatedMetrics(t *testing.T) {
	l := NewListener()

	// Must not panic for events that intentionally have no metric mapping.
	l.Handle(&events.Event{Name: events.CommandStarted, Properties: map[string]any{}})
	l.Handle(&events.Event{Name: events.MiddlewareStarted, Properties: map[string]any{}})
	l.Handle(&events.Event{Name: events.CacheStored, Properties: map[string]any{}})
}

func TestListenerAsListenerIsCallable(t *testing.T) {
	l := NewListener()
	fn := l.AsListener()
	if fn == nil {
		t.Fatal("expected non-nil listener function")
	}
	fn(&events.Event{Name: events.CommandStarted, Properties: map[string]any{}})
}
