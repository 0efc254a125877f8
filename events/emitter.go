package events

import "time"

// Emitter publishes events on behalf of one pipeline invocation, binding a
// correlation ID to every event so subscribers can reassemble a single
// execution's timeline without the pipeline core threading IDs through
// every call site.
type Emitter struct {
	bus           *EventBus
	correlationID string
}

// NewEmitter creates an emitter bound to a correlation ID. A nil bus is
// valid: every emit call becomes a no-op, so middleware can hold an
// Emitter unconditionally instead of nil-checking at every call site.
func NewEmitter(bus *EventBus, correlationID string) *Emitter {
	return &Emitter{bus: bus, correlationID: correlationID}
}

func (e *Emitter) emit(name Name, props map[string]any) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(&Event{
		Name:          name,
		Timestamp:     time.Now(),
		CorrelationID: e.correlationID,
		Properties:    props,
	})
}

// CommandStarted emits command.started.
func (e *Emitter) CommandStarted(commandType string) {
	e.emit(CommandStarted, map[string]any{"command_type": commandType})
}

// CommandCompleted emits command.completed.
func (e *Emitter) CommandCompleted(commandType string, duration time.Duration) {
	e.emit(CommandCompleted, map[string]any{
		"command_type": commandType,
		"duration_ms":  duration.Milliseconds(),
	})
}

// CommandFailed emits command.failed.
func (e *Emitter) CommandFailed(commandType string, errKind string, duration time.Duration) {
	e.emit(CommandFailed, map[string]any{
		"command_type": commandType,
		"error_kind":   errKind,
		"duration_ms":  duration.Milliseconds(),
	})
}

// MiddlewareStarted emits middleware.started.
func (e *Emitter) MiddlewareStarted(name string, position int) {
	e.emit(MiddlewareStarted, map[string]any{"middleware": name, "position": position})
}

// MiddlewareCompleted emits middleware.completed.
func (e *Emitter) MiddlewareCompleted(name string, position int, duration time.Duration) {
	e.emit(MiddlewareCompleted, map[string]any{
		"middleware":  name,
		"position":    position,
		"duration_ms": duration.Milliseconds(),
	})
}

// MiddlewareFailed emits middleware.failed.
func (e *Emitter) MiddlewareFailed(name string, position int, errKind string) {
	e.emit(MiddlewareFailed, map[string]any{
		"middleware": name,
		"position":   position,
		"error_kind": errKind,
	})
}

// BackpressureAcquired emits backpressure.acquired.
func (e *Emitter) BackpressureAcquired(inUse, queued int64) {
	e.emit(BackpressureAcquired, map[string]any{"in_use": inUse, "queued": queued})
}

// BackpressureQueued emits backpressure.queued.
func (e *Emitter) BackpressureQueued(queued int64) {
	e.emit(BackpressureQueued, map[string]any{"queued": queued})
}

// BackpressureRejected emits backpressure.rejected.
func (e *Emitter) BackpressureRejected(reason string) {
	e.emit(BackpressureRejected, map[string]any{"reason": reason})
}

// CircuitOpened emits circuit.opened.
func (e *Emitter) CircuitOpened(name string, failures int) {
	e.emit(CircuitOpened, map[string]any{"circuit": name, "failures": failures})
}

// CircuitHalfOpen emits circuit.halfOpen.
func (e *Emitter) CircuitHalfOpen(name string) {
	e.emit(CircuitHalfOpen, map[string]any{"circuit": name})
}

// CircuitClosed emits circuit.closed.
func (e *Emitter) CircuitClosed(name string) {
	e.emit(CircuitClosed, map[string]any{"circuit": name})
}

// RetryAttempt emits retry.attempt.
func (e *Emitter) RetryAttempt(attempt int, err error) {
	props := map[string]any{"attempt": attempt}
	if err != nil {
		props["error"] = err.Error()
	}
	e.emit(RetryAttempt, props)
}

// RetryExhausted emits retry.exhausted.
func (e *Emitter) RetryExhausted(attempts int, lastErr error) {
	props := map[string]any{"attempts": attempts}
	if lastErr != nil {
		props["last_error"] = lastErr.Error()
	}
	e.emit(RetryExhausted, props)
}

// TimeoutExpired emits timeout.expired.
func (e *Emitter) TimeoutExpired(budget time.Duration) {
	e.emit(TimeoutExpired, map[string]any{"budget_ms": budget.Milliseconds()})
}

// CacheHit emits cache.hit.
func (e *Emitter) CacheHit(fingerprint string) {
	e.emit(CacheHit, map[string]any{"fingerprint": fingerprint})
}

// CacheMiss emits cache.miss.
func (e *Emitter) CacheMiss(fingerprint string) {
	e.emit(CacheMiss, map[string]any{"fingerprint": fingerprint})
}

// CacheStored emits cache.stored.
func (e *Emitter) CacheStored(fingerprint string, ttl time.Duration) {
	e.emit(CacheStored, map[string]any{"fingerprint": fingerprint, "ttl_ms": ttl.Milliseconds()})
}

// CacheEvicted emits cache.evicted.
func (e *Emitter) CacheEvicted(fingerprint string, reason string) {
	e.emit(CacheEvicted, map[string]any{"fingerprint": fingerprint, "reason": reason})
}

// RateLimitExceeded emits rateLimit.exceeded.
func (e *Emitter) RateLimitExceeded(identifier string, limit int, resetAt time.Time) {
	e.emit(RateLimitExceeded, map[string]any{
		"identifier": identifier,
		"limit":      limit,
		"reset_at":   resetAt,
	})
}
