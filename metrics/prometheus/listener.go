package prometheus

import (
	"time"

	"github.com/pipelinekit/pipelinekit/events"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Listener records pipeline events as Prometheus metrics. Register it with
// an EventBus via SubscribeAll so the metrics exporter never sits on the
// hot path of command execution.
type Listener struct{}

// NewListener creates a new metrics Listener.
func NewListener() *Listener {
	return &Listener{}
}

// Handle processes an event and records the relevant metric. It is safe to
// pass directly as an events.Listener.
func (l *Listener) Handle(event *events.Event) {
	switch event.Name {
	case events.CommandStarted:
		// no dedicated gauge; command_duration_seconds captures volume too
	case events.CommandCompleted:
		l.recordCommand(event, statusSuccess)
	case events.CommandFailed:
		l.recordCommand(event, statusError)
	case events.MiddlewareStarted:
	case events.MiddlewareCompleted:
		l.recordMiddleware(event, statusSuccess)
	case events.MiddlewareFailed:
		l.recordMiddlewareFailed(event)
	case events.BackpressureAcquired:
		l.recordBackpressureAcquired(event)
	case events.BackpressureQueued:
		l.recordBackpressureQueued(event)
	case events.BackpressureRejected:
		l.recordBackpressureRejected(event)
	case events.CircuitOpened:
		l.recordCircuitTransition(event, "opened")
	case events.CircuitHalfOpen:
		l.recordCircuitTransition(event, "halfOpen")
	case events.CircuitClosed:
		l.recordCircuitTransition(event, "closed")
	case events.RetryAttempt:
		retryAttemptsTotal.Inc()
	case events.RetryExhausted:
		retryExhaustedTotal.Inc()
	case events.TimeoutExpired:
		timeoutExpiredTotal.Inc()
	case events.CacheHit:
		cacheHitsTotal.Inc()
	case events.CacheMiss:
		cacheMissesTotal.Inc()
	case events.CacheStored:
		// no dedicated metric beyond hit/miss ratio
	case events.CacheEvicted:
		l.recordCacheEvicted(event)
	case events.RateLimitExceeded:
		l.recordRateLimitExceeded(event)
	}
}

func (l *Listener) recordCommand(event *events.Event, status string) {
	commandType, _ := event.Properties["command_type"].(string)
	commandsTotal.WithLabelValues(commandType, status).Inc()
	if ms, ok := event.Properties["duration_ms"].(int64); ok {
		commandDuration.WithLabelValues(commandType, status).Observe(time.Duration(ms * int64(time.Millisecond)).Seconds())
	}
}

func (l *Listener) recordMiddleware(event *events.Event, status string) {
	name, _ := event.Properties["middleware"].(string)
	if ms, ok := event.Properties["duration_ms"].(int64); ok {
		middlewareDuration.WithLabelValues(name, status).Observe(time.Duration(ms * int64(time.Millisecond)).Seconds())
	}
}

func (l *Listener) recordMiddlewareFailed(event *events.Event) {
	name, _ := event.Properties["middleware"].(string)
	middlewareDuration.WithLabelValues(name, statusError).Observe(0)
}

func (l *Listener) recordBackpressureAcquired(event *events.Event) {
	if v, ok := event.Properties["in_use"].(int64); ok {
		backpressureInUse.Set(float64(v))
	}
	if v, ok := event.Properties["queued"].(int64); ok {
		backpressureQueued.Set(float64(v))
	}
}

func (l *Listener) recordBackpressureQueued(event *events.Event) {
	if v, ok := event.Properties["queued"].(int64); ok {
		backpressureQueued.Set(float64(v))
	}
}

func (l *Listener) recordBackpressureRejected(event *events.Event) {
	reason, _ := event.Properties["reason"].(string)
	backpressureRejectionsTotal.WithLabelValues(reason).Inc()
}

func (l *Listener) recordCircuitTransition(event *events.Event, state string) {
	name, _ := event.Properties["circuit"].(string)
	circuitStateTotal.WithLabelValues(name, state).Inc()
}

func (l *Listener) recordCacheEvicted(event *events.Event) {
	reason, _ := event.Properties["reason"].(string)
	cacheEvictionsTotal.WithLabelValues(reason).Inc()
}

func (l *Listener) recordRateLimitExceeded(event *events.Event) {
	identifier, _ := event.Properties["identifier"].(string)
	rateLimitExceededTotal.WithLabelValues(identifier).Inc()
}

// AsListener returns an events.Listener bound to l, ready to pass to
// EventBus.SubscribeAll.
func (l *Listener) AsListener() events.Listener {
	return l.Handle
}
