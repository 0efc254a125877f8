// Package prometheus provides a Prometheus metrics exporter for PipelineKit
// pipelines, subscribing to the event bus and converting events into
// metric observations.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pipelinekit"

var (
	// commandDuration is a histogram of command execution duration in seconds.
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Histogram of command execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command_type", "status"},
	)

	// commandsTotal is a counter of commands executed.
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of commands executed",
		},
		[]string{"command_type", "status"},
	)

	// middlewareDuration is a histogram of per-middleware duration in seconds.
	middlewareDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "middleware_duration_seconds",
			Help:      "Histogram of middleware execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"middleware", "status"},
	)

	// backpressureInUse is a gauge of in-flight admissions observed at the
	// last backpressure event.
	backpressureInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backpressure_in_use",
			Help:      "Number of in-flight admissions through the back-pressure semaphore",
		},
	)

	// backpressureQueued is a gauge of queued waiters.
	backpressureQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backpressure_queued",
			Help:      "Number of callers queued waiting for back-pressure admission",
		},
	)

	// backpressureRejectionsTotal is a counter of rejected admissions.
	backpressureRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_rejections_total",
			Help:      "Total number of back-pressure admissions rejected",
		},
		[]string{"reason"},
	)

	// circuitStateTotal is a counter of circuit breaker state transitions.
	circuitStateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_state_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"circuit", "state"}, // state: opened, halfOpen, closed
	)

	// retryAttemptsTotal is a counter of retry attempts.
	retryAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Total number of retry attempts made",
		},
	)

	// retryExhaustedTotal is a counter of retry exhaustion events.
	retryExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Total number of times retry attempts were exhausted",
		},
	)

	// timeoutExpiredTotal is a counter of timeout expirations.
	timeoutExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeout_expired_total",
			Help:      "Total number of timeout-budget expirations",
		},
	)

	// cacheHitsTotal and cacheMissesTotal track cache effectiveness.
	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
	)
	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
	)
	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of cache evictions",
		},
		[]string{"reason"},
	)

	// rateLimitExceededTotal is a counter of rate-limit rejections.
	rateLimitExceededTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_exceeded_total",
			Help:      "Total number of requests rejected by a rate limiter",
		},
		[]string{"identifier"},
	)

	// allMetrics is the list of collectors registered with a prometheus.Registerer.
	allMetrics = []prometheus.Collector{
		commandDuration,
		commandsTotal,
		middlewareDuration,
		backpressureInUse,
		backpressureQueued,
		backpressureRejectionsTotal,
		circuitStateTotal,
		retryAttemptsTotal,
		retryExhaustedTotal,
		timeoutExpiredTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		rateLimitExceededTotal,
	}
)

// Register registers every collector with reg. Callers typically pass
// prometheus.DefaultRegisterer.
func Register(reg prometheus.Registerer) error {
	for _, m := range allMetrics {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}
