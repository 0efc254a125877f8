// Package config loads PipelineConfig documents from YAML or JSON files,
// the way persistence/yaml and persistence/json load prompt and tool
// manifests: a K8s-style envelope (apiVersion/kind/metadata/spec) wrapping
// a typed spec, validated on load.
package config

// ObjectMeta is a minimal metadata block, following the same
// YAML-friendly subset of K8s ObjectMeta used elsewhere in this corpus.
type ObjectMeta struct {
	Name   string            `yaml:"name,omitempty" json:"name,omitempty"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Document is the on-disk envelope for a pipeline configuration.
type Document struct {
	APIVersion string     `yaml:"apiVersion" json:"apiVersion"`
	Kind       string     `yaml:"kind" json:"kind"`
	Metadata   ObjectMeta `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Spec       Spec       `yaml:"spec" json:"spec"`
}

// RetrySpec configures the retry middleware.
type RetrySpec struct {
	MaxAttempts int     `yaml:"maxAttempts,omitempty" json:"maxAttempts,omitempty"`
	Backoff     string  `yaml:"backoff,omitempty" json:"backoff,omitempty"` // fixed|linear|exponential
	Base        string  `yaml:"base,omitempty" json:"base,omitempty"`       // time.ParseDuration string
	Max         string  `yaml:"max,omitempty" json:"max,omitempty"`
	Jitter      float64 `yaml:"jitter,omitempty" json:"jitter,omitempty"`
}

// CircuitBreakerSpec configures the circuit-breaker middleware.
type CircuitBreakerSpec struct {
	Name              string `yaml:"name,omitempty" json:"name,omitempty"`
	FailureThreshold  int    `yaml:"failureThreshold,omitempty" json:"failureThreshold,omitempty"`
	Window            string `yaml:"window,omitempty" json:"window,omitempty"`
	Cooldown          string `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`
	HalfOpenMaxProbes int    `yaml:"halfOpenMaxProbes,omitempty" json:"halfOpenMaxProbes,omitempty"`
}

// Spec is the body of a PipelineConfig document: pipeline.Config and the
// backpressure/resilience settings it composes, in their YAML/JSON
// surface form (durations as parseable strings, the strategy as its name
// rather than backpressure.Strategy's int value).
type Spec struct {
	MaxConcurrency          int    `yaml:"maxConcurrency,omitempty" json:"maxConcurrency,omitempty"`
	MaxOutstanding          int    `yaml:"maxOutstanding,omitempty" json:"maxOutstanding,omitempty"`
	MaxQueueMemory          int64  `yaml:"maxQueueMemory,omitempty" json:"maxQueueMemory,omitempty"`
	BackPressureStrategy    string `yaml:"backPressureStrategy,omitempty" json:"backPressureStrategy,omitempty"` // suspend|dropNewest|dropOldest|fail
	MaxMiddlewareDepth      int    `yaml:"maxMiddlewareDepth,omitempty" json:"maxMiddlewareDepth,omitempty"`
	ExecutionTimeout        string `yaml:"executionTimeout,omitempty" json:"executionTimeout,omitempty"`
	GracefulShutdownTimeout string `yaml:"gracefulShutdownTimeout,omitempty" json:"gracefulShutdownTimeout,omitempty"`

	Retry          *RetrySpec          `yaml:"retry,omitempty" json:"retry,omitempty"`
	CircuitBreaker *CircuitBreakerSpec `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

const expectedKind = "PipelineConfig"
