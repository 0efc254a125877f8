// Package logger provides structured logging with automatic secret redaction.
package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for fields that the pipeline core threads through
// context.Context and that handler.go extracts automatically onto every
// log record written while that context is active.
const (
	// ContextKeyCorrelationID identifies a single command execution across
	// every middleware and pipeline it passes through.
	ContextKeyCorrelationID contextKey = "correlation_id"

	// ContextKeyCommandType identifies the command being executed.
	ContextKeyCommandType contextKey = "command_type"

	// ContextKeyPipeline identifies the named pipeline executing the command.
	ContextKeyPipeline contextKey = "pipeline"

	// ContextKeyMiddleware identifies the middleware currently running.
	ContextKeyMiddleware contextKey = "middleware"

	// ContextKeyRequestID identifies the individual inbound request.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyEnvironment identifies the deployment environment.
	ContextKeyEnvironment contextKey = "environment"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeyCorrelationID,
	ContextKeyCommandType,
	ContextKeyPipeline,
	ContextKeyMiddleware,
	ContextKeyRequestID,
	ContextKeyEnvironment,
}

// WithCorrelationID returns a new context with the correlation ID set.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// WithCommandType returns a new context with the command type set.
func WithCommandType(ctx context.Context, commandType string) context.Context {
	return context.WithValue(ctx, ContextKeyCommandType, commandType)
}

// WithPipeline returns a new context with the pipeline name set.
func WithPipeline(ctx context.Context, pipeline string) context.Context {
	return context.WithValue(ctx, ContextKeyPipeline, pipeline)
}

// WithMiddleware returns a new context with the active middleware name set.
func WithMiddleware(ctx context.Context, middleware string) context.Context {
	return context.WithValue(ctx, ContextKeyMiddleware, middleware)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithEnvironment returns a new context with the environment set.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, ContextKeyEnvironment, environment)
}

// WithLoggingContext returns a new context with multiple logging fields set
// at once. Only non-empty values are applied.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.CorrelationID != "" {
		ctx = WithCorrelationID(ctx, fields.CorrelationID)
	}
	if fields.CommandType != "" {
		ctx = WithCommandType(ctx, fields.CommandType)
	}
	if fields.Pipeline != "" {
		ctx = WithPipeline(ctx, fields.Pipeline)
	}
	if fields.Middleware != "" {
		ctx = WithMiddleware(ctx, fields.Middleware)
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	if fields.Environment != "" {
		ctx = WithEnvironment(ctx, fields.Environment)
	}
	return ctx
}

// LoggingFields holds all standard logging context fields, for bulk
// assignment via WithLoggingContext.
type LoggingFields struct {
	CorrelationID string
	CommandType   string
	Pipeline      string
	Middleware    string
	RequestID     string
	Environment   string
}

// ExtractLoggingFields extracts all logging fields present in a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	fields := LoggingFields{}
	if v := ctx.Value(ContextKeyCorrelationID); v != nil {
		fields.CorrelationID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyCommandType); v != nil {
		fields.CommandType, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyPipeline); v != nil {
		fields.Pipeline, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyMiddleware); v != nil {
		fields.Middleware, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		fields.RequestID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyEnvironment); v != nil {
		fields.Environment, _ = v.(string)
	}
	return fields
}
