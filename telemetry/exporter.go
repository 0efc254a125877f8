// Package telemetry provides OpenTelemetry export for pipeline event
// recordings. This enables exporting a pipeline invocation's events as a
// distributed trace to observability platforms.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pipelinekit/pipelinekit/events"
)

// Exporter exports session events to an observability backend.
type Exporter interface {
	// Export sends events to the backend.
	Export(ctx context.Context, spans []*Span) error

	// Shutdown performs cleanup and flushes any pending data.
	Shutdown(ctx context.Context) error
}

// Span represents a trace span in OpenTelemetry format.
type Span struct {
	// TraceID is the unique identifier for the trace (16 bytes, hex-encoded).
	TraceID string `json:"traceId"`
	// SpanID is the unique identifier for this span (8 bytes, hex-encoded).
	SpanID string `json:"spanId"`
	// ParentSpanID is the ID of the parent span (empty for root spans).
	ParentSpanID string `json:"parentSpanId,omitempty"`
	// Name is the operation name.
	Name string `json:"name"`
	// Kind is the span kind (client, server, producer, consumer, internal).
	Kind SpanKind `json:"kind"`
	// StartTime is when the span started.
	StartTime time.Time `json:"startTimeUnixNano"`
	// EndTime is when the span ended.
	EndTime time.Time `json:"endTimeUnixNano"`
	// Attributes are key-value pairs associated with the span.
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	// Status is the span status.
	Status *SpanStatus `json:"status,omitempty"`
	// Events are timestamped events within the span.
	Events []*SpanEvent `json:"events,omitempty"`
}

// SpanKind represents the type of span.
type SpanKind int

// Span kinds.
const (
	SpanKindUnspecified SpanKind = 0
	SpanKindInternal    SpanKind = 1
	SpanKindServer      SpanKind = 2
	SpanKindClient      SpanKind = 3
	SpanKindProducer    SpanKind = 4
	SpanKindConsumer    SpanKind = 5
)

// SpanStatus represents the status of a span.
type SpanStatus struct {
	// Code is the status code (0=Unset, 1=Ok, 2=Error).
	Code StatusCode `json:"code"`
	// Message is the status message.
	Message string `json:"message,omitempty"`
}

// StatusCode represents the status of a span.
type StatusCode int

// Status codes.
const (
	StatusCodeUnset StatusCode = 0
	StatusCodeOk    StatusCode = 1
	StatusCodeError StatusCode = 2
)

// SpanEvent represents an event within a span.
type SpanEvent struct {
	// Name is the event name.
	Name string `json:"name"`
	// Time is when the event occurred.
	Time time.Time `json:"timeUnixNano"`
	// Attributes are key-value pairs associated with the event.
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Resource represents the entity producing telemetry.
type Resource struct {
	// Attributes are key-value pairs describing the resource.
	Attributes map[string]interface{} `json:"attributes"`
}

// DefaultResource returns a default resource for PipelineKit.
func DefaultResource() *Resource {
	return &Resource{
		Attributes: map[string]interface{}{
			"service.name":    "pipelinekit",
			"service.version": "1.0.0",
			"telemetry.sdk":   "pipelinekit-telemetry",
		},
	}
}

// ResourceWithInstance returns a default resource with an instance.id attribute set,
// identifying which deployed pipeline instance produced the trace.
func ResourceWithInstance(instanceID string) *Resource {
	r := DefaultResource()
	r.Attributes["instance.id"] = instanceID
	return r
}

// EventConverter converts a recorded sequence of pipeline events into OTLP
// spans. It is the offline counterpart to OTelEventListener: where the
// listener creates live spans as events arrive, EventConverter replays a
// previously recorded invocation (e.g. events persisted for audit) into the
// same span shape.
type EventConverter struct {
	// Resource is the resource to attach to spans.
	Resource *Resource
}

// NewEventConverter creates a new event converter.
func NewEventConverter(resource *Resource) *EventConverter {
	if resource == nil {
		resource = DefaultResource()
	}
	return &EventConverter{Resource: resource}
}

// ConvertInvocation converts one command invocation's recorded events to
// spans. The invocation becomes the root span (keyed by correlationID),
// with middleware executions as child spans and resilience/cache/rate-limit
// events attached as span events.
func (c *EventConverter) ConvertInvocation(
	correlationID string, invocationEvents []events.Event,
) ([]*Span, error) {
	if len(invocationEvents) == 0 {
		return nil, nil
	}
	traceID := generateTraceID(correlationID)
	return c.buildTrace(correlationID, invocationEvents, traceID, "")
}

// convertEvent converts a single event to a span or updates an existing span.
func (c *EventConverter) convertEvent(
	traceID, parentSpanID string, evt *events.Event, spanStack map[string]*Span,
) *Span {
	switch evt.Name {
	case events.CommandStarted:
		return c.createCommandSpan(traceID, parentSpanID, evt, spanStack)
	case events.CommandCompleted, events.CommandFailed:
		return c.completeCommandSpan(evt, spanStack)
	case events.MiddlewareStarted:
		return c.createMiddlewareSpan(traceID, parentSpanID, evt, spanStack)
	case events.MiddlewareCompleted, events.MiddlewareFailed:
		return c.completeMiddlewareSpan(evt, spanStack)
	default:
		c.attachSpanEvent(evt, spanStack)
		return nil
	}
}

func (c *EventConverter) createCommandSpan(
	traceID, parentSpanID string, evt *events.Event, spanStack map[string]*Span,
) *Span {
	commandType, _ := evt.Properties["command_type"].(string)
	spanID := generateSpanID(evt.CorrelationID + ":command")
	span := &Span{
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: parentSpanID,
		Name:         "command." + commandType,
		Kind:         SpanKindInternal,
		StartTime:    evt.Timestamp,
		EndTime:      evt.Timestamp, // updated on completion
		Attributes: map[string]interface{}{
			"correlation.id": evt.CorrelationID,
			"command.type":   commandType,
		},
	}
	spanStack["command:"+evt.CorrelationID] = span
	return nil // emitted once completed
}

func (c *EventConverter) completeCommandSpan(evt *events.Event, spanStack map[string]*Span) *Span {
	key := "command:" + evt.CorrelationID
	span, ok := spanStack[key]
	if !ok {
		return nil
	}
	delete(spanStack, key)

	span.EndTime = evt.Timestamp
	if ms, ok := evt.Properties["duration_ms"].(int64); ok {
		span.Attributes["command.duration_ms"] = ms
	}

	if evt.Name == events.CommandFailed {
		msg, _ := evt.Properties["error_kind"].(string)
		span.Status = &SpanStatus{Code: StatusCodeError, Message: msg}
	} else {
		span.Status = &SpanStatus{Code: StatusCodeOk}
	}

	return span
}

func (c *EventConverter) createMiddlewareSpan(
	traceID, parentSpanID string, evt *events.Event, spanStack map[string]*Span,
) *Span {
	name, _ := evt.Properties["middleware"].(string)
	position, _ := evt.Properties["position"].(int)

	spanID := generateSpanID(evt.CorrelationID + ":middleware:" + name)
	span := &Span{
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: parentSpanID,
		Name:         "middleware." + name,
		Kind:         SpanKindInternal,
		StartTime:    evt.Timestamp,
		EndTime:      evt.Timestamp,
		Attributes: map[string]interface{}{
			"middleware.name":     name,
			"middleware.position": position,
		},
	}
	spanStack["middleware:"+evt.CorrelationID+":"+name] = span
	return nil
}

func (c *EventConverter) completeMiddlewareSpan(evt *events.Event, spanStack map[string]*Span) *Span {
	name, _ := evt.Properties["middleware"].(string)
	key := "middleware:" + evt.CorrelationID + ":" + name
	span, ok := spanStack[key]
	if !ok {
		return nil
	}
	delete(spanStack, key)

	span.EndTime = evt.Timestamp
	if ms, ok := evt.Properties["duration_ms"].(int64); ok {
		span.Attributes["middleware.duration_ms"] = ms
	}

	if evt.Name == events.MiddlewareFailed {
		msg, _ := evt.Properties["error_kind"].(string)
		span.Status = &SpanStatus{Code: StatusCodeError, Message: msg}
	} else {
		span.Status = &SpanStatus{Code: StatusCodeOk}
	}

	return span
}

// attachSpanEvent records a resilience/cache/rate-limit/back-pressure event
// as a span event on the innermost active span for the invocation (the
// current middleware span if one is in flight, otherwise the command span).
func (c *EventConverter) attachSpanEvent(evt *events.Event, spanStack map[string]*Span) {
	target := c.activeSpan(evt.CorrelationID, spanStack)
	if target == nil {
		return
	}
	attrs := make(map[string]interface{}, len(evt.Properties))
	for k, v := range evt.Properties {
		attrs[k] = v
	}
	target.Events = append(target.Events, &SpanEvent{
		Name:       string(evt.Name),
		Time:       evt.Timestamp,
		Attributes: attrs,
	})
}

func (c *EventConverter) activeSpan(correlationID string, spanStack map[string]*Span) *Span {
	prefix := "middleware:" + correlationID + ":"
	for key, span := range spanStack {
		if hasPrefix(key, prefix) {
			return span
		}
	}
	if span, ok := spanStack["command:"+correlationID]; ok {
		return span
	}
	return spanStack["root:"+correlationID]
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// ConvertInvocationWithParent converts one invocation's recorded events to
// spans, using the provided trace context as the parent trace instead of
// generating a fresh one from the correlation ID. If traceCtx is nil or has
// an empty Traceparent, it falls back to ConvertInvocation behavior.
func (c *EventConverter) ConvertInvocationWithParent(
	correlationID string, invocationEvents []events.Event, traceCtx *TraceContext,
) ([]*Span, error) {
	if traceCtx == nil || traceCtx.Traceparent == "" {
		return c.ConvertInvocation(correlationID, invocationEvents)
	}

	parentTraceID, parentSpanID, ok := parseTraceparent(traceCtx.Traceparent)
	if !ok {
		return c.ConvertInvocation(correlationID, invocationEvents)
	}

	if len(invocationEvents) == 0 {
		return nil, nil
	}

	return c.buildTrace(correlationID, invocationEvents, parentTraceID, parentSpanID)
}

// buildTrace creates the root invocation span and converts all events into
// child spans. parentSpanID is set on the root span when propagating an
// inbound trace context.
func (c *EventConverter) buildTrace(
	correlationID string, invocationEvents []events.Event, traceID, parentSpanID string,
) ([]*Span, error) {
	rootSpanID := generateSpanID(correlationID + ":root")

	var startTime, endTime time.Time
	for _, evt := range invocationEvents {
		if startTime.IsZero() || evt.Timestamp.Before(startTime) {
			startTime = evt.Timestamp
		}
		if endTime.IsZero() || evt.Timestamp.After(endTime) {
			endTime = evt.Timestamp
		}
	}

	rootSpan := &Span{
		TraceID:      traceID,
		SpanID:       rootSpanID,
		ParentSpanID: parentSpanID,
		Name:         "invocation",
		Kind:         SpanKindServer,
		StartTime:    startTime,
		EndTime:      endTime,
		Attributes: map[string]interface{}{
			"correlation.id": correlationID,
		},
		Status: &SpanStatus{Code: StatusCodeOk},
	}

	spans := []*Span{rootSpan}
	spanStack := make(map[string]*Span)
	spanStack["root:"+correlationID] = rootSpan

	for i := range invocationEvents {
		span := c.convertEvent(traceID, rootSpanID, &invocationEvents[i], spanStack)
		if span != nil {
			spans = append(spans, span)
		}
	}

	return spans, nil
}

// parseTraceparent extracts trace ID and span ID from a W3C traceparent header.
// Format: version-trace_id-parent_id-trace_flags (e.g., 00-<32 hex>-<16 hex>-<2 hex>).
func parseTraceparent(tp string) (traceID, spanID string, ok bool) {
	if !traceparentRe.MatchString(tp) {
		return "", "", false
	}
	// 00-<32 hex traceID>-<16 hex spanID>-<2 hex flags>
	traceID = tp[3:35]
	spanID = tp[36:52]
	return traceID, spanID, true
}

// generateTraceID generates a 16-byte trace ID from a string.
func generateTraceID(s string) string {
	// Use first 16 bytes of SHA256 hash
	hash := sha256Sum(s)
	return hex.EncodeToString(hash[:16])
}

// generateSpanID generates an 8-byte span ID from a string.
func generateSpanID(s string) string {
	// Use first 8 bytes of SHA256 hash
	hash := sha256Sum(s)
	return hex.EncodeToString(hash[:8])
}

// sha256Sum computes SHA256 hash of a string.
func sha256Sum(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}
