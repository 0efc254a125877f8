package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pipelinekit/pipelinekit/events"
)

// spanEntry tracks an in-flight span and its context.
type spanEntry struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// pendingEnd buffers a span completion that arrived before the corresponding start.
// The EventBus dispatches each Publish() in a separate goroutine, so completion
// events can race ahead of start events.
type pendingEnd struct {
	errMsg string // empty means success
	attrs  []attribute.KeyValue
}

// OTelEventListener converts pipeline events into OTel spans in real time.
// It implements the events.Listener function signature via its OnEvent method.
// It is safe for concurrent use and tolerates out-of-order event delivery.
type OTelEventListener struct {
	tracer trace.Tracer

	mu          sync.Mutex
	commands    map[string]*spanEntry  // correlationID -> command span
	middleware  map[string]*spanEntry  // "correlationID:name" -> middleware span
	pendingEnds map[string]*pendingEnd // buffered completions for out-of-order delivery
}

// NewOTelEventListener creates a listener that creates OTel spans from pipeline events.
func NewOTelEventListener(tracer trace.Tracer) *OTelEventListener {
	return &OTelEventListener{
		tracer:      tracer,
		commands:    make(map[string]*spanEntry),
		middleware:  make(map[string]*spanEntry),
		pendingEnds: make(map[string]*pendingEnd),
	}
}

// OnEvent handles a single pipeline event and creates/completes OTel spans
// accordingly. It is safe for concurrent use and can be passed to
// EventBus.SubscribeAll.
func (l *OTelEventListener) OnEvent(evt *events.Event) {
	switch evt.Name {
	case events.CommandStarted:
		l.startCommand(evt)
	case events.CommandCompleted:
		l.endCommand(evt, "")
	case events.CommandFailed:
		errKind, _ := evt.Properties["error_kind"].(string)
		l.endCommand(evt, errKind)
	case events.MiddlewareStarted:
		l.startMiddleware(evt)
	case events.MiddlewareCompleted:
		l.endMiddleware(evt, "")
	case events.MiddlewareFailed:
		errKind, _ := evt.Properties["error_kind"].(string)
		l.endMiddleware(evt, errKind)
	default:
		l.recordSpanEvent(evt)
	}
}

func (l *OTelEventListener) commandCtx(correlationID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.commands[correlationID]; ok {
		return entry.ctx
	}
	return context.Background()
}

func (l *OTelEventListener) startCommand(evt *events.Event) {
	commandType, _ := evt.Properties["command_type"].(string)
	ctx, span := l.tracer.Start(context.Background(), "pipelinekit.command."+commandType,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("correlation.id", evt.CorrelationID),
			attribute.String("command.type", commandType),
		),
	)
	l.mu.Lock()
	l.commands[evt.CorrelationID] = &spanEntry{span: span, ctx: ctx}
	l.mu.Unlock()
}

func (l *OTelEventListener) endCommand(evt *events.Event, errKind string) {
	l.mu.Lock()
	entry, ok := l.commands[evt.CorrelationID]
	if ok {
		delete(l.commands, evt.CorrelationID)
	}
	l.mu.Unlock()
	if !ok {
		return
	}

	if ms, ok := evt.Properties["duration_ms"].(int64); ok {
		entry.span.SetAttributes(attribute.Int64("command.duration_ms", ms))
	}
	if errKind != "" {
		entry.span.SetStatus(codes.Error, errKind)
	} else {
		entry.span.SetStatus(codes.Ok, "")
	}
	entry.span.End()
}

func (l *OTelEventListener) startMiddleware(evt *events.Event) {
	name, _ := evt.Properties["middleware"].(string)
	position, _ := evt.Properties["position"].(int)
	key := evt.CorrelationID + ":" + name

	parentCtx := l.commandCtx(evt.CorrelationID)
	ctx, span := l.tracer.Start(parentCtx, "pipelinekit.middleware."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("middleware.name", name),
			attribute.Int("middleware.position", position),
		),
	)

	l.mu.Lock()
	pe, havePending := l.pendingEnds[key]
	if havePending {
		delete(l.pendingEnds, key)
	} else {
		l.middleware[key] = &spanEntry{span: span, ctx: ctx}
	}
	l.mu.Unlock()

	if havePending {
		applyPendingEnd(span, pe)
	}
}

func (l *OTelEventListener) endMiddleware(evt *events.Event, errKind string) {
	name, _ := evt.Properties["middleware"].(string)
	key := evt.CorrelationID + ":" + name

	var attrs []attribute.KeyValue
	if ms, ok := evt.Properties["duration_ms"].(int64); ok {
		attrs = append(attrs, attribute.Int64("middleware.duration_ms", ms))
	}

	l.mu.Lock()
	entry, ok := l.middleware[key]
	if ok {
		delete(l.middleware, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{errMsg: errKind, attrs: attrs}
	}
	l.mu.Unlock()
	if !ok {
		return
	}

	entry.span.SetAttributes(attrs...)
	if errKind != "" {
		entry.span.SetStatus(codes.Error, errKind)
	} else {
		entry.span.SetStatus(codes.Ok, "")
	}
	entry.span.End()
}

func applyPendingEnd(span trace.Span, pe *pendingEnd) {
	span.SetAttributes(pe.attrs...)
	if pe.errMsg != "" {
		span.SetStatus(codes.Error, pe.errMsg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// recordSpanEvent attaches back-pressure/resilience/cache/rate-limit events
// as span events on the innermost active span for the correlation ID: the
// current middleware span if one is in flight, otherwise the command span.
func (l *OTelEventListener) recordSpanEvent(evt *events.Event) {
	attrs := make([]attribute.KeyValue, 0, len(evt.Properties))
	for k, v := range evt.Properties {
		attrs = append(attrs, anyAttribute(k, v))
	}

	l.mu.Lock()
	var target trace.Span
	for key, entry := range l.middleware {
		if hasPrefix(key, evt.CorrelationID+":") {
			target = entry.span
			break
		}
	}
	if target == nil {
		if entry, ok := l.commands[evt.CorrelationID]; ok {
			target = entry.span
		}
	}
	l.mu.Unlock()

	if target != nil {
		target.AddEvent(string(evt.Name), trace.WithAttributes(attrs...))
	}
}

func anyAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
