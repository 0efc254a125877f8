package telemetry

import "regexp"

// traceparentRe validates the W3C Trace Context traceparent header format:
// version-trace_id-parent_id-trace_flags (e.g., 00-<32 hex>-<16 hex>-<2 hex>).
var traceparentRe = regexp.MustCompile(`^[0-9a-f]{2}-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`)

// TraceContext carries the inbound trace identifiers an invocation's spans
// should be parented under, propagated to EventConverter.ConvertInvocationWithParent
// by the caller that owns the transport (this package has no transport of
// its own — no wire protocol/CLI surface is in scope here).
type TraceContext struct {
	Traceparent string // W3C traceparent header
	Tracestate  string // W3C tracestate header
	XRayTraceID string // AWS X-Ray X-Amzn-Trace-Id header
}
