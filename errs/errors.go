// Package errs defines the stable error-kind taxonomy shared across the
// pipeline core and its resilience/rate-limit/cache/back-pressure
// components, so callers can branch on a component-agnostic Kind via
// errors.Is/errors.As instead of string-matching messages.
package errs

import "fmt"

// Kind identifies the category of failure, independent of which component
// raised it. Kinds are stable strings intended for observability (metrics
// labels, log fields) as well as programmatic dispatch.
type Kind string

const (
	KindHandlerNotFound       Kind = "handlerNotFound"
	KindExecutionFailed       Kind = "executionFailed"
	KindMiddlewareError       Kind = "middlewareError"
	KindValidation            Kind = "validation"
	KindAuthentication        Kind = "authentication"
	KindAuthorization         Kind = "authorization"
	KindRateLimitExceeded     Kind = "rateLimitExceeded"
	KindTimeout               Kind = "timeout"
	KindCancelled             Kind = "cancelled"
	KindRetryExhausted        Kind = "retryExhausted"
	KindCircuitBreakerOpen    Kind = "circuitBreakerOpen"
	KindBackPressureRejected  Kind = "backPressure.rejected"
	KindBackPressurePreempted Kind = "backPressure.preempted"
	KindBackPressureExhausted Kind = "backPressure.exhausted"
	KindCache                 Kind = "cache"
	KindEncryption            Kind = "encryption"
	KindConditionNotMet       Kind = "conditionNotMet"
	KindAllPipelinesFailed    Kind = "allPipelinesFailed"
	KindPipelineViolation     Kind = "pipelineViolation"
	KindMaxDepthExceeded      Kind = "maxDepthExceeded"
	KindConfig                Kind = "config"
)

// Error is the core's error value: a stable Kind for observability, a
// caller-facing Message distinct from any wrapped internal error, and an
// optional underlying cause reachable via errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, errs.New(errs.KindTimeout, "")) to test kind
// membership without caring about Message or Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error that wraps an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
