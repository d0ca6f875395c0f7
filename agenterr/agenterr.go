// Package agenterr provides the structured failure taxonomy used across the
// runtime. Errors are tagged with a Kind so
// callers can decide retry/escalation policy without string matching, while
// still composing with errors.Is/errors.As through Cause.
package agenterr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of a small, stable set of categories.
type Kind string

const (
	// KindToolError indicates a tool returned a failure result.
	KindToolError Kind = "tool_error"
	// KindTimeout indicates a middleware, tool, or LLM call exceeded its
	// deadline.
	KindTimeout Kind = "timeout"
	// KindValidationFailed indicates a worker output failed verification.
	KindValidationFailed Kind = "validation_failed"
	// KindStuck indicates the loop detector tripped with no progress.
	KindStuck Kind = "stuck"
	// KindPolicyDenied indicates a tool permission or budget check denied
	// the operation; never retryable.
	KindPolicyDenied Kind = "policy_denied"
	// KindUnknown indicates an unexpected exception that should be
	// investigated rather than auto-retried.
	KindUnknown Kind = "unknown"
)

// Retryable reports the default retry policy for a Kind.
// validation_failed is retryable only after reformulation, which callers
// model explicitly by retrying with an injected note rather than relying on
// this default.
func (k Kind) Retryable() bool {
	switch k {
	case KindToolError, KindTimeout, KindStuck, KindValidationFailed:
		return true
	case KindPolicyDenied, KindUnknown:
		return false
	default:
		return false
	}
}

// Error is a structured failure carrying a stable Kind plus an optional
// causal chain. It implements error, Unwrap, and supports errors.Is/As via
// the wrapped Cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = string(kind)
	}
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the causal chain to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// As reports whether err (or any error in its chain) is an *Error and, if
// so, returns it. It is a thin convenience wrapper over errors.As.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it wraps an *Error, or KindUnknown
// otherwise. Useful for classifying arbitrary errors returned by tools or
// LLM clients that were not constructed through this package.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}
