// Package fault carries a typed error taxonomy for the tool API. Every error
// that can reach the HTTP boundary is tagged with a Kind at the site that
// detects it, so status mapping is an exhaustive switch instead of
// message-substring matching.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for HTTP status mapping.
type Kind int

const (
	// KindInternal is anything unclassified; callers see a generic message.
	KindInternal Kind = iota
	// KindValidation is caller input failing a documented rule.
	KindValidation
	// KindRateLimited is a quota rejection.
	KindRateLimited
	// KindUnavailable is an unconfigured or unreachable upstream service.
	KindUnavailable
	// KindTimeout is an operation exceeding its allotted time.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Error is a tagged error with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string // short token, e.g. "SERVICE_NOT_CONFIGURED"
	Message string // human-readable, safe to return to callers
	Err     error  // wrapped cause, may be nil, never sent to callers
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a tagged error with no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap tags an underlying error. The cause is kept for logging only.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Validation creates a caller-input error.
func Validation(message string) *Error {
	return New(KindValidation, "VALIDATION_FAILED", message)
}

// Unavailable creates an upstream-unavailable error.
func Unavailable(code, message string) *Error {
	return New(KindUnavailable, code, message)
}

// Timeout creates a timeout error.
func Timeout(message string) *Error {
	return New(KindTimeout, "TIMEOUT", message)
}

// KindOf extracts the Kind from err. Context deadline errors map to
// KindTimeout even when no tagging happened at the call site; everything
// else untagged is KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// CodeOf extracts the stable code token, or "INTERNAL_ERROR" for untagged
// errors (with "TIMEOUT" for bare deadline errors).
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}
	return "INTERNAL_ERROR"
}
