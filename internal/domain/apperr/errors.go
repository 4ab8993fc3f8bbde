// Package apperr holds the error taxonomy shared by every layer. Callers match
// on kind with errors.Is against the exported sentinels, so wrapped causes stay
// reachable through Unwrap.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for user-facing messaging and retry decisions.
type Kind string

const (
	KindValidation         Kind = "validation_failed"
	KindNotFound           Kind = "not_found"
	KindAccessDenied       Kind = "access_denied"
	KindServiceUnavailable Kind = "service_unavailable"
	KindTimeout            Kind = "timeout"
	KindRateLimited        Kind = "rate_limited"
	KindInvalidRequest     Kind = "invalid_request"
	KindNetwork            Kind = "network_error"
	KindAnalysisFailed     Kind = "analysis_failed"
	KindInternal           Kind = "internal"
)

// Error is the structured error carried across layers.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds field-level messages for validation failures.
	Fields map[string]string
	Err    error
}

// Sentinels for errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrAccessDenied       = &Error{Kind: KindAccessDenied}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
	ErrNetwork            = &Error{Kind: KindNetwork}
	ErrAnalysisFailed     = &Error{Kind: KindAnalysisFailed}
	ErrInternal           = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so that errors.Is(err, ErrNotFound) works for any
// *Error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to a lower-level cause.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotFound is shorthand for a missing entity.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

// AccessDenied is shorthand for a resolver rejection.
func AccessDenied(what string) *Error {
	return &Error{Kind: KindAccessDenied, Message: "Access denied to this " + what}
}

// Validation builds a validation failure with field-level messages.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Fields: fields}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of the first *Error in the chain.
// Errors outside the taxonomy never leak their text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		if e.Message != "" {
			return e.Message
		}
		return string(e.Kind)
	}
	return "Internal server error"
}

// Retryable reports whether a retry is conceptually sensible. Only timeouts
// and unavailability of the analysis engine qualify.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindServiceUnavailable:
		return true
	}
	return false
}
