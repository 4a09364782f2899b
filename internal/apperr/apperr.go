// Package apperr defines the typed errors shared by services and handlers.
// Services return *Error values; a single place in the handler layer maps
// each Kind onto an HTTP status so controllers never pick status codes
// themselves. Side-channel failures (cache, email, emits) are logged by
// their owners and never surface through this package.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into the failure taxonomy understood by the
// HTTP layer.
type Kind int

const (
	KindValidation   Kind = iota // malformed or out-of-range input
	KindUnauthorized             // missing/expired credentials, locked account
	KindForbidden                // authenticated but not allowed
	KindNotFound                 // entity does not exist
	KindRateLimited              // too many attempts
	KindConflict                 // duplicate username/email/phone
	KindUpstream                 // provider failure (OTP, email, storage)
	KindInternal                 // unexpected
)

// Error carries a kind, a stable machine code and a human message.
type Error struct {
	Kind    Kind
	Code    string // stable identifier, e.g. "RATE_LIMIT_EXCEEDED"
	Message string
	Err     error // wrapped cause, optional
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind to an HTTP status code. Conflict intentionally maps
// to 400, matching the public API contract for duplicate identities.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Constructors for the common kinds.

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func Unauthorized(code, msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: msg}
}

func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Code: "RATE_LIMIT_EXCEEDED", Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func Upstream(msg string, cause error) *Error {
	return &Error{Kind: KindUpstream, Code: "UPSTREAM_ERROR", Message: msg, Err: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "internal error", Err: cause}
}

// From extracts an *Error from err, wrapping unknown errors as internal.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == k
}
