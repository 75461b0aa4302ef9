package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies expected business outcomes. The values double as the
// wire error codes in the unified error payload.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
	KindConflict     ErrorKind = "CONFLICT"
	KindValidation   ErrorKind = "VALIDATION_ERROR"
	KindInvalidToken ErrorKind = "INVALID_TOKEN"
	KindDependency   ErrorKind = "DEPENDENCY_ERROR"
)

// Error is the structured outcome for expected failures. MessageKey is a
// stable catalog key; rendering the user-visible string is the caller's job.
type Error struct {
	Kind       ErrorKind
	MessageKey string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.MessageKey, e.cause)
	}
	return fmt.Sprintf("%s (%s)", e.Kind, e.MessageKey)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds an expected-outcome error of the given kind.
func NewError(kind ErrorKind, messageKey string) *Error {
	return &Error{Kind: kind, MessageKey: messageKey}
}

// WrapError attaches an underlying cause, preserved for logs only.
func WrapError(kind ErrorKind, messageKey string, cause error) *Error {
	return &Error{Kind: kind, MessageKey: messageKey, cause: cause}
}

// KindOf extracts the kind from err, or "" when err is not a core error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

func httpStatusFor(kind ErrorKind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindValidation, KindInvalidToken:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
