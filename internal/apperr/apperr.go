// Package apperr defines the error taxonomy shared by the ordering engine.
// Handlers map each kind to an HTTP status at the transport edge, so the
// domain packages never import echo or net/http.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an engine error.
type Kind string

const (
	KindValidation           Kind = "VALIDATION_ERROR"
	KindNotFound             Kind = "NOT_FOUND"
	KindAccessDenied         Kind = "ACCESS_DENIED"
	KindInvalidTransition    Kind = "INVALID_TRANSITION"
	KindOrderingWindowClosed Kind = "ORDERING_WINDOW_CLOSED"
	KindInvalidItem          Kind = "INVALID_ITEM"
	KindConflict             Kind = "CONFLICT"
	KindInternal             Kind = "INTERNAL"
)

// Error is a structured engine error. Fields carries machine-readable
// details (offending categories, current/requested status, failed window
// rule) so the caller can render a specific message.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithField attaches a detail field and returns the error for chaining.
func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// HTTPStatus maps an error to the HTTP status the transport should return.
func HTTPStatus(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}

	switch ae.Kind {
	case KindValidation, KindInvalidItem:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindInvalidTransition, KindConflict:
		return http.StatusConflict
	case KindOrderingWindowClosed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
