// Package apperr defines the error kinds produced by the analysis pipeline and
// the single table that maps them to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	InternalError Kind = iota
	BadRequest
	UnsupportedMediaType
	PayloadTooLarge
	FingerprintError
	LookupFailed
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "BadRequest"
	case UnsupportedMediaType:
		return "UnsupportedMediaType"
	case PayloadTooLarge:
		return "PayloadTooLarge"
	case FingerprintError:
		return "FingerprintError"
	case LookupFailed:
		return "LookupFailed"
	default:
		return "InternalError"
	}
}

// HTTPStatus returns the status code an outbound response uses for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case BadRequest, UnsupportedMediaType:
		return http.StatusBadRequest
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified pipeline failure. Message is safe to show to callers;
// Err is the underlying cause and is meant for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// ServiceReported is set on LookupFailed errors that came from an explicit
	// "error" status in the lookup service's response rather than from transport.
	ServiceReported bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, &apperr.Error{Kind: apperr.LookupFailed}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// As extracts the *Error from err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf classifies err. Errors that carry no kind are InternalError.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return InternalError
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	if e, ok := As(err); ok && e.Message != "" {
		return e.Message
	}
	return "Internal server error"
}

// Cause returns the text of the underlying cause, or "" when there is none.
func Cause(err error) string {
	if e, ok := As(err); ok {
		if e.Err != nil {
			return e.Err.Error()
		}
		return ""
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
