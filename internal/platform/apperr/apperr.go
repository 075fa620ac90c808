// Package apperr defines the error kinds every core operation reports.
//
// Each error carries a Kind (used for HTTP status mapping), a stable Code
// (safe to show to clients) and a short human Message. Infrastructure causes
// are kept in Err for logging and are never rendered to users.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindAuthFailure         Kind = "auth_failure"
	KindAuthorizationDenied Kind = "authorization_denied"
	KindConflict            Kind = "conflict"
	KindInvalidTransition   Kind = "invalid_transition"
	KindNotEligible         Kind = "not_eligible"
	KindNotFound            Kind = "not_found"
	KindValidation          Kind = "validation"
	KindPersistence         Kind = "persistence"
)

// GenericPersistenceMessage is what clients see for any backend failure.
const GenericPersistenceMessage = "an internal error occurred, please try again later"

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and code, so a sentinel still
// matches after Wrap has attached a cause to it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// New returns a sentinel error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches cause to a copy of sentinel. errors.Is matches the result
// against both.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: cause}
}

// Validation builds a one-off validation error for a malformed or missing field.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: "validation_error", Message: message}
}

// NotFound builds a one-off not-found error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: message}
}

// Persistence wraps a backend failure. op names the failed operation and
// ends up in logs only.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Code: "persistence_error", Message: op, Err: err}
}

// KindOf reports the kind of err. Errors that did not originate here are
// treated as persistence failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuthFailure:
		return http.StatusUnauthorized
	case KindAuthorizationDenied:
		return http.StatusForbidden
	case KindConflict, KindInvalidTransition:
		return http.StatusConflict
	case KindNotEligible:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the code and message that may be shown to a client.
func Public(err error) (code, message string) {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindPersistence {
		return "internal_error", GenericPersistenceMessage
	}
	return e.Code, e.Message
}
