// Package apperr defines the error taxonomy shared by all Pariksha services.
//
// Four kinds cover every caller-visible failure: NotFound, AlreadyExists,
// ValidationFailed and PermissionDenied. Anything else is an internal error
// and surfaces as HTTP 500 at the API boundary. Authorization predicates in
// pkg/rbac never return these; guard functions and services do.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound         = errors.New("resource not found")
	ErrAlreadyExists    = errors.New("resource already exists")
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
)

// Kind is the machine-readable error code returned to API clients.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindAlreadyExists    Kind = "ALREADY_EXISTS"
	KindValidation       Kind = "VALIDATION_FAILED"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
)

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports that the requested resource does not exist.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Err: ErrNotFound}
}

// NotFoundf is NotFound with formatting.
func NotFoundf(format string, args ...interface{}) *Error {
	return NotFound(fmt.Sprintf(format, args...))
}

// AlreadyExists reports a uniqueness conflict.
func AlreadyExists(msg string) *Error {
	return &Error{Kind: KindAlreadyExists, Message: msg, Err: ErrAlreadyExists}
}

// AlreadyExistsf is AlreadyExists with formatting.
func AlreadyExistsf(format string, args ...interface{}) *Error {
	return AlreadyExists(fmt.Sprintf(format, args...))
}

// Validation reports rejected input or state (bad credentials, inactive
// account, malformed token, inconsistent scope fields).
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: ErrValidation}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...interface{}) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// PermissionDenied reports that the caller is authenticated but not allowed.
func PermissionDenied(msg string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: msg, Err: ErrPermissionDenied}
}

// PermissionDeniedf is PermissionDenied with formatting.
func PermissionDeniedf(format string, args ...interface{}) *Error {
	return PermissionDenied(fmt.Sprintf(format, args...))
}

// Wrap attaches a cause while keeping the kind checkable with errors.Is.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: fmt.Errorf("%w: %w", sentinelFor(kind), err)}
}

func sentinelFor(kind Kind) error {
	switch kind {
	case KindNotFound:
		return ErrNotFound
	case KindAlreadyExists:
		return ErrAlreadyExists
	case KindValidation:
		return ErrValidation
	case KindPermissionDenied:
		return ErrPermissionDenied
	default:
		return errors.New(string(kind))
	}
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAlreadyExists reports whether err is an AlreadyExists error.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsValidation reports whether err is a ValidationFailed error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsPermissionDenied reports whether err is a PermissionDenied error.
func IsPermissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }

// HTTPStatus maps an error to its API status code. Unrecognized errors map
// to 500 so internals are never leaked with a misleading status.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsAlreadyExists(err):
		return http.StatusConflict
	case IsValidation(err):
		return http.StatusUnprocessableEntity
	case IsPermissionDenied(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the machine-readable kind for an error, or "INTERNAL_ERROR"
// when the error is not part of the taxonomy.
func CodeOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case IsNotFound(err):
		return KindNotFound
	case IsAlreadyExists(err):
		return KindAlreadyExists
	case IsValidation(err):
		return KindValidation
	case IsPermissionDenied(err):
		return KindPermissionDenied
	}
	return "INTERNAL_ERROR"
}
