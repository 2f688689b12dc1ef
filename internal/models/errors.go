package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures across the platform. Handlers map kinds to
// HTTP statuses; services attach kinds close to where the failure is
// understood.
type ErrorKind string

const (
	ErrValidationFailed     ErrorKind = "ValidationFailed"
	ErrAuthenticationFailed ErrorKind = "AuthenticationFailed"
	ErrAuthorizationDenied  ErrorKind = "AuthorizationDenied"
	ErrNotFound             ErrorKind = "NotFound"
	ErrConflict             ErrorKind = "Conflict"
	ErrPreconditionFailed   ErrorKind = "PreconditionFailed"
	ErrRateLimited          ErrorKind = "RateLimited"
	ErrDegradedDependency   ErrorKind = "DegradedDependency"
	ErrStorageError         ErrorKind = "StorageError"
	ErrInternal             ErrorKind = "Internal"
)

// AppError carries a kind, a human message, optional structured details, and
// an optional wrapped cause.
type AppError struct {
	Kind    ErrorKind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail attaches one detail entry and returns the error for chaining.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// E builds an AppError of the given kind.
func E(kind ErrorKind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

// Ef builds an AppError with a formatted message.
func Ef(kind ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an AppError around a cause.
func Wrap(kind ErrorKind, msg string, err error) *AppError {
	return &AppError{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the kind from an error chain; plain errors are Internal.
func KindOf(err error) ErrorKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus is the total kind → status mapping used by the error middleware.
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case ErrValidationFailed:
		return http.StatusBadRequest
	case ErrAuthenticationFailed:
		return http.StatusUnauthorized
	case ErrAuthorizationDenied:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrPreconditionFailed:
		return http.StatusPreconditionFailed
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrDegradedDependency:
		return http.StatusServiceUnavailable
	case ErrStorageError, ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
