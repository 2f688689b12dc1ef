package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_KindOf(t *testing.T) {
	ae := E(ErrNotFound, "role not found")
	assert.Equal(t, ErrNotFound, KindOf(ae))

	wrapped := fmt.Errorf("loading role: %w", ae)
	assert.Equal(t, ErrNotFound, KindOf(wrapped))

	assert.Equal(t, ErrInternal, KindOf(errors.New("plain")))
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	ae := Wrap(ErrStorageError, "querying users", cause)
	assert.ErrorIs(t, ae, cause)
	assert.Contains(t, ae.Error(), "StorageError")
	assert.Contains(t, ae.Error(), "connection refused")
}

func TestHTTPStatus_TotalMapping(t *testing.T) {
	expect := map[ErrorKind]int{
		ErrValidationFailed:     http.StatusBadRequest,
		ErrAuthenticationFailed: http.StatusUnauthorized,
		ErrAuthorizationDenied:  http.StatusForbidden,
		ErrNotFound:             http.StatusNotFound,
		ErrConflict:             http.StatusConflict,
		ErrPreconditionFailed:   http.StatusPreconditionFailed,
		ErrRateLimited:          http.StatusTooManyRequests,
		ErrDegradedDependency:   http.StatusServiceUnavailable,
		ErrStorageError:         http.StatusInternalServerError,
		ErrInternal:             http.StatusInternalServerError,
	}
	for kind, status := range expect {
		assert.Equal(t, status, HTTPStatus(kind), "kind %s", kind)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(ErrorKind("unheard-of")))
}

func TestIsKind(t *testing.T) {
	ae := Ef(ErrConflict, "role %q already exists", "viewer")
	assert.True(t, IsKind(ae, ErrConflict))
	assert.False(t, IsKind(ae, ErrNotFound))
	assert.False(t, IsKind(nil, ErrConflict))
}
