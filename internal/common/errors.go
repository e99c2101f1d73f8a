// Package common holds the error taxonomy shared by services and handlers
// and the JSON envelope every endpoint responds with.
package common

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation marks a missing or malformed required field.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized marks a missing, invalid or expired credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden marks an authenticated caller lacking admin rights or ownership.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks an unknown identifier.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a write whose target key already exists.
	ErrConflict = errors.New("conflict")
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
