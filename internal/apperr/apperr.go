// Package apperr holds the error kinds shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrAccessDenied         = errors.New("access denied: teacher is not assigned to this student")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrTooEarly             = errors.New("renewal is not available yet")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConflict             = errors.New("conflict")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// TooEarlyError is returned by manual renewal outside the renewal window.
type TooEarlyError struct {
	DaysRemaining int
}

func (e TooEarlyError) Error() string {
	return fmt.Sprintf("renewal is available within 7 days of the end date, %d days remaining", e.DaysRemaining)
}

func (e TooEarlyError) Unwrap() error { return ErrTooEarly }

// HTTPStatus maps an error to the status the API answers with.
// Anything unknown is an internal failure.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoActiveSubscription):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTooEarly):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError reports whether err is one of the known caller or business-rule kinds.
func IsClientError(err error) bool {
	s := HTTPStatus(err)
	return s >= 400 && s < 500
}
