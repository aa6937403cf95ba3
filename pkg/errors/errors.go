// Package errors defines the sentinel errors shared by the corpus engine and
// the HTTP layer, plus an AppError wrapper that carries a user-facing message
// and an HTTP status code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("duplicate document")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrCacheUnavailable   = errors.New("cache unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Validation returns an AppError wrapping ErrValidation with a 400 status.
func Validation(format string, args ...any) *AppError {
	return Newf(ErrValidation, http.StatusBadRequest, format, args...)
}

// NotFound returns an AppError wrapping ErrNotFound with a 404 status.
func NotFound(format string, args ...any) *AppError {
	return Newf(ErrNotFound, http.StatusNotFound, format, args...)
}

// Duplicate returns an AppError wrapping ErrDuplicate with a 409 status.
func Duplicate(format string, args ...any) *AppError {
	return Newf(ErrDuplicate, http.StatusConflict, format, args...)
}

// Invariant returns an AppError wrapping ErrInvariantViolation. These signal
// a coordination bug and are never expected from valid input.
func Invariant(format string, args ...any) *AppError {
	return Newf(ErrInvariantViolation, http.StatusInternalServerError, format, args...)
}

// Message returns the user-facing message of err if it is an AppError, and
// fallback otherwise.
func Message(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrCacheUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
