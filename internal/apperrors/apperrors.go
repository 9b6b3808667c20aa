// Package apperrors centralizes the domain error taxonomy and its mapping to
// HTTP status codes, keeping the service layer free of transport concerns.
package apperrors

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"
)

var (
	// ErrNotFound: session or pairing absent; clients should stop polling the id.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: caller is not a participant. Fail-closed, never leaks
	// whether the resource exists.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict: the pairing was already resolved by another actor.
	ErrConflict = errors.New("already resolved")
	// ErrInvalidArgument: malformed id or an invalid enum value.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Invalid wraps ErrInvalidArgument with a caller-facing message.
func Invalid(msg string) error {
	return &wrapped{sentinel: ErrInvalidArgument, msg: msg}
}

// Forbidden wraps ErrForbidden with a caller-facing message.
func Forbidden(msg string) error {
	return &wrapped{sentinel: ErrForbidden, msg: msg}
}

type wrapped struct {
	sentinel error
	msg      string
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.sentinel }

// HTTPStatus converts a service error into an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
