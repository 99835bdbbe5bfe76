// Package common defines shared constants and sentinel errors used across
// the ips server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// Storage errors.
	ErrorBlobMissing = errors.New("blob missing")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Unwrap() error { return ErrorValidation }

// Invalid returns an error matching ErrorValidation whose text is safe to
// show to API clients.
func Invalid(msg string) error {
	return &validationError{msg: msg}
}
