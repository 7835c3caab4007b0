// Package common defines shared constants and sentinel errors used across
// the service layers of authkeeper. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal       = errors.New("internal error")
	ErrorUnauthorized   = errors.New("unauthorized")
	ErrorInvalidRequest = errors.New("invalid request")

	// ErrPersistence marks a failed or timed-out call to the durable store
	// or the cache. It must never be read as "token revoked".
	ErrPersistence = errors.New("persistence error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrInactiveAccount  = errors.New("account is not active")
	ErrUserExists       = errors.New("user already exists")
	ErrInvalidKey       = errors.New("invalid or expired key")
	ErrFileNotSupported = errors.New("file extension not allowed")
)
