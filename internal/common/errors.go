// Package common defines shared constants and sentinel errors used across
// the idgate server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")
	// ErrIDConflict is a primary key collision on the memorable account id.
	// It is retryable with a fresh candidate.
	ErrIDConflict = errors.New("account id conflict")

	// Service-level errors.
	ErrorValidation    = errors.New("validation error")
	ErrUsernameTaken   = errors.New("username is already taken")
	ErrAccountNotFound = errors.New("account not found")

	// Identity allocation and session bootstrap.
	ErrAllocationExhausted = errors.New("account id allocation exhausted")
	ErrSessionCreateFailed = errors.New("session create failed")

	// Storage failures surfaced to the HTTP layer as 500.
	ErrStorage = errors.New("storage error")

	// Token lifecycle errors (embedded provider).
	ErrInvalidToken        = errors.New("invalid token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Configuration.
	ErrMissingConfig = errors.New("missing required configuration")
)
