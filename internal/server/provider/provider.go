// Package provider defines the contract of the external authentication
// provider that owns email/password identities.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Identity is what a successful sign-up or sign-in yields. Tokens may be
// empty when the provider requires email confirmation before issuing a
// session.
type Identity struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// Provider is the black box in front of which idgate runs.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (*Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	// Refresh exchanges a refresh token for a new token pair. A refresh
	// token is single use.
	Refresh(ctx context.Context, refreshToken string) (*Identity, error)
	// DeleteUser removes a provider user. Used to roll back a sign-up whose
	// account row could not be written.
	DeleteUser(ctx context.Context, userID string) error
}

// Error is a failure reported by the provider. Message is safe to show to
// the client. Status is the provider's HTTP status, or 0 when the provider
// could not be reached.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth provider (%d): %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("auth provider (%d): %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Unavailable reports a transport failure rather than a provider verdict.
func (e *Error) Unavailable() bool { return e.Status == 0 }

// AsError extracts a provider error from err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
