// Package accounts declares and implements the account registry: durable
// accounts keyed by the memorable id and linked 1:1 to a provider user id.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/idgate/internal/server/models"
)

// Repository is the account registry contract. Uniqueness of id, username
// and user_id is enforced by the store; callers' pre-checks are an
// optimisation only.
type Repository interface {
	// UsernameExists reports whether an account already uses username.
	UsernameExists(ctx context.Context, username string) (bool, error)

	// ExistsByID reports whether the memorable id is taken.
	ExistsByID(ctx context.Context, id string) (bool, error)

	// Insert stores a new account. It returns common.ErrIDConflict when the
	// id collides and common.ErrorConflict when username or user_id does.
	Insert(ctx context.Context, account *models.Account) error

	// FindByUserID returns the account linked to a provider user id or
	// common.ErrorNotFound.
	FindByUserID(ctx context.Context, userID string) (*models.Account, error)

	// AppendLog atomically appends entry to the account's logs. It returns
	// common.ErrorNotFound when no account is linked to userID.
	AppendLog(ctx context.Context, userID string, entry models.LogEntry) error
}
