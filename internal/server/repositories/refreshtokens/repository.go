// Package refreshtokens stores the opaque refresh tokens issued by the
// embedded auth provider.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/idgate/internal/server/models"
)

// Repository issues and consumes refresh tokens. A token can be consumed
// at most once.
type Repository interface {
	Create(ctx context.Context, userID, token string, expiresAt time.Time) error

	// Consume deletes the token and returns what it pointed at, or
	// common.ErrorNotFound if it was never issued or already used.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)
}
