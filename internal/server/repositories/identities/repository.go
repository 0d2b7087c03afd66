// Package identities persists users of the embedded auth provider.
package identities

import (
	"context"

	"github.com/dmitrijs2005/idgate/internal/server/models"
)

type Repository interface {
	// Create inserts the identity; a taken email is common.ErrorConflict.
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	// Delete removes the identity and, by cascade, its refresh tokens.
	Delete(ctx context.Context, id string) error
}
