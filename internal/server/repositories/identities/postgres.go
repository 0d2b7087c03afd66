package identities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/dbx"
	"github.com/dmitrijs2005/idgate/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	query :=
		`INSERT INTO identities (id, email, password_hash, salt)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		identity.ID, identity.Email, identity.PasswordHash, identity.Salt).Scan(&identity.CreatedAt)
	if err != nil {
		if _, ok := dbx.UniqueConstraint(err); ok {
			return nil, fmt.Errorf("%w: email", common.ErrorConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return identity, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return r.get(ctx, "email", email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	return r.get(ctx, "id", id)
}

// get looks up a single identity by a unique column. column is never user input.
func (r *PostgresRepository) get(ctx context.Context, column, value string) (*models.Identity, error) {
	query :=
		`SELECT id, email, password_hash, salt, created_at FROM identities
		 WHERE ` + column + ` = $1`

	identity := &models.Identity{}
	err := r.db.QueryRowContext(ctx, query, value).
		Scan(&identity.ID, &identity.Email, &identity.PasswordHash, &identity.Salt, &identity.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return identity, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM identities WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
