package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, accountID, payload string) error {
	query :=
		`INSERT INTO encrypted_credentials (account_id, payload)
		 VALUES ($1, $2)
		 ON CONFLICT (account_id) DO UPDATE
		 SET payload = EXCLUDED.payload, updated_at = now()`

	if _, err := r.db.ExecContext(ctx, query, accountID, payload); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID string) (string, error) {
	query := `SELECT payload FROM encrypted_credentials WHERE account_id = $1`

	var payload string
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return payload, nil
}
