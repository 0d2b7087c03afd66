package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/dbx"
	"github.com/dmitrijs2005/idgate/internal/server/models"
)

// PrimaryKeyConstraint is the constraint violated by a memorable id collision.
const PrimaryKeyConstraint = "accounts_pkey"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, account *models.Account) error {
	logs, err := json.Marshal(account.Logs)
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	metadata, err := json.Marshal(account.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query :=
		`INSERT INTO accounts (id, user_id, username, logs, metadata)
		 VALUES ($1, $2, $3, $4::jsonb, $5::jsonb)
		 RETURNING created_at`

	err = r.db.QueryRowContext(ctx, query,
		account.ID, account.UserID, account.Username, string(logs), string(metadata)).Scan(&account.CreatedAt)
	if err != nil {
		if constraint, ok := dbx.UniqueConstraint(err); ok {
			if constraint == PrimaryKeyConstraint {
				return fmt.Errorf("%w: %s", common.ErrIDConflict, account.ID)
			}
			return fmt.Errorf("%w: %s", common.ErrorConflict, constraint)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByUserID(ctx context.Context, userID string) (*models.Account, error) {
	query :=
		`SELECT id, user_id, username, logs, metadata, created_at FROM accounts
		 WHERE user_id = $1`

	var (
		account        models.Account
		logs, metadata []byte
	)
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&account.ID, &account.UserID, &account.Username, &logs, &metadata, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(logs, &account.Logs); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}
	if err := json.Unmarshal(metadata, &account.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &account, nil
}

func (r *PostgresRepository) AppendLog(ctx context.Context, userID string, entry models.LogEntry) error {
	payload, err := json.Marshal([]models.LogEntry{entry})
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}

	query :=
		`UPDATE accounts SET logs = logs || $2::jsonb
		 WHERE user_id = $1`

	res, err := r.db.ExecContext(ctx, query, userID, string(payload))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
