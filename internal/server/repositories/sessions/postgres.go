package sessions

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	var ip string
	if len(s.IPAddresses) > 0 {
		ip = s.IPAddresses[0]
	}

	query :=
		`INSERT INTO sessions (id, ip_addresses, user_agent)
		 VALUES ($1, ARRAY[$2]::text[], $3)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, s.ID, ip, s.UserAgent).Scan(&s.CreatedAt)
	if err != nil {
		if _, ok := dbx.UniqueConstraint(err); ok {
			return fmt.Errorf("%w: session %s", common.ErrorConflict, s.ID)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// AppendIP is a single conditional UPDATE so concurrent appends of the same
// address cannot produce duplicates.
func (r *PostgresRepository) AppendIP(ctx context.Context, id, ip string) error {
	query :=
		`UPDATE sessions SET ip_addresses = CASE
		   WHEN $2 = ANY(ip_addresses) THEN ip_addresses
		   ELSE array_append(ip_addresses, $2)
		 END
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, ip)
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

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query :=
		`SELECT id, array_to_json(ip_addresses)::text, user_agent, created_at
		 FROM sessions WHERE id = $1`

	var (
		s   models.Session
		ips string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &ips, &s.UserAgent, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal([]byte(ips), &s.IPAddresses); err != nil {
		return nil, fmt.Errorf("decode ip addresses: %w", err)
	}
	return &s, nil
}
