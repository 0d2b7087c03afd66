// Package sessions persists the anonymous client sessions correlated through
// the sessionId cookie.
package sessions

import (
	"context"

	"github.com/dmitrijs2005/idgate/internal/server/models"
)

// Repository stores sessions. The IP address list of a session only grows
// and never holds duplicates.
type Repository interface {
	// Create inserts a new session seeded with a single IP address.
	// An id collision is reported as common.ErrorConflict.
	Create(ctx context.Context, s *models.Session) error

	// AppendIP adds ip to the session's address set. Appending an address
	// that is already present is a no-op. Returns common.ErrorNotFound when
	// the session does not exist.
	AppendIP(ctx context.Context, id, ip string) error

	// Get returns the session or common.ErrorNotFound. Neither flow reads
	// sessions back; Get exists for inspection by tests and operators.
	Get(ctx context.Context, id string) (*models.Session, error)
}
