// Package credentials stores mirrored credentials. Payloads are opaque
// "<ivHex>:<cipherHex>" tokens produced by cryptox; this layer never sees
// plaintext.
package credentials

import "context"

// Repository keeps at most one payload per account id.
type Repository interface {
	// Upsert inserts or replaces the payload for accountID.
	Upsert(ctx context.Context, accountID, payload string) error

	// Get returns the stored payload or common.ErrorNotFound.
	Get(ctx context.Context, accountID string) (string, error)
}
