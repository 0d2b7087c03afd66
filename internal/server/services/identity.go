// Package services holds the idgate business logic: account id allocation,
// session correlation, credential mirroring and the signup/login flows that
// tie them to the auth provider.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/logging"
	"github.com/dmitrijs2005/idgate/internal/retryx"
)

// Account ids are 10-digit decimals without a leading zero.
const (
	AccountIDMin = 1_000_000_000
	AccountIDMax = 10_000_000_000 // exclusive

	DefaultAllocationAttempts = 10
)

// IDGenerator produces a candidate account id.
type IDGenerator func() (string, error)

// RandomAccountID draws uniformly from [AccountIDMin, AccountIDMax) using
// crypto/rand.
func RandomAccountID() (string, error) {
	n, err := common.RandInt64Range(AccountIDMin, AccountIDMax)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

type idChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// Allocator picks account ids that are not in use at the time of the check.
// The check is advisory: callers must still treat a primary key violation
// on insert as a collision and allocate again.
type Allocator struct {
	accounts idChecker
	generate IDGenerator
	attempts uint64
	log      logging.Logger
}

func NewAllocator(accounts idChecker, log logging.Logger) *Allocator {
	return &Allocator{
		accounts: accounts,
		generate: RandomAccountID,
		attempts: DefaultAllocationAttempts,
		log:      log,
	}
}

// WithGenerator replaces the candidate source. Intended for tests.
func (a *Allocator) WithGenerator(g IDGenerator) *Allocator {
	a.generate = g
	return a
}

// Allocate returns a candidate id absent from the registry. Taken ids and
// lookup failures both consume an attempt; when the budget is spent it
// returns common.ErrAllocationExhausted.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	var id string
	err := retryx.Do(ctx, a.attempts, 0, func(ctx context.Context, attempt int) error {
		candidate, err := a.generate()
		if err != nil {
			return retryx.Retryable(fmt.Errorf("generate: %w", err))
		}
		taken, err := a.accounts.ExistsByID(ctx, candidate)
		if err != nil {
			a.log.Warn(ctx, "account id lookup failed", "attempt", attempt, "error", err)
			return retryx.Retryable(err)
		}
		if taken {
			a.log.Debug(ctx, "account id taken", "attempt", attempt)
			return retryx.Retryable(common.ErrIDConflict)
		}
		id = candidate
		return nil
	})
	if err != nil {
		if errors.Is(err, retryx.ErrExhausted) {
			return "", fmt.Errorf("%w: %w", common.ErrAllocationExhausted, err)
		}
		return "", err
	}
	return id, nil
}
