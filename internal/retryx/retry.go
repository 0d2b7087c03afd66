// Package retryx is a bounded-retry combinator over sethvargo/go-retry.
// It is shared by every collision-prone generation task (account ids today).
package retryx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrExhausted is returned (wrapping the last cause) once the attempt budget
// is spent on retryable failures.
var ErrExhausted = errors.New("retry budget exhausted")

// Func is one attempt. The attempt number starts at 1.
type Func func(ctx context.Context, attempt int) error

type transient struct{ err error }

func (t *transient) Error() string { return t.err.Error() }
func (t *transient) Unwrap() error { return t.err }

// Retryable marks err as transient so Do will try again.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &transient{err: err}
}

// Do runs fn at most attempts times, sleeping backoff between tries (zero
// means retry immediately). A nil return or an error not marked with
// Retryable ends the loop at once.
func Do(ctx context.Context, attempts uint64, backoff time.Duration, fn Func) error {
	if attempts == 0 {
		return fmt.Errorf("%w: zero attempts", ErrExhausted)
	}

	var (
		attempt int
		last    error
	)
	err := retry.Do(ctx, retry.WithMaxRetries(attempts-1, constant(backoff)), func(ctx context.Context) error {
		attempt++
		err := fn(ctx, attempt)

		var t *transient
		if errors.As(err, &t) {
			last = t.err
			return retry.RetryableError(t.err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if last != nil && errors.Is(err, last) && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, last)
	}
	return err
}

func constant(d time.Duration) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		return d, false
	})
}
