package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vncsmyrnk/places/internal/core/domain"
)

// ErrConflict marks a transaction attempt that lost an optimistic
// concurrency race. Store adapters wrap backend conflict errors with it.
var ErrConflict = errors.New("write conflict")

const DefaultMaxAttempts = 5

type RetryPolicy struct {
	MaxAttempts int
	// NewBackOff builds the wait schedule for one transaction. Nil means
	// exponential backoff starting at 5ms.
	NewBackOff func() backoff.BackOff
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts}
}

// ImmediateRetryPolicy retries conflicts without waiting.
func ImmediateRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		NewBackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	if p.NewBackOff != nil {
		return p.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

// Run calls attempt until it succeeds, returns an error other than
// ErrConflict, or the attempts are used up. Exhaustion is reported as
// domain.ErrTransactionAborted.
func (p RetryPolicy) Run(ctx context.Context, attempt func(ctx context.Context, n int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(maxAttempts-1)), ctx)

	n := 0
	err := backoff.Retry(func() error {
		n++
		err := attempt(ctx, n)
		if err == nil || errors.Is(err, ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: gave up after %d attempts: %w", domain.ErrTransactionAborted, n, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTransactionAborted, err)
	}
	return err
}
