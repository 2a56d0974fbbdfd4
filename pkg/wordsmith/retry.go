package wordsmith

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy wraps an atomic store call with bounded exponential backoff.
// Only ErrStoreConflict is retried; every other error is surfaced
// immediately. After MaxAttempts the last conflict is wrapped in
// ErrCreditSystemUnavailable.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first
	// (default: 3)
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt; attempt n waits
	// BaseDelay * 2^(n-1) (default: 50ms)
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the standard contention policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 50 * time.Millisecond
	}
	return p
}

// Do runs fn, retrying transient store conflicts. The backoff sleep honors
// context cancellation.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	p = p.withDefaults()

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrStoreConflict) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.BaseDelay << (attempt - 1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %d attempts exhausted: %v", ErrCreditSystemUnavailable, p.MaxAttempts, err)
}
