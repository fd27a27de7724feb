package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted wraps the last error once every attempt has failed
var ErrExhausted = errors.New("retries exhausted")

// Policy is a bounded fixed-delay retry policy
type Policy struct {
	MaxAttempts int              // Total attempts including the first; values < 1 mean 1
	Delay       time.Duration    // Wait between attempts
	Retryable   func(error) bool // nil means IsRetryable
}

// NewPolicy creates a policy that retries transient failures
func NewPolicy(maxAttempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Retryable:   IsRetryable,
	}
}

// NoRetry returns a single-attempt policy
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// Do runs op until it succeeds, fails with a non-retryable error, or attempts run out.
// It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt - 1, interrupted(ctxErr, err)
		}

		err = op(ctx)
		if err == nil {
			return attempt, nil
		}
		if !retryable(err) {
			return attempt, err
		}
		if attempt == maxAttempts {
			if maxAttempts > 1 {
				return attempt, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
			}
			return attempt, err
		}
		if waitErr := wait(ctx, p.Delay); waitErr != nil {
			return attempt, interrupted(waitErr, err)
		}
	}
	return maxAttempts, err
}

// interrupted keeps the context error first so Classify reports the cancellation
func interrupted(ctxErr, last error) error {
	if last == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (last error: %w)", ctxErr, last)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
