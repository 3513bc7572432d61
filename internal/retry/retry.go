// Package retry provides the single retry policy used at the content-fetcher
// and persistence boundaries: a fixed attempt ceiling with exponential
// backoff and a retryable-error predicate.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy parameterizes retries by attempt ceiling, base delay, and a
// predicate deciding which errors are worth retrying. The delay before
// attempt n is baseDelay * 2^(n-1).
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	retryable   func(error) bool
}

// NewPolicy creates a Policy. A nil retryable predicate retries every error.
func NewPolicy(maxAttempts int, baseDelay time.Duration, retryable func(error) bool) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Policy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		retryable:   retryable,
	}
}

// MaxAttempts returns the total attempt ceiling (first try included).
func (p Policy) MaxAttempts() int { return p.maxAttempts }

// BaseDelay returns the delay before the first retry.
func (p Policy) BaseDelay() time.Duration { return p.baseDelay }

// Do runs op, retrying failed attempts per the policy. Errors the predicate
// rejects are returned immediately without further attempts. The context
// cancels waiting between attempts.
func (p Policy) Do(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.retryable != nil && !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.baseDelay << uint(p.maxAttempts)
	b.MaxElapsedTime = 0

	limited := backoff.WithMaxRetries(backoff.WithContext(b, ctx), uint64(p.maxAttempts-1))
	return backoff.Retry(wrapped, limited)
}

// DoResult runs op, retrying per the policy, and returns its result.
func DoResult[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}
