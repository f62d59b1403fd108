package fetch

import (
	"context"
	"time"

	"github.com/downlocal/downlocal/pkg/log"
	"github.com/downlocal/downlocal/pkg/types"
)

// DefaultMaxAttempts is the number of pull attempts made for transient
// failures when no override is configured.
const DefaultMaxAttempts = 3

// defaultBackoffBase is the wait before the first retry, doubled on each
// subsequent one.
const defaultBackoffBase = 2 * time.Second

// RetryPolicy is a finite retry schedule decoupled from the operation it
// wraps so it can be tested on its own.
type RetryPolicy struct {
	// MaxAttempts bounds the total number of attempts, including the first
	MaxAttempts int
	// Backoff returns the wait after the given 1-indexed failed attempt
	Backoff func(attempt int) time.Duration
}

// NewRetryPolicy returns a policy with the given attempt bound and the
// default exponential backoff.
func NewRetryPolicy(maxAttempts int) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     ExponentialBackoff(defaultBackoffBase),
	}
}

// ExponentialBackoff returns a backoff function that doubles the base wait
// for every failed attempt.
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << uint(attempt-1)
	}
}

// Do runs fn until it succeeds, fails permanently, exhausts the attempt
// budget, or the context is done. Only transient pull failures are retried.
// It returns the number of attempts that were made alongside the final
// error, if any.
func (p *RetryPolicy) Do(ctx context.Context, fn func() error) (int, error) {
	attempt := 0
	for {
		attempt++
		err := fn()
		if err == nil {
			return attempt, nil
		}
		if !types.IsTransientPull(err) {
			return attempt, err
		}
		if attempt >= p.MaxAttempts {
			return attempt, err
		}
		wait := p.Backoff(attempt)
		log.Debugf("Attempt %d/%d failed (%s), retrying in %s\n", attempt, p.MaxAttempts, err, wait)
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(wait):
		}
	}
}
