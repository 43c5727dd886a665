// Package retry runs bounded exponential-backoff retries for relay transport calls.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultMaxAttempts = 4
	defaultBackoff     = 200 * time.Millisecond
	defaultMaxDelay    = 2 * time.Second
)

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxDelay    time.Duration
}

// Normalized fills zero fields with defaults. MaxAttempts of 1 disables retries.
func (p Policy) Normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.MaxDelay < p.Backoff {
		p.MaxDelay = p.Backoff
	}
	return p
}

// Do calls op until it succeeds, returns a non-retryable error, the attempt
// budget runs out, or ctx ends. A nil retryable treats every error as retryable.
// notify, when set, observes each failed attempt that will be retried.
func Do[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error), retryable func(error) bool, notify func(err error, next time.Duration)) (T, error) {
	policy = policy.Normalized()
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.Backoff
	expo.MaxInterval = policy.MaxDelay

	opts := []backoff.RetryOption{
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(notify)))
	}
	return backoff.Retry(ctx, func() (T, error) {
		value, err := op(ctx)
		if err != nil && retryable != nil && !retryable(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}, opts...)
}
