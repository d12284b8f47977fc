// Package retry wraps calls to external collaborators (embedding, generation,
// vector store, blob storage) in a bounded exponential backoff policy.
// The policy is configuration, not caller behaviour:
//
//	RETRY_MAX_ATTEMPTS      total attempts including the first (default: 3)
//	RETRY_INITIAL_INTERVAL  first backoff delay (default: 200ms)
//	RETRY_MAX_INTERVAL      cap on a single delay (default: 2s)
package retry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/ragbot-go/internal/apperr"
	"github.com/54b3r/ragbot-go/internal/logging"
)

// Policy is a bounded exponential backoff configuration.
type Policy struct {
	// MaxAttempts is the total number of attempts. Values below 1 mean 1.
	MaxAttempts int
	// InitialInterval is the delay before the second attempt.
	InitialInterval time.Duration
	// MaxInterval caps any single delay.
	MaxInterval time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// PolicyFromEnv reads RETRY_MAX_ATTEMPTS, RETRY_INITIAL_INTERVAL and
// RETRY_MAX_INTERVAL over DefaultPolicy. Unparseable values keep the default.
func PolicyFromEnv() Policy {
	p := DefaultPolicy()
	if v, err := strconv.Atoi(os.Getenv("RETRY_MAX_ATTEMPTS")); err == nil && v > 0 {
		p.MaxAttempts = v
	}
	if d, err := time.ParseDuration(os.Getenv("RETRY_INITIAL_INTERVAL")); err == nil && d > 0 {
		p.InitialInterval = d
	}
	if d, err := time.ParseDuration(os.Getenv("RETRY_MAX_INTERVAL")); err == nil && d > 0 {
		p.MaxInterval = d
	}
	return p
}

// None is a policy that makes exactly one attempt.
func None() Policy { return Policy{MaxAttempts: 1} }

// backOff builds the backoff schedule for p bound to ctx.
func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	// The attempt count bounds the schedule, not wall-clock time.
	exp.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx) //nolint:gosec // attempts >= 1
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted, or ctx is done. Validation and not-found errors stop the
// loop immediately. op names the call in retry log lines.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !apperr.IsRetryable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logging.FromContext(ctx).Warn("retry: attempt failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}

	return backoff.RetryNotify(operation, p.backOff(ctx), notify) //nolint:wrapcheck // fn errors pass through unchanged
}

// Value is Do for functions that return a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
