// Package retry wraps upstream calls in exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultPolicy makes three attempts, waiting 1s and then 2s.
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: time.Second,
	Multiplier:      2,
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. name is used in log output only.
func Do(ctx context.Context, p Policy, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	err := backoff.RetryNotify(
		func() error {
			attempt++
			return op()
		},
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx),
		func(err error, wait time.Duration) {
			slog.Warn("Retrying after failure",
				"operation", name,
				"attempt", attempt,
				"max_attempts", attempts,
				"wait", wait,
				"error", err)
		},
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		slog.Error("Operation failed", "operation", name, "attempts", attempt, "error", err)
	}
	return err
}
