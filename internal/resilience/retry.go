// Package resilience provides bounded-backoff retries for calls to
// external backends (embedding API, vector store, company directory).
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"finsight/internal/domain"
)

// Config controls the retry policy. MaxAttempts counts every call of
// the operation, the first one included; zero or less means unlimited.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultConfig allows three attempts with exponential backoff starting
// at 100ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// Retry runs op with exponential backoff until it succeeds, the retry
// budget is exhausted, or ctx is cancelled. Configuration errors are
// never retried.
func Retry(ctx context.Context, cfg Config, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.Multiplier = cfg.Multiplier
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = b
	if cfg.MaxAttempts > 0 {
		// backoff counts retries after the first call.
		policy = backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1))
	}
	policy = backoff.WithContext(policy, ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// RetryWithResult is Retry for operations that return a value.
func RetryWithResult[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	var result T
	err := Retry(ctx, cfg, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}

func retryable(err error) bool {
	if errors.Is(err, domain.ErrConfiguration) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
