package errors

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// MaxElapsed bounds the total time spent retrying. Once exceeded the
	// last error is surfaced.
	MaxElapsed time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64

	// Jitter adds randomness to delay to prevent lockstep retries.
	Jitter bool

	// ShouldRetry decides whether an error is worth retrying. Nil retries
	// everything.
	ShouldRetry func(error) bool
}

// StoreRetryConfig returns the retry policy for busy-store contention:
// exponential backoff bounded at roughly thirty seconds total.
func StoreRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		MaxElapsed:   30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		ShouldRetry:  IsRetryable,
	}
}

// Retry executes fn with exponential backoff until it succeeds, the error
// is not retryable, the elapsed budget runs out, or ctx is cancelled.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	start := time.Now()
	delay := cfg.InitialDelay

	for {
		select {
		case <-ctx.Done():
			return Cancelled("operation")
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			return err
		}
		if cfg.MaxElapsed > 0 && time.Since(start)+delay > cfg.MaxElapsed {
			return err
		}

		waitDelay := delay
		if cfg.Jitter {
			waitDelay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}

		select {
		case <-ctx.Done():
			return Cancelled("operation")
		case <-time.After(waitDelay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}

// RetryWithResult executes a function that returns a value with retry logic.
// Similar to Retry but for functions that return both a result and an error.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	err := Retry(ctx, cfg, func() error {
		var ferr error
		result, ferr = fn()
		return ferr
	})
	return result, err
}
