// Package resilience provides the generic retry/backoff helper used by
// the geocoder's external-provider client. Adapted from
// sells-group-research-cli's internal/resilience/retry.go: a generic
// RetryConfig plus Do/DoVal runners honoring context cancellation, with
// jittered exponential backoff.
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig controls a retry loop's attempt count and backoff curve.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	JitterFraction float64
	ShouldRetry    func(error) bool
	OnRetry        func(attempt int, err error, wait time.Duration)
}

// GeocodeRetryConfig matches §4.2's "exponential backoff 1s·2^attempt up
// to N retries".
func GeocodeRetryConfig(maxRetries int, shouldRetry func(error) bool) RetryConfig {
	return RetryConfig{
		MaxAttempts:    maxRetries + 1,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		ShouldRetry:    shouldRetry,
	}
}

// Do runs fn, retrying per cfg until it succeeds, the context is
// cancelled, or ShouldRetry declines further attempts.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is the generic form of Do, returning fn's value on success.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var lastErr error
	var zero T

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		wait := computeBackoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func computeBackoff(cfg RetryConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * pow(cfg.Multiplier, attempt)
	if max := float64(cfg.MaxBackoff); cfg.MaxBackoff > 0 && backoff > max {
		backoff = max
	}
	if cfg.JitterFraction > 0 {
		jitter := backoff * cfg.JitterFraction * (rand.Float64()*2 - 1)
		backoff += jitter
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
