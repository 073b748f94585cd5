// Package retry provides a generic, context-aware retry wrapper for any
// fallible operation, generalizing the exponential-backoff-with-jitter
// pattern the call layer's HTTP client and the agent's task-status updates
// both hand-roll.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/kadirpekel/conduit/pkg/llm"
)

// Options configures a retry policy.
type Options struct {
	MaxRetries         int
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	BackoffMultiplier  float64
	Jitter             bool
	ShouldRetry        func(error) bool
	OnRetry            func(attempt int, delay time.Duration, err error)
}

// DefaultOptions mirrors spec.md's default retry policy: 3 retries, 1s
// initial delay, 30s cap, 2x multiplier, jitter on.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
		ShouldRetry:       DefaultShouldRetry,
	}
}

// DefaultShouldRetry retries rate limits, timeouts, network errors, and
// 5xx-shaped service unavailability; it never retries validation,
// unauthorized, or not-found errors.
func DefaultShouldRetry(err error) bool {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		switch llmErr.Code {
		case llm.CodeRateLimit, llm.CodeTimeout, llm.CodeNetwork, llm.CodeServiceUnavailable:
			return true
		default:
			return false
		}
	}
	// Unclassified errors are assumed transient, matching the teacher's
	// task-status retry (only explicit validation-shaped errors are excluded).
	return true
}

// RetryAfter extracts an explicit server-provided delay, if one exists.
func RetryAfter(err error) (time.Duration, bool) {
	var llmErr *llm.Error
	if !errors.As(err, &llmErr) || llmErr.RetryAfter == "" {
		return 0, false
	}
	if secs, perr := time.ParseDuration(llmErr.RetryAfter + "s"); perr == nil {
		return secs, true
	}
	if at, perr := http.ParseTime(llmErr.RetryAfter); perr == nil {
		return max(time.Until(at), 0), true
	}
	return 0, false
}

// Do runs fn, retrying per opts until it succeeds, the context is
// cancelled, retries are exhausted, or ShouldRetry declines to retry.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	if opts.ShouldRetry == nil {
		opts.ShouldRetry = DefaultShouldRetry
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !opts.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt >= opts.MaxRetries {
			break
		}

		delay := computeDelay(opts, attempt, lastErr)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, delay, lastErr)
		} else {
			slog.Debug("retry: attempt failed, backing off", "attempt", attempt+1, "delay", delay, "error", lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// DoValue is Do's generic counterpart for operations that return a value.
func DoValue[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, opts, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			result = v
		}
		return err
	})
	return result, err
}

func computeDelay(opts Options, attempt int, err error) time.Duration {
	if d, ok := RetryAfter(err); ok {
		return min(d, opts.MaxDelay)
	}

	mult := opts.BackoffMultiplier
	if mult <= 0 {
		mult = 2
	}
	delay := time.Duration(float64(opts.InitialDelay) * math.Pow(mult, float64(attempt)))
	if opts.Jitter {
		delay += time.Duration(rand.Float64() * float64(delay) * 0.25)
	}
	return min(delay, opts.MaxDelay)
}
