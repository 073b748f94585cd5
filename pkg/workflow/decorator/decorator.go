// Package decorator wraps a workflow.Executor with cross-cutting behavior —
// retry, timeout, fallback, circuit breaking, error transformation — without
// touching the node's own logic.
package decorator

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/kadirpekel/conduit/pkg/workflow"
)

// WithRetry retries a failing node up to maxRetries times with exponential
// backoff plus jitter, in the same style as the package's HTTP/LLM retry
// loops: fixed initial delay, doubling, capped, cancellable via ctx.
func WithRetry(next workflow.Executor, maxRetries int, baseDelay time.Duration) workflow.Executor {
	return func(ctx context.Context, snap workflow.Snapshot, input any) (any, error) {
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			output, err := next(ctx, snap, input)
			if err == nil {
				return output, nil
			}
			lastErr = err

			if attempt == maxRetries {
				break
			}
			delay := backoff(baseDelay, attempt)
			slog.Warn("workflow: node retrying after error", "node", snap.CurrentNode, "attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		return nil, &workflow.NodeExecutionError{NodeName: snap.CurrentNode, Cause: lastErr}
	}
}

// maxBackoff caps WithRetry's delay before jitter is applied.
const maxBackoff = 60 * time.Second

func backoff(base time.Duration, attempt int) time.Duration {
	d := math.Min(float64(base)*math.Pow(2, float64(attempt)), float64(maxBackoff))
	jitter := 1 + (rand.Float64()*0.4 - 0.2) // ±20%
	return time.Duration(d * jitter)
}

// WithTimeout races next against a d-long timer, surfacing a
// workflow.TimeoutError the instant the timer wins — regardless of whether
// next itself ever returns. next runs in its own goroutine against a
// context that is cancelled at expiry (the signal a well-behaved node can
// select on to stop early), but WithTimeout does not wait for next to
// notice: it hands control back to the caller as soon as the timer fires,
// and only drains next's eventual result in the background.
func WithTimeout(next workflow.Executor, d time.Duration) workflow.Executor {
	return func(ctx context.Context, snap workflow.Snapshot, input any) (any, error) {
		timeoutCtx, cancel := context.WithTimeout(ctx, d)

		type outcome struct {
			output any
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			output, err := next(timeoutCtx, snap, input)
			done <- outcome{output, err}
		}()

		select {
		case o := <-done:
			cancel()
			return o.output, o.err
		case <-timeoutCtx.Done():
			go func() {
				<-done
				cancel()
			}()
			return nil, &workflow.TimeoutError{NodeName: snap.CurrentNode}
		}
	}
}

// WithFallback runs next and, on failure, runs fallback with the same
// input/snapshot instead of propagating the error.
func WithFallback(next, fallback workflow.Executor) workflow.Executor {
	return func(ctx context.Context, snap workflow.Snapshot, input any) (any, error) {
		output, err := next(ctx, snap, input)
		if err == nil {
			return output, nil
		}
		slog.Warn("workflow: node falling back after error", "node", snap.CurrentNode, "error", err)
		return fallback(ctx, snap, input)
	}
}

// WithErrorTransform rewrites an error node failures surface, leaving
// successful executions untouched.
func WithErrorTransform(next workflow.Executor, transform func(error) error) workflow.Executor {
	return func(ctx context.Context, snap workflow.Snapshot, input any) (any, error) {
		output, err := next(ctx, snap, input)
		if err != nil {
			return output, transform(err)
		}
		return output, nil
	}
}

// CatchError runs next and, on failure, recovers with a caller-supplied
// value instead of propagating the error — unlike WithFallback, there is no
// second executor invocation.
func CatchError(next workflow.Executor, recover func(error) (any, error)) workflow.Executor {
	return func(ctx context.Context, snap workflow.Snapshot, input any) (any, error) {
		output, err := next(ctx, snap, input)
		if err != nil {
			return recover(err)
		}
		return output, nil
	}
}
