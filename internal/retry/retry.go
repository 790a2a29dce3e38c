// Package retry runs an operation under a bounded retry-with-backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff returns the delay before the next attempt. attempt is 1 for the
// delay following the first failure.
type Backoff func(attempt int) time.Duration

// Linear waits attempt*step: step, 2*step, 3*step...
func Linear(step time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Exponential waits base, 2*base, 4*base...
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base * time.Duration(1<<(attempt-1))
	}
}

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	Backoff     Backoff
	// Retryable decides whether a failed attempt may be repeated. A nil
	// Retryable retries every error.
	Retryable func(error) bool
	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Delayer lets an error dictate the wait before the next attempt, for example
// from a Retry-After header.
type Delayer interface {
	RetryAfter() time.Duration
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx is done. The error of the last attempt is returned,
// wrapped in *ExhaustedError when attempts ran out.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("retry: canceled after %d attempts: %w", attempt-1, errors.Join(err, lastErr))
			}
			return zero, err
		}

		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := time.Duration(0)
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		var d Delayer
		if errors.As(err, &d) && d.RetryAfter() > 0 {
			delay = d.RetryAfter()
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		if err := Sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry: canceled after %d attempts: %w", attempt, errors.Join(err, lastErr))
		}
	}

	return zero, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// Sleep waits for delay or until ctx is done.
func Sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
