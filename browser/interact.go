package browser

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds a single retried interaction with the rendered document.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// TransientError reports an interaction that kept failing after its retry
// budget was exhausted. Callers decide whether that is tolerable (the field
// becomes the sentinel) or fatal (the facet or race is abandoned).
type TransientError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Attempt runs one interaction against the live document, retrying up to
// policy.MaxRetries additional times with a fixed delay between attempts.
// After exhaustion the last error is returned wrapped in *TransientError.
// The sleep between attempts is context-aware, so cancellation never waits
// out a delay.
func Attempt[T any](ctx context.Context, op string, policy RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T

	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := fn()
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(policy.Delay):
			}
		}
	}

	return zero, &TransientError{Op: op, Attempts: attempts, Err: lastErr}
}

// Do is Attempt for interactions that return no value.
func Do(ctx context.Context, op string, policy RetryPolicy, fn func() error) error {
	_, err := Attempt(ctx, op, policy, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
