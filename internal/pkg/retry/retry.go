package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when all attempts failed with a retryable error.
// The last underlying error is wrapped and available via errors.Unwrap.
var ErrExhausted = errors.New("retry attempts exhausted")

// Do runs op up to attempts times. Errors for which isRetryable returns true
// trigger another attempt after a linear backoff of baseDelay * attempt;
// any other error aborts immediately and is returned as-is.
//
// The backoff sleep honors ctx, so callers waiting on a redelivered webhook
// are not pinned to a dead request.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, isRetryable func(error) bool, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if isRetryable == nil || !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(baseDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}
