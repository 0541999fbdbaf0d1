package backoff

import (
	"context"
	"time"
)

type (
	// Operation to retry.
	Operation func(ctx context.Context) error

	// IsRetriableFunc reports whether an error should be retried.
	IsRetriableFunc func(err error) bool
)

// Retry executes op until it succeeds, the policy gives up, or the context
// is done. When retries are exhausted the last operation error is returned,
// not ErrRetriesExhausted. A nil isRetriable retries every error.
func Retry(ctx context.Context, op Operation, policy RetryPolicy, isRetriable IsRetriableFunc) error {
	if isRetriable == nil {
		isRetriable = func(_ error) bool { return true }
	}

	retrier := NewRetrier(policy)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !isRetriable(err) {
			return err
		}

		interval, retryErr := retrier.Next(err)
		if retryErr != nil {
			return err
		}

		if interval > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
			timer.Stop()
		}
	}
}
