package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantPolicy(t *testing.T) {
	t.Parallel()

	policy := NewConstantPolicy(50*time.Millisecond, 3)

	for i := 0; i < 3; i++ {
		interval, err := policy.ComputeNextInterval(i, 0, errors.New("fail"))
		require.NoError(t, err)
		assert.Equal(t, 50*time.Millisecond, interval)
	}

	_, err := policy.ComputeNextInterval(3, 0, errors.New("fail"))
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestConstantPolicyUnlimited(t *testing.T) {
	t.Parallel()

	policy := NewConstantPolicy(time.Millisecond, 0)
	_, err := policy.ComputeNextInterval(1000, 0, errors.New("fail"))
	assert.NoError(t, err)
}

func TestExponentialPolicy(t *testing.T) {
	t.Parallel()

	policy := &ExponentialPolicy{
		InitialInterval: 10 * time.Millisecond,
		Factor:          2,
		MaxInterval:     25 * time.Millisecond,
		MaxRetries:      5,
	}

	interval, err := policy.ComputeNextInterval(0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, interval)

	interval, err = policy.ComputeNextInterval(1, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, interval)

	interval, err = policy.ComputeNextInterval(2, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 25*time.Millisecond, interval)
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Retry(context.Background(), func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, NewConstantPolicy(time.Millisecond, 5), nil)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	t.Parallel()

	lastErr := errors.New("still broken")
	attempts := 0
	err := Retry(context.Background(), func(_ context.Context) error {
		attempts++
		return lastErr
	}, NewConstantPolicy(time.Millisecond, 2), nil)

	// 2 retries means 3 attempts total, and the operation's own error
	// surfaces instead of ErrRetriesExhausted.
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, lastErr)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
}

func TestRetryNonRetriableError(t *testing.T) {
	t.Parallel()

	fatal := errors.New("fatal")
	attempts := 0
	err := Retry(context.Background(), func(_ context.Context) error {
		attempts++
		return fatal
	}, NewConstantPolicy(time.Millisecond, 5), func(err error) bool {
		return !errors.Is(err, fatal)
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, fatal)
}

func TestRetryContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, func(_ context.Context) error {
		return errors.New("never succeeds")
	}, NewConstantPolicy(time.Second, 0), nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrierReset(t *testing.T) {
	t.Parallel()

	r := NewRetrier(NewConstantPolicy(time.Millisecond, 1))

	_, err := r.Next(errors.New("fail"))
	require.NoError(t, err)
	_, err = r.Next(errors.New("fail"))
	require.ErrorIs(t, err, ErrRetriesExhausted)

	r.Reset()
	_, err = r.Next(errors.New("fail"))
	assert.NoError(t, err)
}
