package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	err := Retry(context.Background(), fastRetryConfig(), fn)

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	cfg := fastRetryConfig()
	cfg.MaxRetries = 2

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("always")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetry_ShouldRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	cfg := fastRetryConfig()
	cfg.ShouldRetry = IsRetryable

	permanent := New(ErrCodeEngineError, "bad request", nil)
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return permanent
	})

	assert.Equal(t, 1, attempts)
	assert.Same(t, permanent, err)
}

func TestRetry_ShouldRetryRetriesNetworkErrors(t *testing.T) {
	attempts := 0
	cfg := fastRetryConfig()
	cfg.ShouldRetry = IsRetryable

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts == 1 {
			return NetworkError("connection refused", nil)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetryConfig(), func() error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("again")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRetryWithResult_ReturnsZeroOnFailure(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.MaxRetries = 1

	got, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		return "partial", errors.New("nope")
	})

	require.Error(t, err)
	assert.Equal(t, "", got)
}
