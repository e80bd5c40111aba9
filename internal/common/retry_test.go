package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/augurfin/expense-augur/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Microsecond,
		MaxDelay:     time.Millisecond,
	}
}

func TestWithRetryReappliesAfterLostRace(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return ErrConcurrentUpdate
		}
		return nil
	}, fastRetry(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	boom := errors.New("constraint violated")
	err := WithRetry(context.Background(), func() error {
		calls++
		return boom
	}, fastRetry(5))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "non-retryable failures must not be replayed")
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return ErrConcurrentUpdate
	}, fastRetry(3))

	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.Equal(t, 3, calls)
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, func() error {
		return ErrConcurrentUpdate
	}, fastRetry(5))

	assert.ErrorIs(t, err, context.Canceled)
}
