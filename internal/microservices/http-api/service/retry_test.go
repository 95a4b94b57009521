package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"coursehub/internal/shared"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRetryWrite_StopsOnPermanentErrors(t *testing.T) {
	calls := 0
	_, err := retryWrite(context.Background(), fastRetry, zap.NewNop(), func() (int, error) {
		calls++
		return 0, shared.NewValidationError("x", "bad")
	})

	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, 1, calls)
}

func TestRetryWrite_RetriesStorageErrorsUpToBudget(t *testing.T) {
	calls := 0
	_, err := retryWrite(context.Background(), fastRetry, zap.NewNop(), func() (int, error) {
		calls++
		return 0, shared.StorageError("op", errors.New("down"))
	})

	assert.ErrorIs(t, err, shared.ErrStorage)
	assert.Equal(t, 3, calls)
}

func TestRetryWrite_ReturnsValueOnSuccess(t *testing.T) {
	calls := 0
	v, err := retryWrite(context.Background(), fastRetry, zap.NewNop(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", shared.StorageError("op", errors.New("blip"))
		}
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestRetryWrite_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	slow := RetryPolicy{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: time.Second}
	calls := 0
	_, err := retryWrite(ctx, slow, zap.NewNop(), func() (int, error) {
		calls++
		return 0, shared.StorageError("op", errors.New("down"))
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicies_CompletionIsMoreAggressive(t *testing.T) {
	assert.Greater(t, CompletionRetry.MaxAttempts, PositionRetry.MaxAttempts)
	assert.Equal(t, 3, PositionRetry.WithAttempts(0).MaxAttempts)
}
