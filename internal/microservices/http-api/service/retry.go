package service

import (
	"context"
	"time"

	"coursehub/internal/shared"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy bounds how hard a store write is retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	// PositionRetry is for routine position flushes; losing one costs a few seconds of resume.
	PositionRetry = RetryPolicy{MaxAttempts: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}
	// CompletionRetry is more aggressive since a lost completion is user visible.
	CompletionRetry = RetryPolicy{MaxAttempts: 8, InitialInterval: 250 * time.Millisecond, MaxInterval: 5 * time.Second}
)

// WithAttempts returns a copy of p with a different attempt budget.
func (p RetryPolicy) WithAttempts(n int) RetryPolicy {
	if n > 0 {
		p.MaxAttempts = n
	}
	return p
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// retryWrite runs op under the policy. Only storage errors are retried;
// validation and reference errors return at once.
func retryWrite[T any](ctx context.Context, p RetryPolicy, logger *zap.Logger, op func() (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := op()
		if err != nil && !shared.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, p.newBackOff(ctx), func(err error, wait time.Duration) {
		logger.Debug("progress_write_retry", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	})
}
