package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tempErr struct{ temporary bool }

func (e tempErr) Error() string   { return fmt.Sprintf("temporary=%v", e.temporary) }
func (e tempErr) Temporary() bool { return e.temporary }

func TestRetryPolicy_Delay(t *testing.T) {
	tests := []struct {
		name     string
		policy   *RetryPolicy
		attempt  int
		expected time.Duration
	}{
		{"fixed", &RetryPolicy{BaseDelay: time.Second}, 3, time.Second},
		{"default base", &RetryPolicy{}, 0, time.Second},
		{"exponential", &RetryPolicy{BackoffStrategy: ExponentialBackoff, BaseDelay: 100 * time.Millisecond}, 3, 800 * time.Millisecond},
		{"linear", &RetryPolicy{BackoffStrategy: LinearBackoff, BaseDelay: 100 * time.Millisecond}, 2, 300 * time.Millisecond},
		{"capped", &RetryPolicy{BackoffStrategy: ExponentialBackoff, BaseDelay: time.Second, MaxDelay: 3 * time.Second}, 5, 3 * time.Second},
		{"nil policy", nil, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.True(t, IsRetryable(&NodeTimeoutError{Node: "a", Timeout: time.Second}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", tempErr{temporary: true})))
	assert.False(t, IsRetryable(tempErr{temporary: false}))
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	p := &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}

	v, attempts, err := Retry(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", tempErr{temporary: true}
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	p := &RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
	_, attempts, err := Retry(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, tempErr{temporary: true}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NilPolicySingleAttempt(t *testing.T) {
	calls := 0
	_, attempts, err := Retry(context.Background(), nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, tempErr{temporary: true}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetry_CustomPredicate(t *testing.T) {
	calls := 0
	p := &RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		Retryable:  func(err error) bool { return err.Error() == "again" },
	}
	_, _, err := Retry(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("again")
		}
		return 0, errors.New("stop")
	})
	assert.EqualError(t, err, "stop")
	assert.Equal(t, 2, calls)
}

func TestRetry_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour}

	_, _, err := Retry(ctx, p, func(ctx context.Context) (int, error) {
		cancel()
		return 0, tempErr{temporary: true}
	})
	assert.ErrorIs(t, err, context.Canceled)
}
