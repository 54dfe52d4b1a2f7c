package graph

import (
	"context"
	"fmt"
	"time"
)

// BackoffStrategy defines different backoff strategies
type BackoffStrategy int

const (
	FixedBackoff BackoffStrategy = iota
	ExponentialBackoff
	LinearBackoff
)

// RetryPolicy defines how to handle node failures
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries      int
	BackoffStrategy BackoffStrategy
	// BaseDelay defaults to one second.
	BaseDelay time.Duration
	// MaxDelay caps a single wait when positive.
	MaxDelay time.Duration
	// Retryable decides whether an error is retried. Defaults to IsRetryable.
	Retryable func(error) bool
}

// ShouldRetry reports whether err may be retried under this policy.
func (p *RetryPolicy) ShouldRetry(err error) bool {
	if p == nil || err == nil {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsRetryable(err)
}

// Delay returns the wait before retry number attempt (0-based).
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if p == nil {
		return 0
	}
	base := p.BaseDelay
	if base == 0 {
		base = time.Second
	}

	var d time.Duration
	switch p.BackoffStrategy {
	case ExponentialBackoff:
		// 1x, 2x, 4x, 8x, ...
		d = base * time.Duration(1<<attempt)
	case LinearBackoff:
		// 1x, 2x, 3x, 4x, ...
		d = base * time.Duration(attempt+1)
	default:
		d = base
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// policy runs out of retries. It returns the number of attempts made. A nil
// policy means a single attempt.
func Retry[T any](ctx context.Context, p *RetryPolicy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	maxAttempts := 1
	if p != nil {
		maxAttempts = p.MaxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, attempt + 1, nil
		}
		lastErr = err

		if attempt == maxAttempts-1 || !p.ShouldRetry(err) {
			return zero, attempt + 1, err
		}

		select {
		case <-time.After(p.Delay(attempt)):
		case <-ctx.Done():
			return zero, attempt + 1, ctx.Err()
		}
	}
	return zero, maxAttempts, lastErr
}

// runWithTimeout executes the node in its own goroutine and stops waiting
// once the timeout elapses. A zero timeout runs the node inline.
func runWithTimeout[S any](ctx context.Context, node TypedNode[S], timeout time.Duration, state S) (S, error) {
	if timeout <= 0 {
		return callNode(ctx, node, state)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value S
		err   error
	}
	resultChan := make(chan result, 1)

	go func() {
		value, err := callNode(timeoutCtx, node, state)
		resultChan <- result{value: value, err: err}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil && ctx.Err() == nil && timeoutCtx.Err() != nil {
			var zero S
			return zero, &NodeTimeoutError{Node: node.Name, Timeout: timeout}
		}
		return res.value, res.err
	case <-timeoutCtx.Done():
		var zero S
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &NodeTimeoutError{Node: node.Name, Timeout: timeout}
	}
}

func callNode[S any](ctx context.Context, node TypedNode[S], state S) (value S, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in node %s: %v", node.Name, r)
		}
	}()
	return node.Function(ctx, state)
}
