package execution

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// RetryPolicy bounds a retry loop. ShouldRetry decides whether an error is
// worth another attempt; nil retries every error.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxJitter      time.Duration
	ShouldRetry    func(error) bool
}

// DefaultRetryPolicy is three attempts, 200ms doubling up to 2s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	MaxJitter:      100 * time.Millisecond,
}

// WithRetry runs fn until it succeeds, the policy gives up, or ctx is done.
// Backoff doubles each attempt up to MaxBackoff, plus random jitter.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, fn RetryableFunc[T]) (T, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var result T
	var err error
	for i := 0; i < attempts; i++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		if policy.ShouldRetry != nil && !policy.ShouldRetry(err) {
			return result, err
		}
		if i == attempts-1 {
			break
		}
		if sleepErr := sleep(ctx, policy.backoff(i)); sleepErr != nil {
			return result, err
		}
	}
	return result, err
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff * (1 << attempt)
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	if p.MaxJitter > 0 {
		backoff += rand.N(p.MaxJitter)
	}
	return backoff
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
