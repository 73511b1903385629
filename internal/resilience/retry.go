package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy describes how a failed call is repeated. The wait before each
// retry doubles from Backoff up to MaxBackoff.
type RetryPolicy struct {
	// Attempts counts every try, the first included.
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Jitter randomizes each wait by up to this fraction of it.
	Jitter float64

	// Retryable decides which errors are worth another try; nil means
	// IsTransient. Permanent errors are never retried.
	Retryable func(error) bool
	OnRetry   func(attempt int, err error)
}

// DefaultRetryPolicy returns the policy used for service calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   3,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
		Jitter:     0.25,
	}
}

// ServiceRetry returns the default policy for operation against service,
// logging every retry. attempts below one keeps the default count.
func ServiceRetry(service, operation string, attempts int) RetryPolicy {
	p := DefaultRetryPolicy().WithAttempts(attempts)
	p.OnRetry = func(attempt int, err error) {
		zap.L().Warn("resilience: retrying call",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("error_class", ClassifyError(err)),
			zap.Error(err),
		)
	}
	return p
}

// WithAttempts returns p with n attempts, or p unchanged when n < 1.
func (p RetryPolicy) WithAttempts(n int) RetryPolicy {
	if n > 0 {
		p.Attempts = n
	}
	return p
}

// WithBackoff returns p starting its waits at d, or p unchanged when d <= 0.
func (p RetryPolicy) WithBackoff(d time.Duration) RetryPolicy {
	if d > 0 {
		p.Backoff = d
	}
	return p
}

// Retry calls fn until it succeeds, fails with an error p does not retry, or
// runs out of attempts. The last error is returned.
func Retry(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	_, err := RetryVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryVal is Retry for calls that produce a value.
func RetryVal[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	p = p.normalized()
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if attempt >= p.Attempts || ctx.Err() != nil || IsPermanent(err) || !retryable(err) {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(p.wait(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Backoff <= 0 {
		p.Backoff = def.Backoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = max(def.MaxBackoff, p.Backoff)
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// wait returns the pause after the given failed attempt (1-based).
func (p RetryPolicy) wait(attempt int) time.Duration {
	d := p.Backoff
	for i := 1; i < attempt && d < p.MaxBackoff; i++ {
		d *= 2
	}
	d = min(d, p.MaxBackoff)
	if p.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * p.Jitter * float64(d))
	}
	return max(d, 0)
}
