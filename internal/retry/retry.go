// Package retry implements the shared transient-failure retry policy applied
// to provider calls and downloads.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/mfleurival/movie-tool/internal/services"
)

// Policy controls how an operation is retried. Delay grows as
// BaseDelay * 2^attempt (attempt-indexed from zero), optionally jittered,
// and is capped at MaxDelay when set. A provider-supplied rate-limit wait
// hint overrides the computed delay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// Sleep is injectable for tests. Defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the policy used when configuration supplies nothing.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Jitter:      true,
	}
}

// Execute runs op, retrying classified-retryable failures until the attempt
// budget is exhausted. Non-retryable errors propagate immediately. When the
// budget runs out the last cause is wrapped in services.ErrRetryExhausted.
func (p Policy) Execute(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = waitContext
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !services.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		if err := sleep(ctx, p.delay(attempt, lastErr)); err != nil {
			return err
		}
	}
	return services.Wrap(services.ErrRetryExhausted, "retry", "", "", lastErr)
}

func (p Policy) delay(attempt int, cause error) time.Duration {
	if hint, ok := services.RetryAfterHint(cause); ok {
		return hint
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	return d
}

func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
