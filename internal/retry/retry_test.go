package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mfleurival/movie-tool/internal/services"
)

func testPolicy(sleeps *[]time.Duration) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		},
	}
}

func TestExecuteSucceedsAfterRateLimits(t *testing.T) {
	var sleeps []time.Duration
	calls := 0
	err := testPolicy(&sleeps).Execute(context.Background(), func(context.Context) error {
		calls++
		if calls <= 2 {
			return services.Wrap(services.ErrRateLimited, "minimax", "submit", "", &services.RateLimitError{})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected exactly 2 backoff waits, got %d", len(sleeps))
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	calls := 0
	err := testPolicy(nil).Execute(context.Background(), func(context.Context) error {
		calls++
		return services.Wrap(services.ErrRateLimited, "minimax", "submit", "", nil)
	})
	if !errors.Is(err, services.ErrRetryExhausted) {
		t.Fatalf("expected retry exhausted, got %v", err)
	}
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected last cause to be wrapped, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected max attempts to bound calls, got %d", calls)
	}
}

func TestExecuteStopsOnNonRetryable(t *testing.T) {
	calls := 0
	wantErr := services.Wrap(services.ErrValidation, "minimax", "submit", "missing reference image", nil)
	err := testPolicy(nil).Execute(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-retryable errors must not be retried, got %d calls", calls)
	}
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := testPolicy(nil).Execute(ctx, func(context.Context) error {
		t.Fatal("operation should not run on cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDelayGrowsExponentially(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: time.Second}
	if d := p.delay(0, errors.New("x")); d != time.Second {
		t.Fatalf("attempt 0: expected 1s, got %v", d)
	}
	if d := p.delay(2, errors.New("x")); d != 4*time.Second {
		t.Fatalf("attempt 2: expected 4s, got %v", d)
	}
}

func TestDelayHonorsRateLimitHint(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second}
	cause := &services.RateLimitError{RetryAfter: 7 * time.Second}
	if d := p.delay(0, cause); d != 7*time.Second {
		t.Fatalf("expected upstream hint to win, got %v", d)
	}
}

func TestDelayCapsAtMax(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	if d := p.delay(6, errors.New("x")); d != 5*time.Second {
		t.Fatalf("expected cap at 5s, got %v", d)
	}
}
