package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Prajwalprakash3722/imapCleanup/internal/mailbox"
)

// recordSleep returns a sleepFunc that appends requested durations
// instead of waiting.
func recordSleep(slept *[]time.Duration) sleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
}

func TestRetryDoSucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2,
	}

	var slept []time.Duration
	attempts := 0
	err := retryDo(context.Background(), policy, recordSleep(&slept), func() error {
		attempts++
		if attempts < 3 {
			return &mailbox.TransientError{Err: errors.New("connection reset")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryDo = %v, want nil", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(slept) != 2 || slept[0] != 100*time.Millisecond || slept[1] != 200*time.Millisecond {
		t.Fatalf("backoffs = %v, want [100ms 200ms]", slept)
	}
}

func TestRetryDoCapsBackoff(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 400 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2,
	}

	var slept []time.Duration
	err := retryDo(context.Background(), policy, recordSleep(&slept), func() error {
		return &mailbox.RateLimitError{Err: errors.New("throttled")}
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	want := []time.Duration{400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	if len(slept) != len(want) {
		t.Fatalf("backoffs = %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("backoffs = %v, want %v", slept, want)
		}
	}
}

func TestRetryDoAbortsOnNonRetryable(t *testing.T) {
	var slept []time.Duration
	attempts := 0
	authErr := &mailbox.AuthError{Account: "a@gmail.com", Message: "bad credentials"}

	err := retryDo(context.Background(), DefaultRetryPolicy(), recordSleep(&slept), func() error {
		attempts++
		return authErr
	})
	if !mailbox.IsAuthError(err) {
		t.Fatalf("retryDo = %v, want auth error", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retries on auth failure)", attempts)
	}
	if len(slept) != 0 {
		t.Fatalf("slept %v, want no backoff", slept)
	}
}

func TestRetryDoReturnsLastErrorOnExhaustion(t *testing.T) {
	var slept []time.Duration
	last := &mailbox.TransientError{Err: errors.New("final failure")}
	attempts := 0

	policy := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2}
	err := retryDo(context.Background(), policy, recordSleep(&slept), func() error {
		attempts++
		if attempts < 3 {
			return &mailbox.TransientError{Err: errors.New("earlier failure")}
		}
		return last
	})
	if !errors.Is(err, last.Err) {
		t.Fatalf("retryDo = %v, want last error", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryDoStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := retryDo(ctx, DefaultRetryPolicy(), nil, func() error {
		attempts++
		return &mailbox.TransientError{Err: errors.New("flaky")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("retryDo = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}
