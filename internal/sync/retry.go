package sync

import (
	"context"
	"time"

	"github.com/Prajwalprakash3722/imapCleanup/internal/mailbox"
)

// RetryPolicy bounds how hard the engine tries to recover a failed batch
// before recording it as errored and moving on.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialBackoff is the pause after the first failure.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// Multiplier grows the backoff between attempts.
	Multiplier float64
}

// DefaultRetryPolicy matches what Gmail's IMAP throttling tolerates.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2,
	}
}

// sleepFunc pauses for d or until the context is done. Injectable so
// retry behavior is testable without wall-clock waits.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryDo runs fn, retrying with capped exponential backoff as long as
// the error is retryable (rate limit or transient network). Auth and
// unclassified errors abort immediately; exhaustion returns the last
// error.
func retryDo(ctx context.Context, policy RetryPolicy, sleep sleepFunc, fn func() error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if sleep == nil {
		sleep = sleepContext
	}

	backoff := policy.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !mailbox.IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = time.Duration(float64(backoff) * policy.Multiplier)
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	return lastErr
}
