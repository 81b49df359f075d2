package rate

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketFirstWaitIsImmediate(t *testing.T) {
	tb := NewTokenBucket(1)
	defer tb.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first wait = %v, want immediate success", err)
	}
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket(50)
	defer tb.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// The initial token plus refills must cover several waits well
	// within the timeout.
	for i := 0; i < 5; i++ {
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("wait %d = %v", i, err)
		}
	}
}

func TestTokenBucketWaitHonorsCancellation(t *testing.T) {
	tb := NewTokenBucket(1)
	defer tb.Stop()

	// Drain the initial token.
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("draining: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tb.Wait(ctx); err == nil {
		t.Fatal("expected error from canceled context")
	}
}

func TestTokenBucketStopReturns(t *testing.T) {
	tb := NewTokenBucket(10)

	stopped := make(chan struct{})
	go func() {
		tb.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestNoneNeverBlocks(t *testing.T) {
	var l Limiter = None{}
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("None.Wait = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("None.Wait must surface context cancellation")
	}
}
