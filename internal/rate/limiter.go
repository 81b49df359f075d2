// Package rate paces outbound IMAP batch commands. Gmail drops sessions
// that issue commands too quickly, so every FETCH and STORE batch takes a
// token first.
package rate

import (
	"context"
	"fmt"
	"time"
)

// Limiter gates one batch command per Wait call.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucket releases a fixed number of tokens per second. The bucket
// starts with one token so the first batch never waits.
type TokenBucket struct {
	ticker *time.Ticker
	tokens chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// NewTokenBucket returns a limiter releasing batchesPerSec tokens per
// second. Values below 1 are clamped to 1.
func NewTokenBucket(batchesPerSec int) *TokenBucket {
	if batchesPerSec <= 0 {
		batchesPerSec = 1
	}
	tb := &TokenBucket{
		ticker: time.NewTicker(time.Second / time.Duration(batchesPerSec)),
		tokens: make(chan struct{}, batchesPerSec),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	tb.tokens <- struct{}{}
	go tb.run()
	return tb
}

func (t *TokenBucket) run() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C:
			select {
			case t.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// Wait blocks until a token is available or the context is canceled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate wait canceled: %w", ctx.Err())
	case <-t.tokens:
		return nil
	}
}

// Stop ends the refill goroutine. Wait calls issued after Stop block
// until canceled.
func (t *TokenBucket) Stop() {
	t.ticker.Stop()
	close(t.stop)
	<-t.done
}

var _ Limiter = (*TokenBucket)(nil)

// None never waits. Used when no remote session is involved.
type None struct{}

func (None) Wait(ctx context.Context) error {
	return ctx.Err()
}

var _ Limiter = None{}
