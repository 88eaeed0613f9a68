package builder

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces out requests to the card database.
type Throttle interface {
	// Wait blocks until the next request may start or ctx is done.
	Wait(ctx context.Context) error
}

// RateThrottle is a Throttle backed by a token bucket of size one.
type RateThrottle struct {
	limiter *rate.Limiter
}

// NewRateThrottle allows one request per interval. A non-positive interval
// disables throttling.
func NewRateThrottle(interval time.Duration) *RateThrottle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateThrottle{limiter: rate.NewLimiter(limit, 1)}
}

// Wait implements Throttle.
func (t *RateThrottle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// FlushPolicy decides when the pending batch is persisted.
type FlushPolicy interface {
	ShouldFlush(pending int) bool
}

// SizeFlushPolicy flushes once Size records are pending.
type SizeFlushPolicy struct {
	Size int
}

// ShouldFlush implements FlushPolicy.
func (p SizeFlushPolicy) ShouldFlush(pending int) bool {
	return pending > 0 && pending >= max(p.Size, 1)
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }
