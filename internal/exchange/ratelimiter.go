package exchange

import (
	"context"
	"sync"
	"time"
)

// rateLimiter is a token bucket guarding the REST endpoints. The futures API
// weighs requests per minute; a conservative bucket keeps the bot well under
// the ban threshold even when several symbols cycle at once.
type rateLimiter struct {
	mu       sync.Mutex
	tokens   int
	capacity int
	interval time.Duration
	last     time.Time
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	return &rateLimiter{
		tokens:   capacity,
		capacity: capacity,
		interval: interval,
		last:     time.Now(),
	}
}

// wait blocks until a token is available or ctx is cancelled.
func (r *rateLimiter) wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
}

func (r *rateLimiter) refill() {
	elapsed := time.Since(r.last)
	replenished := int(elapsed / r.interval)
	if replenished > 0 {
		r.tokens += replenished
		if r.tokens > r.capacity {
			r.tokens = r.capacity
		}
		r.last = r.last.Add(time.Duration(replenished) * r.interval)
	}
}
