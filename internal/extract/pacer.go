package extract

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between extraction calls, shared across
// every caller regardless of worker count. It also tracks a cooldown set
// after a rate-limit response. This is the one piece of mutable state shared
// across the OCR pool; the mutex serializes cooldown updates.
type Pacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewPacer creates a pacer allowing one call per minInterval, no burst.
func NewPacer(minInterval time.Duration) *Pacer {
	if minInterval <= 0 {
		minInterval = time.Millisecond
	}
	return &Pacer{
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Wait blocks until a call can be made without exceeding the pace. It also
// respects any cooldown period set by RecordRateLimit.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	retryAt := p.retryAt
	p.mu.Unlock()

	if until := time.Until(retryAt); until > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(until):
		}
	}

	return p.limiter.Wait(ctx)
}

// RecordRateLimit pushes all callers back by cooldown after a 429.
func (p *Pacer) RecordRateLimit(cooldown time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	p.retryAt = time.Now().Add(cooldown)
}
