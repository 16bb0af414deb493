package vision

import (
	"context"
	"sync"
	"time"
)

// RateLimiter throttles requests to a hosted model using a rolling
// one-minute window. A limit of zero or less disables throttling.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	sent   []time.Time
	now    func() time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute requests.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		limit:  requestsPerMinute,
		window: time.Minute,
		now:    time.Now,
	}
}

// Wait blocks until a request slot is available or the context is done.
// The slot is claimed before returning, so callers may fire immediately.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l.limit <= 0 {
		return nil
	}

	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.sent) < l.limit {
			l.sent = append(l.sent, now)
			l.mu.Unlock()
			return nil
		}

		// Oldest request in the window decides how long to wait.
		wait := l.sent[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns the number of request slots currently free.
func (l *RateLimiter) Available() int {
	if l.limit <= 0 {
		return int(^uint(0) >> 1)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return l.limit - len(l.sent)
}

func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.sent) && !l.sent[i].After(cutoff) {
		i++
	}
	l.sent = l.sent[i:]
}
