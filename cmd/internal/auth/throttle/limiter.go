package throttle

import (
	"context"
	"log/slog"
	"time"
)

// Limiter applies a fixed attempt budget to keys.
//
// Counter failures never block a request: the attempt is allowed and the
// failure is logged.
type Limiter struct {
	counter Counter
	max     int64
	window  time.Duration
	log     *slog.Logger
}

// NewLimiter builds a limiter allowing max hits per window per key.
// A max of zero disables the limiter.
func NewLimiter(counter Counter, max int64, window time.Duration, log *slog.Logger) *Limiter {
	if log == nil {
		log = slog.Default()
	}
	return &Limiter{counter: counter, max: max, window: window, log: log}
}

// Hit records one attempt against key. A true result means the key is over
// budget; retryAfter is how long until its window resets.
func (l *Limiter) Hit(ctx context.Context, key string) (blocked bool, retryAfter time.Duration) {
	if l == nil || l.counter == nil || l.max <= 0 {
		return false, 0
	}

	n, ttl, err := l.counter.Incr(ctx, key, l.window)
	if err != nil {
		l.log.Warn("throttle.incr.fail", "key", key, "err", err)
		return false, 0
	}
	if n > l.max {
		return true, ttl
	}
	return false, 0
}

// Clear forgets the key's window, for example after a successful login.
func (l *Limiter) Clear(ctx context.Context, key string) {
	if l == nil || l.counter == nil {
		return
	}
	if err := l.counter.Reset(ctx, key); err != nil {
		l.log.Warn("throttle.reset.fail", "key", key, "err", err)
	}
}
