// Package throttle provides fixed-window attempt counters for abuse control.
//
// The Counter interface lets deployments pick the backing store: the
// in-process MemoryCounter is the default and serves tests, RedisCounter
// shares windows across replicas. Limiter layers a per-key budget on top
// of either.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Counter is a fixed-window hit counter.
//
// Incr records one hit against key and returns the total for the current
// window plus the time until the window resets. The first hit of a window
// starts it.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Reset(ctx context.Context, key string) error
}

// MemoryCounter counts in process memory. Construct with NewMemoryCounter.
type MemoryCounter struct {
	mu  sync.Mutex
	m   map[string]memoryWindow
	now func() time.Time
}

type memoryWindow struct {
	count    int64
	resetsAt time.Time
}

// NewMemoryCounter constructs an empty in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		m:   make(map[string]memoryWindow),
		now: time.Now,
	}
}

// Incr implements Counter.
func (c *MemoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.m[key]
	if !ok || !w.resetsAt.After(now) {
		w = memoryWindow{resetsAt: now.Add(window)}
	}
	w.count++
	c.m[key] = w

	return w.count, w.resetsAt.Sub(now), nil
}

// Reset implements Counter.
func (c *MemoryCounter) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.m, key)
	return nil
}
