package throttle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestMemoryCounter_WindowArithmetic(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c := NewMemoryCounter()
	c.now = func() time.Time { return now }

	window := time.Minute

	n, ttl, err := c.Incr(context.Background(), "k", window)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if n != 1 || ttl != window {
		t.Fatalf("expected (1, %v), got (%d, %v)", window, n, ttl)
	}

	now = base.Add(20 * time.Second)
	n, ttl, err = c.Incr(context.Background(), "k", window)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if n != 2 || ttl != 40*time.Second {
		t.Fatalf("expected (2, 40s), got (%d, %v)", n, ttl)
	}

	// Independent keys hold independent windows.
	n, _, err = c.Incr(context.Background(), "other", window)
	if err != nil {
		t.Fatalf("incr other: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected fresh key at 1, got %d", n)
	}

	// The window closing restarts the count.
	now = base.Add(window)
	n, ttl, err = c.Incr(context.Background(), "k", window)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if n != 1 || ttl != window {
		t.Fatalf("expected restarted window (1, %v), got (%d, %v)", window, n, ttl)
	}
}

func TestMemoryCounter_Reset(t *testing.T) {
	t.Parallel()

	c := NewMemoryCounter()
	if _, _, err := c.Incr(context.Background(), "k", time.Minute); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if _, _, err := c.Incr(context.Background(), "k", time.Minute); err != nil {
		t.Fatalf("incr: %v", err)
	}

	if err := c.Reset(context.Background(), "k"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	n, _, err := c.Incr(context.Background(), "k", time.Minute)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected count restarted after reset, got %d", n)
	}
}

func TestLimiter_BlocksOverBudget(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := NewLimiter(NewMemoryCounter(), 2, time.Minute, log)

	for i := 0; i < 2; i++ {
		if blocked, _ := l.Hit(context.Background(), "login:ip:192.0.2.1"); blocked {
			t.Fatalf("expected attempt %d within budget", i+1)
		}
	}

	blocked, retryAfter := l.Hit(context.Background(), "login:ip:192.0.2.1")
	if !blocked {
		t.Fatalf("expected third attempt blocked")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("expected retry-after within the window, got %v", retryAfter)
	}

	// Other keys keep their own budget.
	if blocked, _ := l.Hit(context.Background(), "login:ip:192.0.2.2"); blocked {
		t.Fatalf("expected unrelated key unblocked")
	}

	l.Clear(context.Background(), "login:ip:192.0.2.1")
	if blocked, _ := l.Hit(context.Background(), "login:ip:192.0.2.1"); blocked {
		t.Fatalf("expected cleared key unblocked")
	}
}

func TestLimiter_ZeroBudgetDisables(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := NewLimiter(NewMemoryCounter(), 0, time.Minute, log)

	for i := 0; i < 10; i++ {
		if blocked, _ := l.Hit(context.Background(), "k"); blocked {
			t.Fatalf("expected disabled limiter to pass everything")
		}
	}
}

type failingCounter struct{}

func (failingCounter) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("backend down")
}

func (failingCounter) Reset(context.Context, string) error {
	return errors.New("backend down")
}

func TestLimiter_FailsOpen(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := NewLimiter(failingCounter{}, 1, time.Minute, log)

	for i := 0; i < 5; i++ {
		if blocked, _ := l.Hit(context.Background(), "k"); blocked {
			t.Fatalf("expected counter failure to allow the attempt")
		}
	}
	// Clear must tolerate the same failure.
	l.Clear(context.Background(), "k")
}
