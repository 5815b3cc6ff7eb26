package throttle

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter shares fixed windows across replicas.
//
// INCR advances the window and the first hit sets its TTL, so counts
// survive process restarts for the remainder of the window.
type RedisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter wraps an existing Redis client.
func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Incr implements Counter.
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
	}

	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// Lost or never-set TTL: report the full window rather than guess.
		ttl = window
	}
	return n, ttl, nil
}

// Reset implements Counter.
func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}
