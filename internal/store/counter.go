package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitLua increments a counter and arms its TTL on the first hit only, so
// later hits never extend the window.
// KEYS[1] = counter key
// ARGV[1] = ttl in milliseconds
// Returns {count, remaining ttl ms}.
var hitLua = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// Hit is the state of a counter right after an increment.
type Hit struct {
	Count int64
	TTL   time.Duration
}

// Counter is the fixed-window primitive used by the rate limiter and by the
// code resend cooldown.
type Counter struct{ base }

// NewCounter returns a Counter whose keys start with prefix.
func NewCounter(rdb redis.UniversalClient, prefix string, timeout time.Duration) *Counter {
	return &Counter{base{rdb: rdb, prefix: prefix, timeout: timeout}}
}

// Hit increments key. The key expires ttl after its first hit.
func (c *Counter) Hit(ctx context.Context, key string, ttl time.Duration) (Hit, error) {
	const op = "store.Counter.Hit"

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := hitLua.Run(ctx, c.rdb, []string{c.key(key)}, millis(ttl)).Int64Slice()
	if err != nil {
		return Hit{}, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	if len(res) != 2 {
		return Hit{}, fmt.Errorf("%s: %w: unexpected reply %v", op, ErrUnavailable, res)
	}
	return Hit{Count: res[0], TTL: time.Duration(res[1]) * time.Millisecond}, nil
}

// Start arms key as if it had been hit once, replacing any previous window.
func (c *Counter) Start(ctx context.Context, key string, ttl time.Duration) error {
	const op = "store.Counter.Start"

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.rdb.Set(ctx, c.key(key), 1, time.Duration(millis(ttl))*time.Millisecond).Err(); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return nil
}

// Clear drops key.
func (c *Counter) Clear(ctx context.Context, key string) error {
	const op = "store.Counter.Clear"

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return nil
}
