// Package store is the distributed counter store shared by every service
// instance. It keeps window counters, cooldowns, verification code records
// and reset authorizations in Redis so no instance holds admission state in
// memory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound    = errors.New("store: record not found")
	ErrAlreadyUsed = errors.New("store: authorization already used")
	ErrUnavailable = errors.New("store: redis unavailable")
)

// base carries what every store type needs: a client, a key prefix and a
// per-call deadline.
type base struct {
	rdb     redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func (b base) key(parts ...string) string {
	k := b.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (b base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

func millis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}
