package ratelimit

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-session-service/internal/config"
	"github.com/iliyamo/auth-session-service/internal/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time { c.mu.Lock(); defer c.mu.Unlock(); return c.t }
func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:         true,
		Prefix:          "rl",
		FailOpen:        true,
		GlobalLimit:     100,
		GlobalWindow:    15 * time.Minute,
		SensitiveLimit:  3,
		SensitiveWindow: 15 * time.Minute,
		BurstLimit:      10,
		BurstWindow:     time.Second,
	}
}

func newLimiter(t *testing.T, cfg config.RateLimitConfig) (*Limiter, *miniredis.Miniredis, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := New(store.NewCounter(rdb, cfg.Prefix, 200*time.Millisecond), cfg, zap.NewNop(), WithClock(clk.Now))
	return l, mr, clk
}

func TestGlobalWindowDeniesAfterLimit(t *testing.T) {
	l, _, clk := newLimiter(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		d, err := l.Admit(ctx, "10.0.0.1", ScopeGlobal)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i+1)
	}
	d, err := l.Admit(ctx, "10.0.0.1", ScopeGlobal)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.EqualValues(t, 0, d.Remaining)
	require.Equal(t, 15*time.Minute, d.RetryAfter)

	// other clients are unaffected
	d, err = l.Admit(ctx, "10.0.0.2", ScopeGlobal)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	clk.Add(15 * time.Minute)
	d, err = l.Admit(ctx, "10.0.0.1", ScopeGlobal)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.EqualValues(t, 99, d.Remaining)
}

func TestDeniedRequestsDoNotExtendWindow(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalLimit = 1
	l, mr, clk := newLimiter(t, cfg)
	ctx := context.Background()

	_, err := l.Admit(ctx, "c", ScopeGlobal)
	require.NoError(t, err)

	clk.Add(5 * time.Minute)
	mr.FastForward(5 * time.Minute)
	d, err := l.Admit(ctx, "c", ScopeGlobal)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 10*time.Minute, d.RetryAfter)
}

func TestBurstCheckedFirst(t *testing.T) {
	l, _, clk := newLimiter(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d, err := l.AdmitAll(ctx, "c", ScopeBurst, ScopeGlobal)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.AdmitAll(ctx, "c", ScopeBurst, ScopeGlobal)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ScopeBurst, d.Scope)

	clk.Add(time.Second)
	d, err = l.AdmitAll(ctx, "c", ScopeBurst, ScopeGlobal)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	// denied burst never reached the global counter
	require.EqualValues(t, 89, d.Remaining)
}

func TestDisabledScope(t *testing.T) {
	cfg := testConfig()
	cfg.BurstLimit = 0
	l, _, _ := newLimiter(t, cfg)

	for i := 0; i < 50; i++ {
		d, err := l.Admit(context.Background(), "c", ScopeBurst)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
}

func TestSubMillisecondWindowRoundsUp(t *testing.T) {
	cfg := testConfig()
	cfg.BurstLimit, cfg.BurstWindow = 2, 500*time.Microsecond
	l, _, _ := newLimiter(t, cfg)

	for i := 0; i < 2; i++ {
		d, err := l.Admit(context.Background(), "c", ScopeBurst)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Admit(context.Background(), "c", ScopeBurst)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.LessOrEqual(t, d.RetryAfter, time.Millisecond)
}

func TestFailOpen(t *testing.T) {
	l, mr, _ := newLimiter(t, testConfig())
	mr.Close()

	d, err := l.Admit(context.Background(), "c", ScopeGlobal)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.True(t, d.Degraded)
}

func TestFailClosed(t *testing.T) {
	cfg := testConfig()
	cfg.FailOpen = false
	l, mr, _ := newLimiter(t, cfg)
	mr.Close()

	_, err := l.Admit(context.Background(), "c", ScopeGlobal)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestSharedAcrossInstances(t *testing.T) {
	cfg := testConfig()
	cfg.SensitiveLimit = 2
	mr := miniredis.RunT(t)
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	mk := func() *Limiter {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return New(store.NewCounter(rdb, "rl", 0), cfg, zap.NewNop(), WithClock(clk.Now))
	}
	a, b := mk(), mk()
	ctx := context.Background()

	d, err := a.Admit(ctx, "c", ScopeSensitive)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = b.Admit(ctx, "c", ScopeSensitive)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = a.Admit(ctx, "c", ScopeSensitive)
	require.NoError(t, err)
	require.False(t, d.Allowed)
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.7:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	require.Equal(t, "192.0.2.7", ClientKey(r))

	r.RemoteAddr = ""
	r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	require.Equal(t, "203.0.113.9", ClientKey(r))

	r.Header.Del("X-Forwarded-For")
	require.Equal(t, UnknownClient, ClientKey(r))
}
