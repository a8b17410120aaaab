// Package ratelimit admits or denies requests per client using fixed-window
// counters kept in the distributed counter store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/auth-session-service/internal/config"
	"github.com/iliyamo/auth-session-service/internal/metrics"
	"github.com/iliyamo/auth-session-service/internal/store"
)

// ErrStoreUnavailable is returned in fail-closed mode when the counter store
// cannot be reached.
var ErrStoreUnavailable = errors.New("ratelimit: counter store unavailable")

// Scope names a request budget.
type Scope string

const (
	ScopeBurst     Scope = "burst"
	ScopeGlobal    Scope = "global"
	ScopeSensitive Scope = "sensitive"
)

// Rule is a budget of Limit requests per Window. Limit <= 0 disables it.
type Rule struct {
	Limit  int64
	Window time.Duration
}

// Decision is the result of one admission check.
type Decision struct {
	Scope      Scope
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
	// Degraded is set when the store failed and the request was let through.
	Degraded bool
}

// Counter is the subset of store.Counter the limiter needs.
type Counter interface {
	Hit(ctx context.Context, key string, ttl time.Duration) (store.Hit, error)
}

// Limiter holds no per-client state of its own; every count lives in the
// Counter so all instances share one budget.
type Limiter struct {
	counter  Counter
	rules    map[Scope]Rule
	failOpen bool
	now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source used to compute window ids.
func WithClock(now func() time.Time) Option { return func(l *Limiter) { l.now = now } }

// WithMetrics records every decision.
func WithMetrics(m *metrics.Metrics) Option { return func(l *Limiter) { l.metrics = m } }

// New builds a limiter from cfg.
func New(counter Counter, cfg config.RateLimitConfig, log *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		counter: counter,
		rules: map[Scope]Rule{
			ScopeBurst:     {Limit: cfg.BurstLimit, Window: cfg.BurstWindow},
			ScopeGlobal:    {Limit: cfg.GlobalLimit, Window: cfg.GlobalWindow},
			ScopeSensitive: {Limit: cfg.SensitiveLimit, Window: cfg.SensitiveWindow},
		},
		failOpen: cfg.FailOpen,
		now:      time.Now,
		log:      log,
	}
	for scope, r := range l.rules {
		// Window ids are counted in whole milliseconds.
		if r.Window > 0 && r.Window < time.Millisecond {
			r.Window = time.Millisecond
			l.rules[scope] = r
		}
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Admit counts one request from clientKey against scope. In fail-open mode a
// store error yields an allowed, degraded decision; otherwise it is returned
// wrapped in ErrStoreUnavailable.
func (l *Limiter) Admit(ctx context.Context, clientKey string, scope Scope) (Decision, error) {
	const op = "ratelimit.Admit"

	rule, ok := l.rules[scope]
	if !ok {
		return Decision{}, fmt.Errorf("%s: unknown scope %q", op, scope)
	}
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{Scope: scope, Allowed: true}, nil
	}

	now := l.now()
	windowID := now.UnixMilli() / rule.Window.Milliseconds()
	windowEnd := time.UnixMilli((windowID + 1) * rule.Window.Milliseconds())
	key := string(scope) + ":" + clientKey + ":" + strconv.FormatInt(windowID, 10)

	hit, err := l.counter.Hit(ctx, key, windowEnd.Sub(now))
	if err != nil {
		if l.failOpen {
			l.log.Warn("rate limit store unavailable, admitting request",
				zap.String("scope", string(scope)),
				zap.String("client", clientKey),
				zap.Error(err))
			l.metrics.RateLimit(string(scope), "degraded")
			return Decision{Scope: scope, Allowed: true, Limit: rule.Limit, Degraded: true}, nil
		}
		l.metrics.RateLimit(string(scope), "error")
		return Decision{}, fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}

	d := Decision{
		Scope:      scope,
		Allowed:    hit.Count <= rule.Limit,
		Limit:      rule.Limit,
		Remaining:  max(rule.Limit-hit.Count, 0),
		RetryAfter: hit.TTL,
	}
	if !d.Allowed {
		l.log.Warn("rate limit exceeded",
			zap.String("scope", string(scope)),
			zap.String("client", clientKey),
			zap.Int64("count", hit.Count),
			zap.Int64("limit", rule.Limit))
		l.metrics.RateLimit(string(scope), "denied")
		return d, nil
	}
	l.metrics.RateLimit(string(scope), "allowed")
	return d, nil
}

// AdmitAll checks scopes in order and stops at the first denial.
func (l *Limiter) AdmitAll(ctx context.Context, clientKey string, scopes ...Scope) (Decision, error) {
	var last Decision
	for _, s := range scopes {
		d, err := l.Admit(ctx, clientKey, s)
		if err != nil || !d.Allowed {
			return d, err
		}
		last = d
	}
	return last, nil
}
