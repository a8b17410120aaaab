package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-session-service/internal/config"
	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/queue"
	"github.com/iliyamo/auth-session-service/internal/repository"
	"github.com/iliyamo/auth-session-service/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uint64]*model.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *model.User) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == repository.NormalizeEmail(u.Email) {
			return 0, repository.ErrEmailExists
		}
	}
	f.nextID++
	cp := *u
	cp.ID = f.nextID
	cp.Email = repository.NormalizeEmail(u.Email)
	f.byID[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == repository.NormalizeEmail(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) MarkVerified(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsVerified = true
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uint64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUsers) delete(id uint64) {
	f.mu.Lock()
	delete(f.byID, id)
	f.mu.Unlock()
}

// fakeRefresh mirrors the MySQL repository: Rotate's check-and-revoke is
// atomic under the mutex like the conditional UPDATE under the row lock.
type fakeRefresh struct {
	mu   sync.Mutex
	recs map[string]*model.RefreshToken
}

func newFakeRefresh() *fakeRefresh { return &fakeRefresh{recs: map[string]*model.RefreshToken{}} }

func (f *fakeRefresh) Create(_ context.Context, rec *model.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.recs[rec.ID] = &cp
	return nil
}

func (f *fakeRefresh) GetByHash(_ context.Context, hash string) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recs {
		if r.TokenHash == hash {
			cp := *r
			cp.HasSuccessor = f.hasSuccessor(r.ID)
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRefresh) hasSuccessor(id string) bool {
	for _, r := range f.recs {
		if r.ReplacesID != nil && *r.ReplacesID == id {
			return true
		}
	}
	return false
}

func (f *fakeRefresh) Rotate(_ context.Context, oldID string, next *model.RefreshToken, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.recs[oldID]
	if !ok || old.RevokedAt != nil {
		return repository.ErrNotActive
	}
	old.RevokedAt = &now
	next.ReplacesID = &oldID
	cp := *next
	f.recs[next.ID] = &cp
	return nil
}

func (f *fakeRefresh) Revoke(_ context.Context, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[id]
	if !ok || r.RevokedAt != nil {
		return false, nil
	}
	r.RevokedAt = &now
	return true, nil
}

func (f *fakeRefresh) RevokeAllForUser(_ context.Context, userID uint64, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.recs {
		if r.UserID == userID && r.RevokedAt == nil {
			r.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (f *fakeRefresh) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.recs {
		if r.ExpiresAt.Before(cutoff) {
			delete(f.recs, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeRefresh) active(userID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.recs {
		if r.UserID == userID && r.RevokedAt == nil {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []queue.CodeIssuedEvent
}

func (n *recordingNotifier) NotifyCode(_ context.Context, ev queue.CodeIssuedEvent) error {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) last(t *testing.T, purpose model.CodePurpose) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Purpose == string(purpose) {
			return n.events[i].Code
		}
	}
	t.Fatalf("no %s code delivered", purpose)
	return ""
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:    "0123456789abcdef-test-secret",
		Issuer:       "auth-test",
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   24 * time.Hour,
		ResetAuthTTL: 10 * time.Minute,
		BcryptCost:   4,
	}
}

func testCodeConfig() config.CodeConfig {
	return config.CodeConfig{
		Length:         6,
		Alphabet:       "numeric",
		TTL:            10 * time.Minute,
		ResendCooldown: 60 * time.Second,
		MaxAttempts:    3,
	}
}

type harness struct {
	clock    *fakeClock
	mr       *miniredis.Miniredis
	users    *fakeUsers
	refresh  *fakeRefresh
	notifier *recordingNotifier
	tokens   *TokenService
	codes    *CodeService
	resets   *ResetAuthorizer
	auth     *AuthService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		clock:    &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		mr:       mr,
		users:    newFakeUsers(),
		refresh:  newFakeRefresh(),
		notifier: &recordingNotifier{},
	}
	authCfg := testAuthConfig()
	log := zap.NewNop()

	h.tokens = NewTokenService(authCfg, h.refresh, h.users, log, nil, h.clock.Now)
	h.codes = NewCodeService(
		store.NewCodeStore(rdb, "code", 0),
		store.NewCounter(rdb, "cooldown", 0),
		testCodeConfig(), log, nil, h.clock.Now)
	h.resets = NewResetAuthorizer(store.NewResetStore(rdb, "reset", 0), authCfg.ResetAuthTTL, h.clock.Now)
	h.auth = NewAuthService(h.users, h.tokens, h.codes, h.resets, h.notifier, authCfg.BcryptCost, log)
	return h
}

// verifiedUser registers and verifies an account, returning its id.
func (h *harness) verifiedUser(t *testing.T, email, password string) uint64 {
	t.Helper()
	ctx := context.Background()
	u, err := h.auth.Register(ctx, RegisterInput{Username: "user" + email[:1], Email: email, Password: password})
	require.NoError(t, err)
	_, err = h.auth.VerifyAccount(ctx, email, h.notifier.last(t, model.PurposeAccountVerify))
	require.NoError(t, err)
	return u.ID
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), "error: %v", err)
}
