package router

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/queue"
	"github.com/iliyamo/auth-session-service/internal/repository"
)

type memUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.User
}

func (f *memUsers) Create(_ context.Context, u *model.User) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := repository.NormalizeEmail(u.Email)
	for _, existing := range f.byID {
		if existing.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	f.nextID++
	cp := *u
	cp.ID, cp.Email = f.nextID, email
	f.byID[cp.ID] = &cp
	return cp.ID, nil
}

func (f *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
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

func (f *memUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *memUsers) MarkVerified(_ context.Context, id uint64) error {
	return f.update(id, func(u *model.User) { u.IsVerified = true })
}

func (f *memUsers) UpdatePassword(_ context.Context, id uint64, hash string) error {
	return f.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (f *memUsers) update(id uint64, fn func(*model.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

type memTokens struct {
	mu   sync.Mutex
	recs map[string]*model.RefreshToken
}

func (f *memTokens) Create(_ context.Context, rec *model.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.recs[rec.ID] = &cp
	return nil
}

func (f *memTokens) GetByHash(_ context.Context, hash string) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recs {
		if r.TokenHash != hash {
			continue
		}
		cp := *r
		for _, other := range f.recs {
			if other.ReplacesID != nil && *other.ReplacesID == r.ID {
				cp.HasSuccessor = true
			}
		}
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *memTokens) Rotate(_ context.Context, oldID string, next *model.RefreshToken, now time.Time) error {
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

func (f *memTokens) Revoke(_ context.Context, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[id]
	if !ok || r.RevokedAt != nil {
		return false, nil
	}
	r.RevokedAt = &now
	return true, nil
}

func (f *memTokens) RevokeAllForUser(_ context.Context, userID uint64, now time.Time) (int64, error) {
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

func (f *memTokens) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type codeSink struct {
	mu     sync.Mutex
	events []queue.CodeIssuedEvent
}

func (n *codeSink) NotifyCode(_ context.Context, ev queue.CodeIssuedEvent) error {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	return nil
}

func (n *codeSink) last(purpose model.CodePurpose) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Purpose == string(purpose) {
			return n.events[i].Code
		}
	}
	return ""
}
