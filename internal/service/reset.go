package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/auth-session-service/internal/store"
	"github.com/iliyamo/auth-session-service/internal/utils"
)

// ErrResetUnauthorized covers unknown, expired and already used reset
// authorizations.
var ErrResetUnauthorized = errors.New("reset authorization invalid")

// ResetRecords stores reset authorizations.
type ResetRecords interface {
	Grant(ctx context.Context, tokenHash string, userID uint64, ttl time.Duration) error
	Consume(ctx context.Context, tokenHash, fingerprint string) (uint64, bool, error)
	Release(ctx context.Context, tokenHash string) error
}

// ResetGrant is handed to the client after a reset code was verified.
type ResetGrant struct {
	Token     string
	ExpiresAt time.Time
}

// ResetAuthorizer issues and redeems the short-lived authorization that sits
// between verify-reset-password and reset-password.
type ResetAuthorizer struct {
	records ResetRecords
	ttl     time.Duration
	now     func() time.Time
}

// NewResetAuthorizer wires a ResetAuthorizer. now may be nil.
func NewResetAuthorizer(records ResetRecords, ttl time.Duration, now func() time.Time) *ResetAuthorizer {
	if now == nil {
		now = time.Now
	}
	return &ResetAuthorizer{records: records, ttl: ttl, now: now}
}

// Grant creates an authorization for userID.
func (a *ResetAuthorizer) Grant(ctx context.Context, userID uint64) (ResetGrant, error) {
	const op = "service.ResetAuthorizer.Grant"

	token, err := utils.RandomHex(32)
	if err != nil {
		return ResetGrant{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.records.Grant(ctx, utils.HashSecret(token), userID, a.ttl); err != nil {
		return ResetGrant{}, fmt.Errorf("%s: %w", op, err)
	}
	return ResetGrant{Token: token, ExpiresAt: a.now().UTC().Add(a.ttl)}, nil
}

// Redeem marks the authorization used for this new password. replay is true
// when the identical request was already applied.
func (a *ResetAuthorizer) Redeem(ctx context.Context, token, newPassword string) (userID uint64, replay bool, err error) {
	const op = "service.ResetAuthorizer.Redeem"

	if token == "" {
		return 0, false, ErrResetUnauthorized
	}
	fp := utils.HashSecret(token + ":" + newPassword)
	userID, replay, err = a.records.Consume(ctx, utils.HashSecret(token), fp)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAlreadyUsed) {
		return 0, false, ErrResetUnauthorized
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return userID, replay, nil
}

// Release makes a redeemed authorization usable again.
func (a *ResetAuthorizer) Release(ctx context.Context, token string) error {
	return a.records.Release(ctx, utils.HashSecret(token))
}
