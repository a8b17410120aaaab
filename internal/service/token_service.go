package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-session-service/internal/config"
	"github.com/iliyamo/auth-session-service/internal/metrics"
	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/repository"
	"github.com/iliyamo/auth-session-service/internal/utils"
)

var (
	// ErrInvalidToken covers unknown, expired, revoked and malformed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenReused means a rotated refresh token was presented again and
	// the user's chain was revoked.
	ErrTokenReused = errors.New("refresh token reuse detected")
)

// RefreshTokenRepository persists refresh token chains.
type RefreshTokenRepository interface {
	Create(ctx context.Context, rec *model.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	Rotate(ctx context.Context, oldID string, next *model.RefreshToken, now time.Time) error
	Revoke(ctx context.Context, id string, now time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uint64, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserReader loads users by id.
type UserReader interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// TokenService issues access/refresh pairs and runs the refresh chain state
// machine: ACTIVE -> ROTATED on rotation, ACTIVE -> REVOKED on logout.
//
// Access tokens are stateless. Revoking a chain stops further refreshes but
// an access token already handed out stays valid until it expires, so the
// exposure window after a compromise is the access token TTL.
type TokenService struct {
	signer     *utils.AccessSigner
	tokens     RefreshTokenRepository
	users      UserReader
	refreshTTL time.Duration
	now        func() time.Time
	log        *zap.Logger
	metrics    *metrics.Metrics
}

// NewTokenService wires a TokenService. now may be nil.
func NewTokenService(cfg config.AuthConfig, tokens RefreshTokenRepository, users UserReader, log *zap.Logger, m *metrics.Metrics, now func() time.Time) *TokenService {
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		signer:     utils.NewAccessSigner(cfg.JWTSecret, cfg.Issuer, cfg.AccessTTL, now),
		tokens:     tokens,
		users:      users,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
		log:        log,
		metrics:    m,
	}
}

// Issue starts a new chain for the user.
func (s *TokenService) Issue(ctx context.Context, userID uint64, username string, role model.Role) (*model.TokenPair, error) {
	const op = "service.TokenService.Issue"

	pair, rec, err := s.newPair(userID, username, role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.tokens.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pair, nil
}

// VerifyAccess validates an access token and its identity claims.
func (s *TokenService) VerifyAccess(raw string) (utils.Identity, error) {
	if raw == "" {
		return utils.Identity{}, ErrInvalidToken
	}
	id, err := s.signer.Verify(raw)
	if err != nil {
		return utils.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return id, nil
}

// Rotate exchanges an active refresh token for a new pair. Presenting a
// rotated token, or losing a concurrent rotation of the same token, revokes
// every active token of the user and returns ErrTokenReused.
func (s *TokenService) Rotate(ctx context.Context, raw string) (*model.TokenPair, *model.User, error) {
	const op = "service.TokenService.Rotate"

	rec, err := s.lookup(ctx, raw)
	if err != nil {
		s.metrics.Refresh("invalid")
		return nil, nil, err
	}

	switch rec.State() {
	case model.RefreshRotated:
		return nil, nil, s.reuseDetected(ctx, rec.UserID, "rotated token presented")
	case model.RefreshRevoked:
		s.metrics.Refresh("invalid")
		return nil, nil, ErrInvalidToken
	}
	now := s.now().UTC()
	if !now.Before(rec.ExpiresAt) {
		s.metrics.Refresh("invalid")
		return nil, nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, rec.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		_, _ = s.tokens.Revoke(ctx, rec.ID, now)
		s.metrics.Refresh("invalid")
		return nil, nil, ErrInvalidToken
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, next, err := s.newPair(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.tokens.Rotate(ctx, rec.ID, next, now); err != nil {
		if errors.Is(err, repository.ErrNotActive) {
			return nil, nil, s.reuseDetected(ctx, rec.UserID, "concurrent rotation lost")
		}
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.Refresh("rotated")
	return pair, user, nil
}

// Revoke marks the refresh token revoked. Revoking an already revoked or
// rotated token is not an error; an unknown token is ErrInvalidToken.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	const op = "service.TokenService.Revoke"

	rec, err := s.lookup(ctx, raw)
	if err != nil {
		return err
	}
	if _, err := s.tokens.Revoke(ctx, rec.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RevokeAll revokes every active refresh token of the user.
func (s *TokenService) RevokeAll(ctx context.Context, userID uint64) (int64, error) {
	const op = "service.TokenService.RevokeAll"

	n, err := s.tokens.RevokeAllForUser(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// PurgeExpired deletes records that expired more than a refresh TTL ago,
// so reuse of a recently expired chain is still recognised.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	const op = "service.TokenService.PurgeExpired"

	n, err := s.tokens.DeleteExpired(ctx, s.now().UTC().Add(-s.refreshTTL))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (s *TokenService) lookup(ctx context.Context, raw string) (*model.RefreshToken, error) {
	const op = "service.TokenService.lookup"

	if raw == "" {
		return nil, ErrInvalidToken
	}
	rec, err := s.tokens.GetByHash(ctx, utils.HashSecret(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func (s *TokenService) reuseDetected(ctx context.Context, userID uint64, reason string) error {
	const op = "service.TokenService.reuseDetected"

	s.metrics.Refresh("reuse")
	n, err := s.tokens.RevokeAllForUser(ctx, userID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("%s: revoke chain: %w", op, err)
	}
	s.log.Warn("refresh token reuse detected, chain revoked",
		zap.Uint64("user_id", userID),
		zap.String("reason", reason),
		zap.Int64("revoked", n))
	return ErrTokenReused
}

func (s *TokenService) newPair(userID uint64, username string, role model.Role) (*model.TokenPair, *model.RefreshToken, error) {
	access, accessExp, err := s.signer.Sign(userID, username, string(role))
	if err != nil {
		return nil, nil, err
	}
	raw, err := utils.RandomHex(48)
	if err != nil {
		return nil, nil, err
	}
	now := s.now().UTC()
	rec := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: utils.HashSecret(raw),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	return &model.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     raw,
		RefreshExpiresAt: rec.ExpiresAt,
	}, rec, nil
}
