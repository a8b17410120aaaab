package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/auth-session-service/internal/config"
	"github.com/iliyamo/auth-session-service/internal/metrics"
	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/store"
	"github.com/iliyamo/auth-session-service/internal/utils"
)

// ErrCooldown is matched by *CooldownError.
var ErrCooldown = errors.New("code resend cooldown active")

// CooldownError reports how long a caller must wait before a resend.
type CooldownError struct{ RetryAfter time.Duration }

func (e *CooldownError) Error() string {
	return fmt.Sprintf("code resend cooldown active, retry in %s", e.RetryAfter)
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldown }

// RejectedError is returned by Verify for every outcome except success.
type RejectedError struct{ Outcome model.VerifyOutcome }

func (e *RejectedError) Error() string { return "verification code rejected: " + string(e.Outcome) }

// CodeRecords is the verification code store.
type CodeRecords interface {
	Save(ctx context.Context, rec model.VerificationCode) error
	Verify(ctx context.Context, purpose model.CodePurpose, userID uint64, codeHash string, maxAttempts int, now time.Time) (model.VerifyOutcome, error)
	Delete(ctx context.Context, purpose model.CodePurpose, userID uint64) error
}

// Cooldowns is the counter primitive the rate limiter also uses.
type Cooldowns interface {
	Hit(ctx context.Context, key string, ttl time.Duration) (store.Hit, error)
	Start(ctx context.Context, key string, ttl time.Duration) error
}

// IssuedCode is a freshly generated code. Code is the only copy of the
// plain value; it must go to the notifier and nowhere else.
type IssuedCode struct {
	UserID    uint64
	Purpose   model.CodePurpose
	Code      string
	ExpiresAt time.Time
}

// CodeService generates, resends and verifies single-use codes.
type CodeService struct {
	records  CodeRecords
	cooldown Cooldowns
	cfg      config.CodeConfig
	now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewCodeService wires a CodeService. now may be nil.
func NewCodeService(records CodeRecords, cooldown Cooldowns, cfg config.CodeConfig, log *zap.Logger, m *metrics.Metrics, now func() time.Time) *CodeService {
	if now == nil {
		now = time.Now
	}
	return &CodeService{records: records, cooldown: cooldown, cfg: cfg, now: now, log: log, metrics: m}
}

// Issue replaces any active code for (user, purpose) and arms the resend
// cooldown.
func (s *CodeService) Issue(ctx context.Context, userID uint64, purpose model.CodePurpose) (IssuedCode, error) {
	const op = "service.CodeService.Issue"

	issued, err := s.generate(ctx, userID, purpose)
	if err != nil {
		return IssuedCode{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.cfg.ResendCooldown > 0 {
		if err := s.cooldown.Start(ctx, cooldownKey(purpose, userID), s.cfg.ResendCooldown); err != nil {
			return IssuedCode{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	s.metrics.Code(string(purpose), "issued")
	return issued, nil
}

// Resend issues a new code unless the previous one was sent less than the
// cooldown ago, in which case it returns a *CooldownError.
func (s *CodeService) Resend(ctx context.Context, userID uint64, purpose model.CodePurpose) (IssuedCode, error) {
	const op = "service.CodeService.Resend"

	if s.cfg.ResendCooldown > 0 {
		hit, err := s.cooldown.Hit(ctx, cooldownKey(purpose, userID), s.cfg.ResendCooldown)
		if err != nil {
			return IssuedCode{}, fmt.Errorf("%s: %w", op, err)
		}
		if hit.Count > 1 {
			s.metrics.Code(string(purpose), "cooldown")
			return IssuedCode{}, &CooldownError{RetryAfter: hit.TTL}
		}
	}

	issued, err := s.generate(ctx, userID, purpose)
	if err != nil {
		return IssuedCode{}, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.Code(string(purpose), "resent")
	return issued, nil
}

// Verify consumes the code on success. Any other outcome is returned as a
// *RejectedError.
func (s *CodeService) Verify(ctx context.Context, userID uint64, purpose model.CodePurpose, code string) error {
	const op = "service.CodeService.Verify"

	if s.cfg.Alphabet == "alphanumeric" {
		code = strings.ToUpper(strings.TrimSpace(code))
	}
	out, err := s.records.Verify(ctx, purpose, userID, utils.HashSecret(code), s.cfg.MaxAttempts, s.now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if out != model.VerifyOK {
		s.metrics.Code(string(purpose), "rejected")
		s.log.Info("verification code rejected",
			zap.Uint64("user_id", userID),
			zap.String("purpose", string(purpose)),
			zap.String("outcome", string(out)))
		return &RejectedError{Outcome: out}
	}
	s.metrics.Code(string(purpose), "verified")
	return nil
}

func (s *CodeService) generate(ctx context.Context, userID uint64, purpose model.CodePurpose) (IssuedCode, error) {
	code, err := utils.NewCode(s.cfg.Length, s.cfg.Alphabet)
	if err != nil {
		return IssuedCode{}, err
	}
	now := s.now().UTC()
	rec := model.VerificationCode{
		UserID:     userID,
		Purpose:    purpose,
		CodeHash:   utils.HashSecret(code),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.TTL),
		LastSentAt: now,
	}
	if err := s.records.Save(ctx, rec); err != nil {
		return IssuedCode{}, err
	}
	return IssuedCode{UserID: userID, Purpose: purpose, Code: code, ExpiresAt: rec.ExpiresAt}, nil
}

func cooldownKey(purpose model.CodePurpose, userID uint64) string {
	return string(purpose) + ":" + strconv.FormatUint(userID, 10)
}
