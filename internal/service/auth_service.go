package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/queue"
	"github.com/iliyamo/auth-session-service/internal/repository"
	"github.com/iliyamo/auth-session-service/internal/utils"
)

//go:generate mockgen -destination=../mocks/mock_user_repository.go -package=mocks . UserRepository
//go:generate mockgen -destination=../mocks/mock_code_notifier.go -package=mocks . CodeNotifier

// UserRepository persists the fields of a user the auth flow needs.
type UserRepository interface {
	UserReader
	Create(ctx context.Context, u *model.User) (uint64, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	MarkVerified(ctx context.Context, id uint64) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
}

// CodeNotifier delivers a code out of band.
type CodeNotifier interface {
	NotifyCode(ctx context.Context, ev queue.CodeIssuedEvent) error
}

// Session is the result of a login or refresh.
type Session struct {
	User   *model.User
	Tokens *model.TokenPair
}

// RegisterInput carries validated registration fields.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

const (
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidRefresh     = "Invalid refresh token"
	msgUnauthorized       = "Unauthorized"
	msgUserNotFound       = "User not found"
	msgPasswordTooLong    = "Password must be at most 72 bytes"
)

// AuthService sequences the components for each endpoint and translates
// their errors into *Error values. Rate limiting and input validation run in
// the HTTP layer before these methods are reached.
type AuthService struct {
	users      UserRepository
	tokens     *TokenService
	codes      *CodeService
	resets     *ResetAuthorizer
	notifier   CodeNotifier
	bcryptCost int
	log        *zap.Logger
}

// NewAuthService wires an AuthService.
func NewAuthService(users UserRepository, tokens *TokenService, codes *CodeService, resets *ResetAuthorizer, notifier CodeNotifier, bcryptCost int, log *zap.Logger) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		codes:      codes,
		resets:     resets,
		notifier:   notifier,
		bcryptCost: bcryptCost,
		log:        log,
	}
}

// Register creates an unverified USER and sends an account-verify code.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	const op = "service.AuthService.Register"

	email := repository.NormalizeEmail(in.Email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, newError(KindConflict, "Email is already registered", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, internalError(op, err)
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return nil, newError(KindValidation, msgPasswordTooLong, err)
	}
	if err != nil {
		return nil, internalError(op, err)
	}
	u := &model.User{
		Username:     in.Username,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
	}
	id, err := s.users.Create(ctx, u)
	if errors.Is(err, repository.ErrEmailExists) {
		return nil, newError(KindConflict, "Email is already registered", err)
	}
	if err != nil {
		return nil, internalError(op, err)
	}
	u.ID = id

	// The account exists from here; a missing code is recovered through
	// resend-code.
	issued, err := s.codes.Issue(ctx, u.ID, model.PurposeAccountVerify)
	if err != nil {
		s.log.Warn("issue verification code after register",
			zap.Uint64("user_id", u.ID),
			zap.Error(err))
		return u, nil
	}
	s.notify(ctx, u, issued)
	return u, nil
}

// Login checks the password, requires a verified account and starts a new
// token chain.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	const op = "service.AuthService.Login"

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, internalError(op, err)
	}
	hash := ""
	if u != nil {
		hash = u.PasswordHash
	}
	if err := utils.CheckPassword(hash, password); err != nil || u == nil {
		if err != nil && !errors.Is(err, utils.ErrPasswordMismatch) {
			return nil, internalError(op, err)
		}
		return nil, newError(KindUnauthorized, msgInvalidCredentials, nil)
	}
	if !u.IsVerified {
		return nil, newError(KindForbidden, "Account is not verified", nil)
	}

	pair, err := s.tokens.Issue(ctx, u.ID, u.Username, u.Role)
	if err != nil {
		return nil, internalError(op, err)
	}
	return &Session{User: u, Tokens: pair}, nil
}

// VerifyAccount consumes an account-verify code and marks the user verified.
func (s *AuthService) VerifyAccount(ctx context.Context, email, code string) (*model.User, error) {
	const op = "service.AuthService.VerifyAccount"

	u, err := s.userByEmail(ctx, op, email)
	if err != nil {
		return nil, err
	}
	if u.IsVerified {
		return nil, newError(KindValidation, "Account is already verified", nil)
	}
	if err := s.codes.Verify(ctx, u.ID, model.PurposeAccountVerify, code); err != nil {
		return nil, s.codeError(op, err)
	}
	if err := s.users.MarkVerified(ctx, u.ID); err != nil {
		return nil, internalError(op, err)
	}
	u.IsVerified = true
	return u, nil
}

// ResendVerification reissues the account-verify code, cooldown permitting.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	const op = "service.AuthService.ResendVerification"

	u, err := s.userByEmail(ctx, op, email)
	if err != nil {
		return err
	}
	if u.IsVerified {
		return newError(KindValidation, "Account is already verified", nil)
	}
	issued, err := s.codes.Resend(ctx, u.ID, model.PurposeAccountVerify)
	if err != nil {
		return s.codeError(op, err)
	}
	s.notify(ctx, u, issued)
	return nil
}

// ForgotPassword issues a password-reset code.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	const op = "service.AuthService.ForgotPassword"

	u, err := s.userByEmail(ctx, op, email)
	if err != nil {
		return err
	}
	issued, err := s.codes.Issue(ctx, u.ID, model.PurposePasswordReset)
	if err != nil {
		return internalError(op, err)
	}
	s.notify(ctx, u, issued)
	return nil
}

// ResendResetCode reissues the password-reset code, cooldown permitting.
func (s *AuthService) ResendResetCode(ctx context.Context, email string) error {
	const op = "service.AuthService.ResendResetCode"

	u, err := s.userByEmail(ctx, op, email)
	if err != nil {
		return err
	}
	issued, err := s.codes.Resend(ctx, u.ID, model.PurposePasswordReset)
	if err != nil {
		return s.codeError(op, err)
	}
	s.notify(ctx, u, issued)
	return nil
}

// VerifyResetPassword consumes a password-reset code and returns the
// authorization reset-password requires.
func (s *AuthService) VerifyResetPassword(ctx context.Context, email, code string) (ResetGrant, error) {
	const op = "service.AuthService.VerifyResetPassword"

	u, err := s.userByEmail(ctx, op, email)
	if err != nil {
		return ResetGrant{}, err
	}
	if err := s.codes.Verify(ctx, u.ID, model.PurposePasswordReset, code); err != nil {
		return ResetGrant{}, s.codeError(op, err)
	}
	grant, err := s.resets.Grant(ctx, u.ID)
	if err != nil {
		return ResetGrant{}, internalError(op, err)
	}
	return grant, nil
}

// ResetPassword sets a new password using a reset authorization and revokes
// every refresh token of the user. Repeating the same request succeeds
// without applying it twice.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "service.AuthService.ResetPassword"

	if len(newPassword) > utils.MaxPasswordBytes {
		return newError(KindValidation, msgPasswordTooLong, utils.ErrPasswordTooLong)
	}
	userID, replay, err := s.resets.Redeem(ctx, token, newPassword)
	if errors.Is(err, ErrResetUnauthorized) {
		return newError(KindUnauthorized, "Invalid or expired reset authorization", err)
	}
	if err != nil {
		return internalError(op, err)
	}
	if replay {
		return nil
	}

	hash, err := utils.HashPassword(newPassword, s.bcryptCost)
	if err == nil {
		err = s.users.UpdatePassword(ctx, userID, hash)
	}
	if err != nil {
		if rerr := s.resets.Release(ctx, token); rerr != nil {
			s.log.Error("release reset authorization", zap.Error(rerr))
		}
		return internalError(op, err)
	}

	if n, err := s.tokens.RevokeAll(ctx, userID); err != nil {
		s.log.Error("revoke sessions after password reset", zap.Uint64("user_id", userID), zap.Error(err))
	} else {
		s.log.Info("password reset", zap.Uint64("user_id", userID), zap.Int64("sessions_revoked", n))
	}
	return nil
}

// Refresh rotates the refresh token. Reuse and every other invalid token
// look the same to the caller.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	const op = "service.AuthService.Refresh"

	pair, u, err := s.tokens.Rotate(ctx, refreshToken)
	if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenReused) {
		return nil, newError(KindUnauthorized, msgInvalidRefresh, err)
	}
	if err != nil {
		return nil, internalError(op, err)
	}
	return &Session{User: u, Tokens: pair}, nil
}

// Logout revokes the refresh token if one is presented. Unknown or already
// revoked tokens still log out.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.AuthService.Logout"

	if refreshToken == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil && !errors.Is(err, ErrInvalidToken) {
		return internalError(op, err)
	}
	return nil
}

// Authenticate verifies an access token.
func (s *AuthService) Authenticate(accessToken string) (utils.Identity, error) {
	id, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return utils.Identity{}, newError(KindUnauthorized, msgUnauthorized, err)
	}
	return id, nil
}

// CheckAuth re-reads the user behind an authenticated identity; a deleted or
// unverified account is Unauthorized even with a valid token.
func (s *AuthService) CheckAuth(ctx context.Context, userID uint64) (*model.User, error) {
	const op = "service.AuthService.CheckAuth"

	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindUnauthorized, msgUnauthorized, err)
	}
	if err != nil {
		return nil, internalError(op, err)
	}
	if !u.IsVerified {
		return nil, newError(KindUnauthorized, msgUnauthorized, nil)
	}
	return u, nil
}

// RevokeSessions revokes every refresh token of a user.
func (s *AuthService) RevokeSessions(ctx context.Context, userID uint64) (int64, error) {
	const op = "service.AuthService.RevokeSessions"

	if _, err := s.users.GetByID(ctx, userID); errors.Is(err, repository.ErrNotFound) {
		return 0, newError(KindNotFound, msgUserNotFound, err)
	} else if err != nil {
		return 0, internalError(op, err)
	}
	n, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return 0, internalError(op, err)
	}
	return n, nil
}

func (s *AuthService) userByEmail(ctx context.Context, op, email string) (*model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, msgUserNotFound, err)
	}
	if err != nil {
		return nil, internalError(op, err)
	}
	return u, nil
}

func (s *AuthService) codeError(op string, err error) error {
	var cooldown *CooldownError
	if errors.As(err, &cooldown) {
		return &Error{
			Kind:       KindRateLimited,
			Message:    "Please wait before requesting another code",
			RetryAfter: cooldown.RetryAfter,
			Err:        err,
		}
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		switch rejected.Outcome {
		case model.VerifyExpired:
			return newError(KindValidation, "Verification code has expired", err)
		case model.VerifyMismatch:
			return newError(KindValidation, "Invalid verification code", err)
		case model.VerifyExceededAttempts:
			return newError(KindValidation, "Too many failed attempts, request a new code", err)
		default:
			return newError(KindValidation, "No active verification code", err)
		}
	}
	return internalError(op, err)
}

func (s *AuthService) notify(ctx context.Context, u *model.User, issued IssuedCode) {
	ev := queue.CodeIssuedEvent{
		UserID:    u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Purpose:   string(issued.Purpose),
		Code:      issued.Code,
		ExpiresAt: issued.ExpiresAt.Format(time.RFC3339),
		IssuedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	// Delivery failure leaves the code valid; the user can ask for a resend.
	if err := s.notifier.NotifyCode(ctx, ev); err != nil {
		s.log.Warn("code delivery failed",
			zap.Uint64("user_id", u.ID),
			zap.String("purpose", ev.Purpose),
			zap.Error(err))
	}
}
