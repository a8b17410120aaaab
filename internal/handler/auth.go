package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/middleware"
	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/service"
)

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Auth    *service.AuthService
	Cookies Cookies
	Timeout time.Duration
}

func NewAuthHandler(auth *service.AuthService, cookies Cookies, timeout time.Duration) *AuthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuthHandler{Auth: auth, Cookies: cookies, Timeout: timeout}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username" validate:"required,alphanum,min=3,max=32"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,strongpwd,pwbytes"`
}
type loginReq struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,pwbytes"`
}
type emailReq struct {
	Email string `json:"email" validate:"required,email,max=255"`
}
type codeReq struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Code  string `json:"code" validate:"required,alphanum,min=4,max=12"`
}
type resetReq struct {
	ResetToken string `json:"reset_token"`
	Password   string `json:"password" validate:"required,strongpwd,pwbytes"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}
type authResp struct {
	Success bool      `json:"success"`
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toUserPart(u *model.User) userPart {
	return userPart{ID: u.ID, Username: u.Username, Email: u.Email, Role: string(u.Role)}
}

func (h *AuthHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.Timeout)
}

// bindValid binds the body into req and runs the registered validator.
func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}
	return c.Validate(req)
}

func message(msg string) echo.Map { return echo.Map{"success": true, "message": msg} }

// Register creates an unverified account and sends a verification code.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	u, err := h.Auth.Register(ctx, service.RegisterInput{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Registration successful, check your email for the verification code",
		"user":    toUserPart(u),
	})
}

// Login checks credentials and starts a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	return h.session(c, s)
}

// Refresh rotates the presented refresh token. The token comes from the
// refreshToken cookie, or the body for non-browser clients.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}
	raw := cookieValue(c, RefreshCookie)
	if raw == "" {
		raw = req.RefreshToken
	}
	if raw == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Refresh token is required")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.Auth.Refresh(ctx, raw)
	if err != nil {
		if service.KindOf(err) == service.KindUnauthorized {
			h.Cookies.ClearSession(c)
		}
		return err
	}
	return h.session(c, s)
}

func (h *AuthHandler) session(c echo.Context, s *service.Session) error {
	h.Cookies.SetSession(c, s.Tokens)
	return c.JSON(http.StatusOK, authResp{
		Success: true,
		User:    toUserPart(s.User),
		Access:  tokenPart{Token: s.Tokens.AccessToken, Expires: s.Tokens.AccessExpiresAt},
		Refresh: tokenPart{Token: s.Tokens.RefreshToken, Expires: s.Tokens.RefreshExpiresAt},
	})
}

// Logout revokes the refresh token if one is presented and always clears the
// session cookies.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := cookieValue(c, RefreshCookie)
	if raw == "" {
		raw = req.RefreshToken
	}
	h.Cookies.ClearSession(c)
	if raw == "" {
		return c.JSON(http.StatusOK, message("Logged out"))
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Auth.Logout(ctx, raw); err != nil && service.KindOf(err) != service.KindUnauthorized {
		return err
	}
	return c.JSON(http.StatusOK, message("Logged out"))
}

// VerifyAccount consumes an account-verify code.
func (h *AuthHandler) VerifyAccount(c echo.Context) error {
	var req codeReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	u, err := h.Auth.VerifyAccount(ctx, req.Email, req.Code)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Account verified", "user": toUserPart(u)})
}

// ResendVerification issues a new account-verify code, subject to cooldown.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.ResendVerification(ctx, req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, message("Verification code sent"))
}

// ForgotPassword starts the password reset flow.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.ForgotPassword(ctx, req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, message("Password reset code sent"))
}

// ResendResetCode issues a new password-reset code, subject to cooldown.
func (h *AuthHandler) ResendResetCode(c echo.Context) error {
	var req emailReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.ResendResetCode(ctx, req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, message("Password reset code sent"))
}

// VerifyResetPassword exchanges a reset code for a short-lived reset token,
// returned both as a cookie and in the body.
func (h *AuthHandler) VerifyResetPassword(c echo.Context) error {
	var req codeReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	g, err := h.Auth.VerifyResetPassword(ctx, req.Email, req.Code)
	if err != nil {
		return err
	}
	h.Cookies.set(c, ResetCookie, g.Token, g.ExpiresAt)
	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"message":     "Code verified, you can now reset your password",
		"reset_token": tokenPart{Token: g.Token, Expires: g.ExpiresAt},
	})
}

// ResetPassword sets a new password using the reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	token := cookieValue(c, ResetCookie)
	if token == "" {
		token = req.ResetToken
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Reset token is required")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, token, req.Password); err != nil {
		return err
	}
	h.Cookies.clear(c, ResetCookie)
	h.Cookies.ClearSession(c)
	return c.JSON(http.StatusOK, message("Password has been reset"))
}

// CheckAuth returns the user behind the access token.
func (h *AuthHandler) CheckAuth(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	u, err := h.Auth.CheckAuth(ctx, id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": toUserPart(u)})
}
