// Package router defines how HTTP routes are registered for the API.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/handler"
	"github.com/iliyamo/auth-session-service/internal/middleware"
	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/ratelimit"
)

// Deps are the collaborators the routes need.
type Deps struct {
	Auth  *handler.AuthHandler
	Authn middleware.Authenticator
	// Limiter is nil when rate limiting is disabled.
	Limiter *ratelimit.Limiter
	// Metrics serves the Prometheus exposition; nil skips /metrics.
	Metrics http.Handler
}

// RegisterRoutes mounts every endpoint. All API traffic passes the burst and
// global budgets; the credential and code endpoints additionally pass the
// per-route sensitive budget before reaching a handler.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	api := e.Group("", middleware.RateLimit(d.Limiter, ratelimit.ScopeBurst, ratelimit.ScopeGlobal))
	api.GET("/ping", handler.Ping)

	sensitive := middleware.RouteRateLimit(d.Limiter, ratelimit.ScopeSensitive)
	api.POST("/register", d.Auth.Register, sensitive)
	api.POST("/login", d.Auth.Login, sensitive)
	api.POST("/verify-account/resend-code", d.Auth.ResendVerification, sensitive)
	api.POST("/forgot-password", d.Auth.ForgotPassword, sensitive)
	api.POST("/verify-reset-password/resend-code", d.Auth.ResendResetCode, sensitive)

	api.POST("/verify-account", d.Auth.VerifyAccount)
	api.POST("/verify-reset-password", d.Auth.VerifyResetPassword)
	api.PUT("/reset-password", d.Auth.ResetPassword)
	api.POST("/refresh-token", d.Auth.Refresh)
	api.POST("/logout", d.Auth.Logout)

	authed := middleware.RequireAuth(d.Authn)
	api.GET("/check-auth", d.Auth.CheckAuth, authed)

	admin := api.Group("/admin", authed, middleware.RequireRole(model.RoleAdmin))
	admin.POST("/users/:id/revoke-sessions", d.Auth.RevokeSessions)
}
