package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/config"
	"github.com/iliyamo/auth-session-service/internal/model"
)

// Cookie names carrying the session artifacts.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
	ResetCookie   = "resetToken"
)

// Cookies writes HTTP-only session cookies.
type Cookies struct {
	Domain string
	Secure bool
	now    func() time.Time
}

// NewCookies builds a cookie writer from the auth config.
func NewCookies(cfg config.AuthConfig) Cookies {
	return Cookies{Domain: cfg.CookieDomain, Secure: cfg.CookieSecure, now: time.Now}
}

func (ck Cookies) set(c echo.Context, name, value string, expires time.Time) {
	now := time.Now
	if ck.now != nil {
		now = ck.now
	}
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   ck.Domain,
		Expires:  expires,
		MaxAge:   int(expires.Sub(now()).Seconds()),
		HttpOnly: true,
		Secure:   ck.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (ck Cookies) clear(c echo.Context, names ...string) {
	for _, name := range names {
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   ck.Domain,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   ck.Secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// SetSession writes both token cookies.
func (ck Cookies) SetSession(c echo.Context, p *model.TokenPair) {
	ck.set(c, AccessCookie, p.AccessToken, p.AccessExpiresAt)
	ck.set(c, RefreshCookie, p.RefreshToken, p.RefreshExpiresAt)
}

// ClearSession removes both token cookies.
func (ck Cookies) ClearSession(c echo.Context) { ck.clear(c, AccessCookie, RefreshCookie) }

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
