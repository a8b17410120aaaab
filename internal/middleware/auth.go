package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/utils"
)

// AccessCookie is the cookie the access token is read from first.
const AccessCookie = "accessToken"

// Authenticator verifies a raw access token.
type Authenticator interface {
	Authenticate(accessToken string) (utils.Identity, error)
}

// RequireAuth validates the access token from the accessToken cookie or a
// Bearer Authorization header and stores the identity on the context.
func RequireAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := accessToken(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			id, err := auth.Authenticate(raw)
			if err != nil {
				return err
			}
			SetIdentity(c, id)
			return next(c)
		}
	}
}

func accessToken(c echo.Context) string {
	if ck, err := c.Cookie(AccessCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
