package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/utils"
)

const identityKey = "identity"

// SetIdentity stores the authenticated identity.
func SetIdentity(c echo.Context, id utils.Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the identity stored by RequireAuth.
func IdentityFrom(c echo.Context) (utils.Identity, bool) {
	id, ok := c.Get(identityKey).(utils.Identity)
	return id, ok
}
