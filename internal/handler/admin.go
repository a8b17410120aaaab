package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// RevokeSessions revokes every refresh token of the user named in the path.
// Mounted behind the ADMIN role check.
func (h *AuthHandler) RevokeSessions(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || userID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user id")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	n, err := h.Auth.RevokeSessions(ctx, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "revoked": n})
}
