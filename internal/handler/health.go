package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Ping answers liveness checks.
func Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"message": "PONG"})
}

// Health is a plain-text health check for load balancers.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
