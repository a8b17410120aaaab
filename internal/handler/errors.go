package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-session-service/internal/service"
)

// errorBody is the shape of every error response.
type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorHandler is the single place errors become HTTP responses. Messages of
// internal errors never reach the client.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, msg := translate(err, c)

		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err))
		} else {
			log.Debug("request rejected",
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, errorBody{Success: false, Message: msg})
		}
		if err != nil {
			log.Error("write error response", zap.Error(err))
		}
	}
}

func translate(err error, c echo.Context) (int, string) {
	var se *service.Error
	if errors.As(err, &se) {
		status := statusOf(se.Kind)
		if se.Kind == service.KindRateLimited && se.RetryAfter > 0 {
			c.Response().Header().Set("Retry-After", retryAfterSeconds(se.RetryAfter.Seconds()))
		}
		if status == http.StatusInternalServerError {
			return status, http.StatusText(status)
		}
		return status, se.Message
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return he.Code, http.StatusText(he.Code)
		}
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func statusOf(k service.Kind) int {
	switch k {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func retryAfterSeconds(s float64) string {
	return strconv.Itoa(int(math.Max(1, math.Ceil(s))))
}
