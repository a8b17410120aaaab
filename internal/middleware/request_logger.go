package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-session-service/internal/ratelimit"
)

// RequestLogger logs every request with zap. Credentials in Authorization
// and Cookie headers are never written.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			log.Debug("incoming request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Any("headers", scrub(req.Header)),
			)

			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is known.
				c.Error(err)
			}

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("client", ratelimit.ClientKey(req)),
			}
			if c.Response().Status >= http.StatusInternalServerError {
				log.Warn("request completed", fields...)
			} else {
				log.Info("request completed", fields...)
			}
			return nil
		}
	}
}

func scrub(h http.Header) http.Header {
	clone := h.Clone()
	for k := range clone {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "authorization") || strings.Contains(lk, "cookie") {
			clone[k] = []string{"[redacted]"}
		}
	}
	return clone
}
