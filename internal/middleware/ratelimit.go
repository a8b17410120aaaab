package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/ratelimit"
)

// RateLimit admits each request against scopes, keyed by the client only.
// A nil limiter disables the check.
func RateLimit(l *ratelimit.Limiter, scopes ...ratelimit.Scope) echo.MiddlewareFunc {
	return rateLimit(l, false, scopes)
}

// RouteRateLimit is RateLimit keyed by client and route pattern, so each
// sensitive endpoint has its own budget per client.
func RouteRateLimit(l *ratelimit.Limiter, scopes ...ratelimit.Scope) echo.MiddlewareFunc {
	return rateLimit(l, true, scopes)
}

func rateLimit(l *ratelimit.Limiter, perRoute bool, scopes []ratelimit.Scope) echo.MiddlewareFunc {
	if l == nil || len(scopes) == 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := ratelimit.ClientKey(c.Request())
			if perRoute {
				key += ":" + c.Request().Method + " " + c.Path()
			}

			d, err := l.AdmitAll(c.Request().Context(), key, scopes...)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
			}
			if d.Limit > 0 {
				h := c.Response().Header()
				h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
				h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			}
			if !d.Allowed {
				secs := int(math.Max(1, math.Ceil(d.RetryAfter.Seconds())))
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
			}
			return next(c)
		}
	}
}
