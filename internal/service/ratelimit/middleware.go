package ratelimit

import (
	pkghttp "RiskGate/pkg/http"

	"github.com/labstack/echo/v4"
)

// KeyFunc picks the bucket for a request. An empty key skips limiting.
type KeyFunc func(c echo.Context) string

// RealIP keys requests by client address.
func RealIP(c echo.Context) string { return c.RealIP() }

// Middleware answers 429 once the caller's bucket is empty.
func Middleware(l *Limiter, key KeyFunc) echo.MiddlewareFunc {
	if key == nil {
		key = RealIP
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			k := key(c)
			if k != "" && !l.Allow(k) {
				return pkghttp.AppErrorResponse(c, pkghttp.TooManyRequestsError("rate limit exceeded"))
			}
			return next(c)
		}
	}
}
