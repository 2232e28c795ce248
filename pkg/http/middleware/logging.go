package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "EquiCast/pkg/logger"
)

// RequestLogging emits one structured access line per request. The
// /metrics and probe endpoints are skipped to keep scrape noise out of
// the logs. With a nil logger the middleware is a no-op.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			if l == nil {
				return err
			}
			path := c.Request().URL.Path
			if path == "/metrics" || path == "/healthz" {
				return err
			}
			l.Info("http request",
				applogger.String("method", c.Request().Method),
				applogger.String("path", path),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", c.Response().Status),
				applogger.Int64("latency_ms", time.Since(start).Milliseconds()),
			)
			return err
		}
	}
}
