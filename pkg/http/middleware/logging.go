package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"Confluence/pkg/logger"
)

// RequestLogging logs each request with its route and symbol. Server errors
// are logged at warn so they survive an info-level deployment; the rest at debug.
func RequestLogging(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("route", c.Path()),
				logger.String("remote", c.RealIP()),
				logger.Int("status", c.Response().Status),
				logger.Duration("latency", time.Since(start)),
			}
			if sym := c.Param("symbol"); sym != "" {
				fields = append(fields, logger.String("symbol", sym))
			}
			if id := req.Header.Get(echo.HeaderXRequestID); id != "" {
				fields = append(fields, logger.String("request_id", id))
			}

			if c.Response().Status >= http.StatusInternalServerError {
				l.Warn("http request failed", fields...)
			} else {
				l.Debug("http request", fields...)
			}
			return err
		}
	}
}
