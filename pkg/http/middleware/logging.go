package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "FinAgent/pkg/logger"
)

// RequestLogging logs every request at debug level and failed ones at warn.
func RequestLogging(lgr *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", c.Path()),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("latency_ms", time.Since(start)),
			}
			if c.Response().Status >= 400 {
				lgr.Warn("http request", fields...)
			} else {
				lgr.Debug("http request", fields...)
			}
			return nil
		}
	}
}
