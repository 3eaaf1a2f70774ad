// Package middleware provides HTTP middleware components for the patientkeeper API.
package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/clinicdesk/patientkeeper/internal/logger"
)

// NewRequestLogger creates a request logging middleware. Entries carry the
// request's trace ID when TraceID runs earlier in the chain.
func NewRequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return NewRequestLoggerWithSkipper(log, nil)
}

// NewRequestLoggerWithSkipper creates a request logging middleware with a custom skipper.
func NewRequestLoggerWithSkipper(log logger.Logger, skipper middleware.Skipper) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:     skipper,
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if log == nil {
				return nil
			}

			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}

			reqLog := log.WithContext(c.Request().Context())
			switch {
			case v.Error != nil:
				reqLog.Warn("request", append(fields, logger.Error(v.Error))...)
			case v.Status >= 500:
				reqLog.Warn("request", fields...)
			default:
				reqLog.Info("request", fields...)
			}
			return nil
		},
	})
}
