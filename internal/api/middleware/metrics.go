package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestRecorder receives one observation per completed request.
type RequestRecorder interface {
	RecordHTTPRequest(method, path string, statusCode int, duration float64)
}

// NewMetrics records request counts and latency by route pattern.
// Unmatched routes are grouped under "unmatched" to bound label cardinality.
func NewMetrics(recorder RequestRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if recorder == nil {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			recorder.RecordHTTPRequest(c.Request().Method, path, status, time.Since(start).Seconds())
			return err
		}
	}
}
