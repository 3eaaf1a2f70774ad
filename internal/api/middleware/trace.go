package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/patientkeeper/internal/logger"
)

// maxTraceIDLength bounds client-supplied request IDs.
const maxTraceIDLength = 128

// NewTraceID assigns each request a trace ID. A client-supplied X-Request-ID is
// reused when present and reasonably short. The ID is echoed in the response
// header and stored in the request context for logger.WithContext.
func NewTraceID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			traceID := req.Header.Get(echo.HeaderXRequestID)
			if traceID == "" || len(traceID) > maxTraceIDLength {
				traceID = uuid.NewString()
			}

			c.Response().Header().Set(echo.HeaderXRequestID, traceID)
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), traceID)))
			return next(c)
		}
	}
}
