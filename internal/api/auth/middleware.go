package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/patientkeeper/internal/logger"
)

// CtxKeyUsername holds the authenticated username in echo.Context.
const CtxKeyUsername = "auth:username"

// Middleware rejects requests without a valid login session.
func (s *Service) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		username, err := s.Username(c)
		if err != nil {
			s.log.Debug("request without valid session",
				logger.String("path", c.Request().URL.Path),
				logger.String("ip", c.RealIP()))
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "authentication required",
				"kind":  "Unauthorized",
			})
		}
		c.Set(CtxKeyUsername, username)
		return next(c)
	}
}
