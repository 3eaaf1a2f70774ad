package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// HSTSMaxAge is the max-age value for the HSTS header (1 year in seconds).
const HSTSMaxAge = 31536000

// NewSecureHeaders sets security-related response headers. HSTS is only sent
// when secure is true, since the API is often served over plain HTTP on a LAN.
func NewSecureHeaders(secure bool) echo.MiddlewareFunc {
	cfg := middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}
	if secure {
		cfg.HSTSMaxAge = HSTSMaxAge
	}
	return middleware.SecureWithConfig(cfg)
}

// NewBodyLimit limits request bodies to uploadMB plus one megabyte for
// multipart framing and form fields.
func NewBodyLimit(uploadMB int) echo.MiddlewareFunc {
	return middleware.BodyLimit(BodyLimitFor(uploadMB))
}

// BodyLimitFor returns the echo size string used by NewBodyLimit.
func BodyLimitFor(uploadMB int) string {
	if uploadMB <= 0 {
		uploadMB = 1
	}
	return fmt.Sprintf("%dM", uploadMB+1)
}
