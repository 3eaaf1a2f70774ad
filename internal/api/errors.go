package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/patientkeeper/internal/api/auth"
	"github.com/clinicdesk/patientkeeper/internal/logger"
	"github.com/clinicdesk/patientkeeper/internal/records"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	TraceID string `json:"trace_id,omitempty"`
}

// Kinds used for failures that do not come from the records service.
const (
	kindUnauthorized = "Unauthorized"
	kindRateLimited  = "RateLimited"
	kindHTTP         = "HTTPError"
)

// statusForKind maps a records error kind to an HTTP status.
func statusForKind(kind records.Kind) int {
	switch kind {
	case records.KindDuplicateKey:
		return http.StatusConflict
	case records.KindNotFound:
		return http.StatusNotFound
	case records.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes a records service error as JSON. Storage errors are
// logged in full but reported to the client without driver detail.
func (s *Server) handleError(c echo.Context, err error) error {
	kind := records.KindOf(err)
	status := statusForKind(kind)
	traceID := logger.TraceIDFromContext(c.Request().Context())

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.WithContext(c.Request().Context()).Error("request failed",
			logger.String("path", c.Path()),
			logger.Error(err))
		msg = "storage error"
	}

	return c.JSON(status, ErrorResponse{Error: msg, Kind: string(kind), TraceID: traceID})
}

// badRequest reports malformed request parameters.
func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   msg,
		Kind:    string(records.KindInvalidInput),
		TraceID: logger.TraceIDFromContext(c.Request().Context()),
	})
}

// authError reports a login failure.
func authError(c echo.Context, err error) error {
	resp := ErrorResponse{TraceID: logger.TraceIDFromContext(c.Request().Context())}
	status := http.StatusUnauthorized
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		status = http.StatusTooManyRequests
		resp.Error = "too many login attempts, try again later"
		resp.Kind = kindRateLimited
	case errors.Is(err, auth.ErrInvalidCredentials):
		resp.Error = "invalid username or password"
		resp.Kind = kindUnauthorized
	default:
		status = http.StatusInternalServerError
		resp.Error = "login failed"
		resp.Kind = string(records.KindStorage)
	}
	return c.JSON(status, resp)
}

// httpErrorHandler renders echo errors (unknown routes, body limit, panics)
// in the same JSON shape as handler errors.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := http.StatusText(status)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	} else {
		s.log.WithContext(c.Request().Context()).Error("unhandled error",
			logger.String("path", c.Request().URL.Path),
			logger.Error(err))
	}

	resp := ErrorResponse{
		Error:   msg,
		Kind:    kindHTTP,
		TraceID: logger.TraceIDFromContext(c.Request().Context()),
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, resp)
	}
	if writeErr != nil {
		s.log.Debug("failed to write error response", logger.Error(writeErr))
	}
}
