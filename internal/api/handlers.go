package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/patientkeeper/internal/blobstore"
	"github.com/clinicdesk/patientkeeper/internal/logger"
	"github.com/clinicdesk/patientkeeper/internal/records"
)

// LoginRequest is the body of POST /api/v1/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreatedResponse reports the ID of a created row.
type CreatedResponse struct {
	ID uint `json:"id"`
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	TotalPatients int64 `json:"total_patients"`
}

// login handles POST /api/v1/login
func (s *Server) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid login request")
	}
	if req.Username == "" || req.Password == "" {
		return badRequest(c, "username and password are required")
	}

	if err := s.auth.Login(c, req.Username, req.Password); err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"username": req.Username,
	})
}

// logout handles POST /api/v1/logout
func (s *Server) logout(c echo.Context) error {
	if err := s.auth.Logout(c); err != nil {
		return authError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// stats handles GET /api/v1/stats
func (s *Server) stats(c echo.Context) error {
	n, err := s.records.CountPatients(c.Request().Context())
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, StatsResponse{TotalPatients: n})
}

// listPatients handles GET /api/v1/patients
func (s *Server) listPatients(c echo.Context) error {
	list, err := s.records.ListPatients(c.Request().Context())
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// addPatient handles POST /api/v1/patients
func (s *Server) addPatient(c echo.Context) error {
	var in records.NewPatient
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid patient body")
	}

	id, err := s.records.AddPatient(c.Request().Context(), in)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// getPatient handles GET /api/v1/patients/:nationalId
func (s *Server) getPatient(c echo.Context) error {
	nationalID, err := url.PathUnescape(c.Param("nationalId"))
	if err != nil {
		return badRequest(c, "invalid national ID")
	}

	p, err := s.records.GetPatientByNationalID(c.Request().Context(), nationalID)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// listObservations handles GET /api/v1/patients/:id/observations
func (s *Server) listObservations(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	list, err := s.records.ListObservations(c.Request().Context(), id)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// addObservation handles POST /api/v1/patients/:id/observations
func (s *Server) addObservation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var in records.NewObservation
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid observation body")
	}

	recordID, err := s.records.AddObservation(c.Request().Context(), id, in)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusCreated, CreatedResponse{ID: recordID})
}

// listFiles handles GET /api/v1/patients/:id/files
func (s *Server) listFiles(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	list, err := s.records.ListFiles(c.Request().Context(), id)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// uploadFile handles POST /api/v1/patients/:id/files as multipart/form-data
// with a "file" part and an optional "description" field.
func (s *Server) uploadFile(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "uploaded file could not be read")
	}
	defer func() { _ = f.Close() }()

	// one byte over the limit lets the records service reject oversize files
	limit := int64(s.config.UploadLimitMB)<<20 + 1
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return badRequest(c, "uploaded file could not be read")
	}

	saved, err := s.records.SaveFile(c.Request().Context(), id, data, fh.Filename, c.FormValue("description"))
	if err != nil {
		return s.handleError(c, err)
	}
	for _, w := range saved.Warnings {
		s.log.WithContext(c.Request().Context()).Warn("upload stored with integrity warning",
			logger.String("warning", w.String()))
	}
	return c.JSON(http.StatusCreated, saved)
}

// getFile handles GET /api/v1/files/:fileId
func (s *Server) getFile(c echo.Context) error {
	id, err := parseID(c, "fileId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	md, err := s.records.GetFile(c.Request().Context(), id)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, md)
}

// downloadFile handles GET /api/v1/files/:fileId/download. Images and PDFs are
// served inline when ?inline=true so browsers can preview them.
func (s *Server) downloadFile(c echo.Context) error {
	id, err := parseID(c, "fileId")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.Request().Context()

	md, err := s.records.GetFile(ctx, id)
	if err != nil {
		return s.handleError(c, err)
	}
	info, rc, err := s.records.OpenFile(ctx, md.StoredPath)
	if err != nil {
		return s.handleError(c, err)
	}
	defer func() { _ = rc.Close() }()

	disposition := "attachment"
	if c.QueryParam("inline") == "true" && (md.Kind == records.FileKindImage || md.Kind == records.FileKindPDF) {
		disposition = "inline"
	}
	h := c.Response().Header()
	h.Set(echo.HeaderContentDisposition, mime.FormatMediaType(disposition, map[string]string{"filename": md.FileName}))
	if info.Size > 0 {
		h.Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = blobstore.ContentTypeFor(md.FileName)
	}
	return c.Stream(http.StatusOK, contentType, rc)
}

// debugState handles GET /api/v1/debug/state. Registered only in debug mode.
func (s *Server) debugState(c echo.Context) error {
	snap, err := s.records.Describe(c.Request().Context())
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return uint(id), nil
}
