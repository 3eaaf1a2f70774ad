package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/clinicdesk/patientkeeper/internal/api/auth"
	mw "github.com/clinicdesk/patientkeeper/internal/api/middleware"
	"github.com/clinicdesk/patientkeeper/internal/blobstore"
	"github.com/clinicdesk/patientkeeper/internal/buildinfo"
	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/logger"
	"github.com/clinicdesk/patientkeeper/internal/observability"
	"github.com/clinicdesk/patientkeeper/internal/records"
)

// Records is the persistence surface the handlers use. *records.Service implements it.
type Records interface {
	AddPatient(ctx context.Context, in records.NewPatient) (uint, error)
	GetPatient(ctx context.Context, id uint) (*records.Patient, error)
	GetPatientByNationalID(ctx context.Context, nationalID string) (*records.Patient, error)
	ListPatients(ctx context.Context) ([]records.PatientSummary, error)
	CountPatients(ctx context.Context) (int64, error)
	AddObservation(ctx context.Context, patientID uint, in records.NewObservation) (uint, error)
	ListObservations(ctx context.Context, patientID uint) ([]records.Observation, error)
	SaveFile(ctx context.Context, patientID uint, data []byte, originalName, description string) (*records.SavedFile, error)
	ListFiles(ctx context.Context, patientID uint) ([]records.FileMetadata, error)
	GetFile(ctx context.Context, fileID uint) (*records.FileMetadata, error)
	OpenFile(ctx context.Context, storedPath string) (blobstore.Info, io.ReadCloser, error)
	Describe(ctx context.Context) (*records.Snapshot, error)
}

// Server is the HTTP server for the patient-record API.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	log      logger.Logger

	records Records
	auth    *auth.Service
	metrics *observability.Metrics

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger, normally the "api" module logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a server with routes and middleware registered. It does not listen.
func New(settings *conf.Settings, svc Records, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if svc == nil {
		return nil, fmt.Errorf("records service is required")
	}

	s := &Server{
		config:    config,
		settings:  settings,
		records:   svc,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil).Module("api")
	}

	authCfg, err := auth.ConfigFromSettings(&settings.Security)
	if err != nil {
		return nil, fmt.Errorf("failed to configure authentication: %w", err)
	}
	var recorder auth.Recorder
	if s.metrics != nil {
		recorder = s.metrics.HTTP
	}
	s.auth = auth.NewService(authCfg, s.log, recorder)

	extractor, err := config.ipExtractor()
	if err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s.echo = echo.New()
	s.echo.IPExtractor = extractor
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.httpErrorHandler
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Bool("debug", config.Debug))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewTraceID())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/metrics" || c.Path() == "/health"
	}))
	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}
	s.echo.Use(mw.NewBodyLimit(s.config.UploadLimitMB))
	s.echo.Use(mw.NewSecureHeaders(false))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/login", s.login)

	protected := v1.Group("", s.auth.Middleware)
	protected.POST("/logout", s.logout)

	protected.GET("/stats", s.stats)
	protected.GET("/patients", s.listPatients)
	protected.POST("/patients", s.addPatient)
	protected.GET("/patients/:nationalId", s.getPatient)

	protected.GET("/patients/:id/observations", s.listObservations)
	protected.POST("/patients/:id/observations", s.addObservation)

	protected.GET("/patients/:id/files", s.listFiles)
	protected.POST("/patients/:id/files", s.uploadFile)
	protected.GET("/files/:fileId", s.getFile)
	protected.GET("/files/:fileId/download", s.downloadFile)

	if s.config.Debug {
		protected.GET("/debug/state", s.debugState)
		s.log.Debug("debug state endpoint enabled")
	}
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        buildinfo.Get().Version,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Address()
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", addr))
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
	}

	if err := s.Shutdown(); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
