// Package records is the patient-record persistence layer. It owns the
// patient registry, the observation log and file attachments, and keeps
// metadata rows in the relational store consistent with the bytes in the
// blob store. It has no knowledge of sessions or presentation.
package records

import (
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/clinicdesk/patientkeeper/internal/blobstore"
	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/datastore"
	"github.com/clinicdesk/patientkeeper/internal/logger"
	"github.com/clinicdesk/patientkeeper/internal/observability/metrics"
)

const (
	defaultNameRetries = 10
	describeWorkers    = 8
)

// Config holds tunables for Service.
type Config struct {
	// AllowedTypes lists accepted lower-case extensions without dot. Empty accepts all.
	AllowedTypes []string
	// MaxFileSize in bytes; 0 disables the check.
	MaxFileSize int64
	// NameRetries bounds stored-name collision retries.
	NameRetries int
	// CacheTTL enables the patient lookup cache when positive.
	CacheTTL time.Duration
}

// ConfigFromSettings derives a Config from application settings.
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := Config{
		AllowedTypes: settings.Files.AllowedTypes,
		MaxFileSize:  int64(settings.Files.MaxUploadSizeMB) << 20,
		NameRetries:  settings.Files.NameRetries,
	}
	if settings.Cache.Enabled {
		cfg.CacheTTL = settings.Cache.TTL
	}
	return cfg
}

// Service implements the persistence operations.
type Service struct {
	repos   *datastore.Repositories
	blobs   blobstore.Store
	log     logger.Logger
	metrics metrics.Recorder
	cache   *cache.Cache // nil when disabled
	now     func() time.Time

	allowedTypes map[string]struct{}
	maxFileSize  int64
	nameRetries  int

	locksMu sync.Mutex
	locks   map[uint]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger, normally the "records" module logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service over the given repositories and blob store.
func New(repos *datastore.Repositories, blobs blobstore.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		repos:       repos,
		blobs:       blobs,
		log:         logger.NewSlogLogger(nil, logger.LogLevelWarn, nil).Module("records"),
		metrics:     metrics.NewNoOpRecorder(),
		now:         func() time.Time { return time.Now().UTC() },
		maxFileSize: cfg.MaxFileSize,
		nameRetries: cfg.NameRetries,
		locks:       make(map[uint]*sync.Mutex),
	}
	if s.nameRetries <= 0 {
		s.nameRetries = defaultNameRetries
	}
	if len(cfg.AllowedTypes) > 0 {
		s.allowedTypes = make(map[string]struct{}, len(cfg.AllowedTypes))
		for _, t := range cfg.AllowedTypes {
			s.allowedTypes[strings.ToLower(strings.TrimPrefix(t, "."))] = struct{}{}
		}
	}
	if cfg.CacheTTL > 0 {
		s.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// patientLock returns the mutex serializing stored-name generation for a patient.
func (s *Service) patientLock(patientID uint) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[patientID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[patientID] = mu
	}
	return mu
}

// observe records outcome and duration of one operation.
func (s *Service) observe(op string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		s.metrics.RecordError(op, string(KindOf(err)))
	}
	s.metrics.RecordOperation(op, status)
	s.metrics.RecordDuration(op, time.Since(start).Seconds())
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
