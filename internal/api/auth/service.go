// Package auth implements the fixed-credential login for the JSON API.
// A successful login is recorded in a signed and encrypted cookie session;
// protected routes check that session through Middleware.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/errors"
	"github.com/clinicdesk/patientkeeper/internal/logger"
)

// SessionName is the cookie carrying the login session.
const SessionName = "patientkeeper_session"

const (
	sessionKeyAuthenticated = "authenticated"
	sessionKeyUsername      = "username"
	sessionKeyLoginAt       = "login_at"

	defaultSessionMaxAge = 12 * time.Hour
	limiterIdleTTL       = 10 * time.Minute
)

// Sentinel errors for authentication failures.
var (
	ErrInvalidCredentials = errors.NewStd("invalid credentials")
	ErrSessionNotFound    = errors.NewStd("session not found or expired")
	ErrRateLimited        = errors.NewStd("too many login attempts")
)

// Status values passed to Recorder.
const (
	StatusSuccess     = "success"
	StatusFailure     = "failure"
	StatusRateLimited = "rate_limited"
)

// Recorder receives login and logout outcomes. HTTPMetrics satisfies it.
type Recorder interface {
	RecordAuthOperation(operation, status string)
}

// Config holds the credential and session parameters.
type Config struct {
	Username        string
	PasswordHash    []byte
	SessionSecret   string
	SessionMaxAge   time.Duration
	SecureCookie    bool
	LoginRatePerMin int // 0 disables rate limiting
}

// ConfigFromSettings builds a Config, hashing a plain password with bcrypt
// when no hash is configured.
func ConfigFromSettings(settings *conf.SecuritySettings) (Config, error) {
	cfg := Config{
		Username:        settings.Username,
		SessionSecret:   settings.SessionSecret,
		SessionMaxAge:   settings.SessionMaxAge,
		LoginRatePerMin: settings.LoginRatePerMin,
	}

	if settings.PasswordHash != "" {
		cfg.PasswordHash = []byte(settings.PasswordHash)
		return cfg, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(settings.Password), bcrypt.DefaultCost)
	if err != nil {
		return Config{}, errors.New(err).
			Component("auth").
			Category(errors.CategoryConfiguration).
			Context("operation", "hash_password").
			Build()
	}
	cfg.PasswordHash = hash
	return cfg, nil
}

// Service checks credentials and manages login sessions.
type Service struct {
	cfg      Config
	store    *sessions.CookieStore
	limiters *cache.Cache // per client IP *rate.Limiter
	log      logger.Logger
	recorder Recorder
}

// NewService creates a Service. An empty session secret gets a random one,
// which invalidates sessions on every restart.
func NewService(cfg Config, log logger.Logger, recorder Recorder) *Service {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelWarn, nil)
	}
	log = log.Module("auth")

	if cfg.SessionSecret == "" {
		log.Warn("no session secret configured, sessions will not survive a restart")
		cfg.SessionSecret = conf.GenerateRandomSecret()
	}
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = defaultSessionMaxAge
	}

	store := sessions.NewCookieStore(
		createSessionKey(cfg.SessionSecret),
		createSessionKey(cfg.SessionSecret+"encryption"),
	)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		log:      log,
		recorder: recorder,
	}
	if cfg.LoginRatePerMin > 0 {
		s.limiters = cache.New(limiterIdleTTL, 2*limiterIdleTTL)
	}
	return s
}

// createSessionKey derives a 32 byte key from seed.
func createSessionKey(seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}

// AllowLogin reports whether ip may attempt another login.
func (s *Service) AllowLogin(ip string) bool {
	if s.limiters == nil {
		return true
	}
	if v, ok := s.limiters.Get(ip); ok {
		return v.(*rate.Limiter).Allow()
	}
	perMin := s.cfg.LoginRatePerMin
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin)
	if err := s.limiters.Add(ip, limiter, cache.DefaultExpiration); err != nil {
		// another request created it first
		if v, ok := s.limiters.Get(ip); ok {
			limiter = v.(*rate.Limiter)
		}
	}
	return limiter.Allow()
}

// CheckCredentials compares username and password against the configured credential.
func (s *Service) CheckCredentials(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) == 1
	// always run bcrypt so a wrong username costs the same as a wrong password
	passErr := bcrypt.CompareHashAndPassword(s.cfg.PasswordHash, []byte(password))
	if !userOK || passErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login checks the rate limit and credentials, then establishes a session.
func (s *Service) Login(c echo.Context, username, password string) error {
	ip := c.RealIP()

	if !s.AllowLogin(ip) {
		s.record("login", StatusRateLimited)
		s.log.Warn("login rate limit exceeded", logger.String("ip", ip))
		return ErrRateLimited
	}

	if err := s.CheckCredentials(username, password); err != nil {
		s.record("login", StatusFailure)
		s.log.Warn("failed login attempt",
			logger.String("ip", ip),
			logger.String("username", username))
		return err
	}

	if err := s.establishSession(c, username); err != nil {
		s.record("login", StatusFailure)
		return err
	}

	s.record("login", StatusSuccess)
	s.log.Info("user logged in",
		logger.String("ip", ip),
		logger.String("username", username))
	return nil
}

// establishSession replaces any previous session with a fresh one.
func (s *Service) establishSession(c echo.Context, username string) error {
	// a decode error only means the old cookie is unusable; a new session is returned anyway
	sess, _ := s.store.Get(c.Request(), SessionName)
	sess.Values = map[any]any{
		sessionKeyAuthenticated: true,
		sessionKeyUsername:      username,
		sessionKeyLoginAt:       time.Now().Unix(),
	}
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return errors.New(fmt.Errorf("failed to save session: %w", err)).
			Component("auth").
			Category(errors.CategoryHTTP).
			Context("operation", "establish_session").
			Build()
	}
	return nil
}

// Logout expires the session cookie.
func (s *Service) Logout(c echo.Context) error {
	sess, _ := s.store.Get(c.Request(), SessionName)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		s.record("logout", StatusFailure)
		return errors.New(fmt.Errorf("failed to clear session: %w", err)).
			Component("auth").
			Category(errors.CategoryHTTP).
			Context("operation", "logout").
			Build()
	}
	s.record("logout", StatusSuccess)
	s.log.Info("user logged out", logger.String("ip", c.RealIP()))
	return nil
}

// Username returns the logged-in user, or ErrSessionNotFound.
func (s *Service) Username(c echo.Context) (string, error) {
	sess, err := s.store.Get(c.Request(), SessionName)
	if err != nil || sess.IsNew {
		return "", ErrSessionNotFound
	}
	if ok, _ := sess.Values[sessionKeyAuthenticated].(bool); !ok {
		return "", ErrSessionNotFound
	}
	username, _ := sess.Values[sessionKeyUsername].(string)
	return username, nil
}

func (s *Service) record(operation, status string) {
	if s.recorder != nil {
		s.recorder.RecordAuthOperation(operation, status)
	}
}
