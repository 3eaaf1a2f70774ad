// Package api serves the patient-record operations as a JSON API over echo.
// Handlers translate HTTP requests into records.Service calls; session
// handling lives in the auth subpackage.
package api

import (
	"fmt"
	"net"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/patientkeeper/internal/conf"
)

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second // downloads of large scans
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string
	Port string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// UploadLimitMB bounds uploaded file size; the body limit adds framing headroom.
	UploadLimitMB int

	// Debug enables the debug state endpoint.
	Debug bool

	// TrustedProxies are the networks whose X-Forwarded-For is believed
	// when deriving the client IP. Empty means the direct peer address.
	TrustedProxies []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            "8080",
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		UploadLimitMB:   20,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	cfg.Host = settings.WebServer.Host
	if settings.WebServer.Port != "" {
		cfg.Port = settings.WebServer.Port
	}
	if settings.Files.MaxUploadSizeMB > 0 {
		cfg.UploadLimitMB = settings.Files.MaxUploadSizeMB
	}
	cfg.Debug = settings.Debug
	cfg.TrustedProxies = settings.WebServer.TrustedProxies
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.UploadLimitMB <= 0 {
		return fmt.Errorf("upload limit must be positive, got %d", c.UploadLimitMB)
	}
	if _, err := conf.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	return nil
}

// ipExtractor returns how the client IP is derived. Without trusted proxies
// only the peer address counts, so forwarding headers sent by clients are
// ignored.
func (c *Config) ipExtractor() (echo.IPExtractor, error) {
	nets, err := conf.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		return nil, err
	}
	if len(nets) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	// only the configured ranges, not echo's default private and loopback ranges
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range nets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

// Address returns host:port for listening.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}
