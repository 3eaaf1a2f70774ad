// Package conf loads patientkeeper settings from YAML, environment, and flags through viper.
package conf

import (
	"bytes"
	"crypto/rand"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/clinicdesk/patientkeeper/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// SQLiteSettings holds the embedded database location
type SQLiteSettings struct {
	Path string `yaml:"path" mapstructure:"path"` // database file, created on first use
}

// MySQLSettings holds connection details for an external MySQL server
type MySQLSettings struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     string `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// DatabaseSettings selects and configures the relational store
type DatabaseSettings struct {
	Type               string         `yaml:"type" mapstructure:"type"`                           // "sqlite" or "mysql"
	SQLite             SQLiteSettings `yaml:"sqlite" mapstructure:"sqlite"`                       // sqlite settings
	MySQL              MySQLSettings  `yaml:"mysql" mapstructure:"mysql"`                         // mysql settings
	SlowQueryThreshold time.Duration  `yaml:"slow_query_threshold" mapstructure:"slow_query_threshold"` // 0 disables slow query warnings
}

// S3Settings configures the S3-compatible blob driver
type S3Settings struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`   // custom endpoint for MinIO and similar
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`       // key prefix inside the bucket
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style" mapstructure:"use_path_style"`
}

// BlobStoreSettings selects where uploaded file bytes live
type BlobStoreSettings struct {
	Driver string     `yaml:"driver" mapstructure:"driver"` // fs, memory, database or s3
	Root   string     `yaml:"root" mapstructure:"root"`     // root directory for the fs driver
	S3     S3Settings `yaml:"s3" mapstructure:"s3"`
}

// FileSettings controls file attachment handling
type FileSettings struct {
	MaxUploadSizeMB int      `yaml:"max_upload_size_mb" mapstructure:"max_upload_size_mb"`
	AllowedTypes    []string `yaml:"allowed_types" mapstructure:"allowed_types"` // lower-case extensions without dot
	NameRetries     int      `yaml:"name_retries" mapstructure:"name_retries"`   // stored-name collision retries
}

// WebServerSettings configures the JSON API
type WebServerSettings struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port string `yaml:"port" mapstructure:"port"`
	// TrustedProxies lists the CIDRs or addresses of reverse proxies whose
	// X-Forwarded-For header is believed. Empty means the peer address is
	// the client address.
	TrustedProxies []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// SecuritySettings holds the fixed clinic credential and session parameters
type SecuritySettings struct {
	Username        string        `yaml:"username" mapstructure:"username"`
	Password        string        `yaml:"password,omitempty" mapstructure:"password"`           // plain password, hashed at startup
	PasswordHash    string        `yaml:"password_hash,omitempty" mapstructure:"password_hash"` // bcrypt hash, preferred over Password
	SessionSecret   string        `yaml:"session_secret" mapstructure:"session_secret"`
	SessionMaxAge   time.Duration `yaml:"session_max_age" mapstructure:"session_max_age"`
	LoginRatePerMin int           `yaml:"login_rate_per_min" mapstructure:"login_rate_per_min"`
}

// CacheSettings controls the in-process patient lookup cache
type CacheSettings struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// Settings is the root configuration
type Settings struct {
	Debug     bool                 `yaml:"debug" mapstructure:"debug"` // verbose diagnostics and the debug state endpoint
	Database  DatabaseSettings     `yaml:"database" mapstructure:"database"`
	BlobStore BlobStoreSettings    `yaml:"blobstore" mapstructure:"blobstore"`
	Files     FileSettings         `yaml:"files" mapstructure:"files"`
	WebServer WebServerSettings    `yaml:"webserver" mapstructure:"webserver"`
	Security  SecuritySettings     `yaml:"security" mapstructure:"security"`
	Cache     CacheSettings        `yaml:"cache" mapstructure:"cache"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

var (
	settingsMutex  sync.Mutex
	configFileFlag string
)

// SetConfigFile pins an explicit config file instead of the search paths.
func SetConfigFile(path string) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	configFileFlag = path
}

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if settings.Debug {
		if settings.Logging.ModuleLevels == nil {
			settings.Logging.ModuleLevels = make(map[string]string)
		}
		if _, ok := settings.Logging.ModuleLevels["records"]; !ok {
			settings.Logging.ModuleLevels["records"] = "debug"
		}
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper registers defaults and environment bindings, then reads the config file.
func initViper() error {
	viper.SetConfigType("yaml")

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFileFlag != "" {
		viper.SetConfigFile(configFileFlag)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file %s: %w", configFileFlag, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	if err := WriteDefaultConfig(configPath); err != nil {
		return err
	}

	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// WriteDefaultConfig writes the embedded default config to configPath with a
// freshly generated session secret. An existing file is left untouched and
// reported as an error.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}
	data = bytes.Replace(data, []byte(`session_secret: ""`), []byte("session_secret: "+GenerateRandomSecret()), 1)

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	// 0600: the file carries the login credential and session secret
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	return nil
}

// SaveYAMLConfig writes settings to configPath through a temp file and rename.
// Comments and ordering of an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := moveFile(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}

// GenerateRandomSecret returns 32 random bytes as URL-safe base64 (43 characters).
func GenerateRandomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
