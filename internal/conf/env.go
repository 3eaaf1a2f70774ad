// env.go - environment variable bindings and validation
package conf

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "PATIENTKEEPER"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "PATIENTKEEPER_DEBUG", validateEnvBool},

		// Relational store
		{"database.type", "PATIENTKEEPER_DATABASE_TYPE", validateEnvDatabaseType},
		{"database.sqlite.path", "PATIENTKEEPER_DATABASE_SQLITE_PATH", validateEnvPath},
		{"database.mysql.host", "PATIENTKEEPER_DATABASE_MYSQL_HOST", nil},
		{"database.mysql.port", "PATIENTKEEPER_DATABASE_MYSQL_PORT", validateEnvPort},
		{"database.mysql.username", "PATIENTKEEPER_DATABASE_MYSQL_USERNAME", nil},
		{"database.mysql.password", "PATIENTKEEPER_DATABASE_MYSQL_PASSWORD", nil},
		{"database.mysql.database", "PATIENTKEEPER_DATABASE_MYSQL_DATABASE", nil},

		// Blob store
		{"blobstore.driver", "PATIENTKEEPER_BLOBSTORE_DRIVER", validateEnvBlobDriver},
		{"blobstore.root", "PATIENTKEEPER_BLOBSTORE_ROOT", validateEnvPath},
		{"blobstore.s3.bucket", "PATIENTKEEPER_BLOBSTORE_S3_BUCKET", nil},
		{"blobstore.s3.region", "PATIENTKEEPER_BLOBSTORE_S3_REGION", nil},
		{"blobstore.s3.endpoint", "PATIENTKEEPER_BLOBSTORE_S3_ENDPOINT", nil},
		{"blobstore.s3.prefix", "PATIENTKEEPER_BLOBSTORE_S3_PREFIX", nil},
		{"blobstore.s3.access_key_id", "PATIENTKEEPER_BLOBSTORE_S3_ACCESS_KEY_ID", nil},
		{"blobstore.s3.secret_access_key", "PATIENTKEEPER_BLOBSTORE_S3_SECRET_ACCESS_KEY", nil},
		{"blobstore.s3.use_path_style", "PATIENTKEEPER_BLOBSTORE_S3_USE_PATH_STYLE", validateEnvBool},

		// Web server and login
		{"webserver.port", "PATIENTKEEPER_WEBSERVER_PORT", validateEnvPort},
		{"webserver.trusted_proxies", "PATIENTKEEPER_WEBSERVER_TRUSTED_PROXIES", nil}, // comma separated
		{"security.username", "PATIENTKEEPER_SECURITY_USERNAME", nil},
		{"security.password", "PATIENTKEEPER_SECURITY_PASSWORD", nil},
		{"security.password_hash", "PATIENTKEEPER_SECURITY_PASSWORD_HASH", nil},
		{"security.session_secret", "PATIENTKEEPER_SECURITY_SESSION_SECRET", nil},
		{"security.session_max_age", "PATIENTKEEPER_SECURITY_SESSION_MAX_AGE", validateEnvDuration},

		{"cache.ttl", "PATIENTKEEPER_CACHE_TTL", validateEnvDuration},
		{"logging.default_level", "PATIENTKEEPER_LOG_LEVEL", validateEnvLogLevel},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	bindings := getEnvBindings()
	var warnings []string

	for _, binding := range bindings {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("duration must not be negative, got %s", d)
	}
	return nil
}

func validateEnvPath(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("path must not be blank")
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("path must not contain NUL bytes")
	}
	return nil
}

func validateEnvDatabaseType(value string) error {
	return validateOneOf("database type", value, []string{DatabaseSQLite, DatabaseMySQL})
}

func validateEnvBlobDriver(value string) error {
	return validateOneOf("blob driver", value, []string{BlobDriverFS, BlobDriverMemory, BlobDriverDatabase, BlobDriverS3})
}

func validateEnvLogLevel(value string) error {
	return validateOneOf("log level", value, []string{"trace", "debug", "info", "warn", "error"})
}

func validateOneOf(what, value string, allowed []string) error {
	if !slices.Contains(allowed, strings.ToLower(strings.TrimSpace(value))) {
		return fmt.Errorf("%s must be one of %s, got '%s'", what, strings.Join(allowed, ", "), value)
	}
	return nil
}
