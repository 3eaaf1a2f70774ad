// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateDatabaseSettings(&settings.Database); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateBlobStoreSettings(&settings.BlobStore); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateFileSettings(&settings.Files); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateSecuritySettings(&settings.Security); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}

	return nil
}

func validateDatabaseSettings(settings *DatabaseSettings) error {
	settings.Type = strings.ToLower(strings.TrimSpace(settings.Type))

	switch settings.Type {
	case DatabaseSQLite:
		if settings.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required for the sqlite database")
		}
	case DatabaseMySQL:
		var missing []string
		if settings.MySQL.Host == "" {
			missing = append(missing, "host")
		}
		if settings.MySQL.Port == "" {
			missing = append(missing, "port")
		}
		if settings.MySQL.Username == "" {
			missing = append(missing, "username")
		}
		if settings.MySQL.Database == "" {
			missing = append(missing, "database")
		}
		if len(missing) > 0 {
			return fmt.Errorf("database.mysql is missing: %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("database.type must be %q or %q, got %q", DatabaseSQLite, DatabaseMySQL, settings.Type)
	}

	if settings.SlowQueryThreshold < 0 {
		return fmt.Errorf("database.slow_query_threshold must not be negative")
	}

	return nil
}

func validateBlobStoreSettings(settings *BlobStoreSettings) error {
	settings.Driver = strings.ToLower(strings.TrimSpace(settings.Driver))

	switch settings.Driver {
	case BlobDriverFS:
		if settings.Root == "" {
			return fmt.Errorf("blobstore.root is required for the fs driver")
		}
	case BlobDriverMemory, BlobDriverDatabase:
	case BlobDriverS3:
		if settings.S3.Bucket == "" {
			return fmt.Errorf("blobstore.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("blobstore.driver must be one of fs, memory, database, s3, got %q", settings.Driver)
	}

	return nil
}

func validateFileSettings(settings *FileSettings) error {
	if settings.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("files.max_upload_size_mb must be positive, got %d", settings.MaxUploadSizeMB)
	}
	if settings.NameRetries < 1 {
		return fmt.Errorf("files.name_retries must be at least 1, got %d", settings.NameRetries)
	}
	for i, ext := range settings.AllowedTypes {
		settings.AllowedTypes[i] = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	}
	return nil
}

func validateWebServerSettings(settings *WebServerSettings) error {
	if settings.Port == "" {
		return fmt.Errorf("webserver.port is required")
	}
	port, err := strconv.Atoi(settings.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("webserver.port must be a number between 1 and 65535, got %q", settings.Port)
	}
	if _, err := ParseTrustedProxies(settings.TrustedProxies); err != nil {
		return fmt.Errorf("webserver.trusted_proxies: %w", err)
	}
	return nil
}

// ParseTrustedProxies parses proxy entries given as CIDRs or single
// addresses. A single address becomes a host-sized network.
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			_, n, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q", entry)
			}
			nets = append(nets, n)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid address %q", entry)
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}

func validateSecuritySettings(settings *SecuritySettings) error {
	if settings.Username == "" {
		return fmt.Errorf("security.username is required")
	}
	if settings.Password == "" && settings.PasswordHash == "" {
		return fmt.Errorf("security.password or security.password_hash is required")
	}
	if settings.PasswordHash != "" && !strings.HasPrefix(settings.PasswordHash, "$2") {
		return fmt.Errorf("security.password_hash must be a bcrypt hash")
	}
	if settings.SessionMaxAge < 0 {
		return fmt.Errorf("security.session_max_age must not be negative")
	}
	if settings.LoginRatePerMin < 0 {
		return fmt.Errorf("security.login_rate_per_min must not be negative")
	}
	return nil
}
