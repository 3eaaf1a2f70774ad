// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("database.type", DatabaseSQLite)
	viper.SetDefault("database.sqlite.path", "data/patients.db")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")
	viper.SetDefault("database.mysql.username", "patientkeeper")
	viper.SetDefault("database.mysql.password", "")
	viper.SetDefault("database.mysql.database", "patientkeeper")
	viper.SetDefault("database.slow_query_threshold", 200*time.Millisecond)

	viper.SetDefault("blobstore.driver", BlobDriverFS)
	viper.SetDefault("blobstore.root", "data/patient_files")
	viper.SetDefault("blobstore.s3.region", "us-east-1")
	viper.SetDefault("blobstore.s3.use_path_style", false)

	viper.SetDefault("files.max_upload_size_mb", 20)
	viper.SetDefault("files.allowed_types", []string{"jpg", "jpeg", "png", "pdf", "doc", "docx"})
	viper.SetDefault("files.name_retries", 10)

	viper.SetDefault("webserver.host", "")
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.trusted_proxies", []string{})

	viper.SetDefault("security.username", "doctor")
	viper.SetDefault("security.password", "")
	viper.SetDefault("security.password_hash", "")
	viper.SetDefault("security.session_secret", "")
	viper.SetDefault("security.session_max_age", 12*time.Hour)
	viper.SetDefault("security.login_rate_per_min", 10)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.ttl", 30*time.Minute)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/patientkeeper.log")
	viper.SetDefault("logging.file_output.level", "info")
}

// Recognized database types and blob drivers
const (
	DatabaseSQLite = "sqlite"
	DatabaseMySQL  = "mysql"

	BlobDriverFS       = "fs"
	BlobDriverMemory   = "memory"
	BlobDriverDatabase = "database"
	BlobDriverS3       = "s3"
)
