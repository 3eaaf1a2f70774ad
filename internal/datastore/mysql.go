package datastore

import (
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/clinicdesk/patientkeeper/internal/errors"
	"github.com/clinicdesk/patientkeeper/internal/logger"
)

// MySQLConfig holds MySQL-specific configuration.
type MySQLConfig struct {
	Host               string
	Port               string
	Username           string
	Password           string
	Database           string
	SlowQueryThreshold time.Duration
	Logger             logger.Logger
}

// connectTimeout bounds dial, read and write on the MySQL connection
const connectTimeout = "10s"

// MySQLManager handles an external MySQL database.
type MySQLManager struct {
	db       *gorm.DB
	location string // host:port/database for display
}

// DSN builds the driver DSN with proper credential escaping.
func (cfg *MySQLConfig) DSN() string {
	mcfg := mysql.Config{
		User:   cfg.Username,
		Passwd: cfg.Password,
		Net:    "tcp",
		Addr:   net.JoinHostPort(cfg.Host, cfg.Port),
		DBName: cfg.Database,
		Params: map[string]string{
			"charset":      "utf8mb4",
			"timeout":      connectTimeout,
			"readTimeout":  connectTimeout,
			"writeTimeout": connectTimeout,
		},
		ParseTime:            true,
		Loc:                  time.UTC,
		AllowNativePasswords: true,
	}
	return mcfg.FormatDSN()
}

// NewMySQLManager connects to MySQL and configures the connection pool.
func NewMySQLManager(cfg *MySQLConfig) (*MySQLManager, error) {
	location := fmt.Sprintf("%s:%s/%s", cfg.Host, cfg.Port, cfg.Database)

	db, err := gorm.Open(gormmysql.Open(cfg.DSN()), gormConfig(cfg.Logger, cfg.SlowQueryThreshold))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open MySQL database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("location", location).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &MySQLManager{
		db:       db,
		location: location,
	}, nil
}

// Initialize creates the schema.
func (m *MySQLManager) Initialize() error {
	return migrate(m.db)
}

// DB returns the underlying GORM database.
func (m *MySQLManager) DB() *gorm.DB {
	return m.db
}

// Path returns the database location (host:port/database).
func (m *MySQLManager) Path() string {
	return m.location
}

// Close closes the database connection.
func (m *MySQLManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

// IsMySQL returns true for MySQL manager.
func (m *MySQLManager) IsMySQL() bool {
	return true
}
