package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clinicdesk/patientkeeper/internal/errors"
	"github.com/clinicdesk/patientkeeper/internal/logger"
)

// Config holds configuration for the SQLite manager.
type Config struct {
	// Path is the database file. Parent directories are created.
	Path string
	// SlowQueryThreshold logs slower statements at WARN. Zero disables.
	SlowQueryThreshold time.Duration
	// Logger receives SQL traces; nil logs warnings to stdout.
	Logger logger.Logger
}

// SQLiteManager handles the embedded SQLite database.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteManager opens (creating if needed) the database file at cfg.Path.
// The pool is limited to one connection so writes are serialized.
func NewSQLiteManager(cfg Config) (*SQLiteManager, error) {
	if cfg.Path == "" {
		return nil, errors.Newf("sqlite database path is required").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.New(fmt.Errorf("failed to create database directory: %w", err)).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}

	// Build DSN with recommended SQLite pragmas
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", cfg.Path)

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(cfg.Logger, cfg.SlowQueryThreshold))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", cfg.Path).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &SQLiteManager{
		db:     db,
		dbPath: cfg.Path,
	}, nil
}

// Initialize creates the schema.
func (m *SQLiteManager) Initialize() error {
	return migrate(m.db)
}

// DB returns the underlying GORM database.
func (m *SQLiteManager) DB() *gorm.DB {
	return m.db
}

// Path returns the database file path.
func (m *SQLiteManager) Path() string {
	return m.dbPath
}

// Close closes the database connection.
func (m *SQLiteManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

// IsMySQL returns false for SQLite manager.
func (m *SQLiteManager) IsMySQL() bool {
	return false
}
