// Package datastore manages the relational store: connection setup,
// schema creation, and repository construction on GORM.
package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
	"github.com/clinicdesk/patientkeeper/internal/datastore/repository"
	"github.com/clinicdesk/patientkeeper/internal/errors"
	"github.com/clinicdesk/patientkeeper/internal/logger"
)

// Manager defines the interface for relational store lifecycle operations.
type Manager interface {
	// Initialize creates or updates the schema.
	Initialize() error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Path returns the database location (file path for SQLite, host:port/db for MySQL).
	Path() string
	// Close closes the database connection pool.
	Close() error
	// IsMySQL returns true if this is a MySQL manager.
	IsMySQL() bool
}

// Repositories bundles the repositories built on one connection pool.
type Repositories struct {
	Patients       repository.PatientRepository
	MedicalRecords repository.MedicalRecordRepository
	Files          repository.PatientFileRepository
	Blobs          repository.FileBlobRepository
}

// NewRepositories builds all repositories on the manager's connection.
func NewRepositories(m Manager) *Repositories {
	db := m.DB()
	return &Repositories{
		Patients:       repository.NewPatientRepository(db),
		MedicalRecords: repository.NewMedicalRecordRepository(db),
		Files:          repository.NewPatientFileRepository(db),
		Blobs:          repository.NewFileBlobRepository(db),
	}
}

// Open creates the manager selected by settings.Type and initializes the schema.
func Open(settings *conf.DatabaseSettings, log logger.Logger) (Manager, error) {
	var (
		m   Manager
		err error
	)

	switch settings.Type {
	case conf.DatabaseMySQL:
		m, err = NewMySQLManager(&MySQLConfig{
			Host:               settings.MySQL.Host,
			Port:               settings.MySQL.Port,
			Username:           settings.MySQL.Username,
			Password:           settings.MySQL.Password,
			Database:           settings.MySQL.Database,
			SlowQueryThreshold: settings.SlowQueryThreshold,
			Logger:             log,
		})
	case conf.DatabaseSQLite, "":
		m, err = NewSQLiteManager(Config{
			Path:               settings.SQLite.Path,
			SlowQueryThreshold: settings.SlowQueryThreshold,
			Logger:             log,
		})
	default:
		return nil, errors.Newf("unsupported database type %q", settings.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}

	if err := m.Initialize(); err != nil {
		_ = m.Close()
		return nil, err
	}

	return m, nil
}

// migrate runs AutoMigrate for every entity
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(entities.All()...); err != nil {
		return errors.New(fmt.Errorf("failed to migrate schema: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// gormConfig builds the shared GORM configuration with SQL routed to the datastore logger
func gormConfig(log logger.Logger, slowThreshold time.Duration) *gorm.Config {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelWarn, nil)
	}
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowThreshold),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}
