// Package repository provides repository interfaces and GORM implementations
// for the patient record schema.
package repository

import (
	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/clinicdesk/patientkeeper/internal/errors"
)

// Sentinel errors for repository operations.
// Callers distinguish failure modes with errors.Is instead of driver errors.
var (
	// ErrPatientNotFound indicates the requested patient does not exist.
	ErrPatientNotFound = errors.NewStd("patient not found")

	// ErrFileNotFound indicates the requested file metadata row does not exist.
	ErrFileNotFound = errors.NewStd("file not found")

	// ErrBlobNotFound indicates no inline blob exists for the key.
	ErrBlobNotFound = errors.NewStd("blob not found")

	// ErrDuplicateKey indicates a unique constraint violation.
	ErrDuplicateKey = errors.NewStd("duplicate key")

	// ErrForeignKey indicates a row references a parent that does not exist.
	ErrForeignKey = errors.NewStd("foreign key violation")
)

// MySQL error numbers
const (
	mySQLDuplicateEntry   = 1062
	mySQLNoReferencedRow  = 1452
	mySQLNoReferencedRow2 = 1216
)

// translateError maps driver constraint errors to repository sentinels.
// Other errors are returned unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case IsDuplicateKeyError(err):
		return errors.Join(ErrDuplicateKey, err)
	case IsForeignKeyError(err):
		return errors.Join(ErrForeignKey, err)
	default:
		return err
	}
}

// IsDuplicateKeyError reports whether err is a unique constraint violation
// from SQLite or MySQL.
func IsDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mySQLDuplicateEntry
	}

	return false
}

// IsForeignKeyError reports whether err is a foreign key violation
// from SQLite or MySQL.
func IsForeignKeyError(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mySQLNoReferencedRow || mysqlErr.Number == mySQLNoReferencedRow2
	}

	return false
}
