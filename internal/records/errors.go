package records

import (
	"fmt"

	"github.com/clinicdesk/patientkeeper/internal/errors"
)

// Sentinel errors. Every failure returned by Service is an *errors.EnhancedError
// that unwraps to exactly one of these, so callers test with errors.Is.
var (
	// ErrDuplicateKey indicates the national ID is already registered.
	ErrDuplicateKey = errors.NewStd("duplicate key")

	// ErrNotFound indicates a lookup miss.
	ErrNotFound = errors.NewStd("not found")

	// ErrStorage indicates a relational store or blob store failure.
	ErrStorage = errors.NewStd("storage error")

	// ErrInvalidInput indicates a request that fails validation.
	ErrInvalidInput = errors.NewStd("invalid input")
)

// Kind is the presentation-facing name of an error kind.
type Kind string

const (
	KindDuplicateKey Kind = "DuplicateKey"
	KindNotFound     Kind = "NotFound"
	KindStorage      Kind = "StorageError"
	KindInvalidInput Kind = "InvalidInput"
)

// KindOf classifies err. Errors not produced by this package are reported as storage errors.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrDuplicateKey):
		return KindDuplicateKey
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindStorage
	}
}

// IntegrityWarning is a soft, non-fatal inconsistency between a metadata
// row and the bytes in the blob store.
type IntegrityWarning struct {
	Kind     WarningKind `json:"kind"`
	Key      string      `json:"key"`
	Expected int64       `json:"expected_bytes,omitempty"`
	Actual   int64       `json:"actual_bytes,omitempty"`
}

// WarningKind names an integrity warning.
type WarningKind string

const (
	// WarningSizeMismatch means the stored size differs from the bytes written.
	WarningSizeMismatch WarningKind = "size_mismatch"
	// WarningMissingBlob means a metadata row points at bytes that are gone.
	WarningMissingBlob WarningKind = "missing_blob"
	// WarningOrphanBlob means bytes exist with no metadata row.
	WarningOrphanBlob WarningKind = "orphan_blob"
)

func (w IntegrityWarning) String() string {
	switch w.Kind {
	case WarningSizeMismatch:
		return fmt.Sprintf("%s: size mismatch, wrote %d bytes but store reports %d", w.Key, w.Expected, w.Actual)
	case WarningMissingBlob:
		return fmt.Sprintf("%s: file is recorded but missing from the blob store", w.Key)
	default:
		return fmt.Sprintf("%s: file exists in the blob store without a metadata row", w.Key)
	}
}

func duplicateKeyError(op, msg string, cause error) error {
	return newError(ErrDuplicateKey, errors.CategoryConflict, op, msg, cause)
}

func notFoundError(op, msg string) error {
	return newError(ErrNotFound, errors.CategoryNotFound, op, msg, nil)
}

func storageError(op, msg string, cause error) error {
	category := errors.CategoryDatabase
	if errors.IsCategory(cause, errors.CategoryBlobStorage) || errors.IsCategory(cause, errors.CategoryFileIO) {
		category = errors.CategoryBlobStorage
	}
	return newError(ErrStorage, category, op, msg, cause)
}

func invalidInputError(op, msg string) error {
	return newError(ErrInvalidInput, errors.CategoryValidation, op, msg, nil)
}

// newError wraps sentinel (and the native cause, when present) in an
// enhanced error. The cause's message is kept so operators see the driver text.
func newError(sentinel error, category errors.ErrorCategory, op, msg string, cause error) error {
	var err error
	if cause != nil {
		err = fmt.Errorf("%s: %w: %w", msg, sentinel, cause)
	} else {
		err = fmt.Errorf("%s: %w", msg, sentinel)
	}
	return errors.New(err).
		Component("records").
		Category(category).
		Context("operation", op).
		Build()
}
