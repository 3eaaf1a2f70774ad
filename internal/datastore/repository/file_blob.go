package repository

import (
	"context"

	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
)

// FileBlobRepository provides access to the patient_file_blobs table.
type FileBlobRepository interface {
	// Create inserts a blob. Returns ErrDuplicateKey if the key exists.
	Create(ctx context.Context, blob *entities.PatientFileBlob) error

	// Get retrieves a blob including its bytes.
	// Returns ErrBlobNotFound if not found.
	Get(ctx context.Context, key string) (*entities.PatientFileBlob, error)

	// Head retrieves blob metadata without loading Data.
	// Returns ErrBlobNotFound if not found.
	Head(ctx context.Context, key string) (*entities.PatientFileBlob, error)

	// Delete removes a blob. Returns ErrBlobNotFound if not found.
	Delete(ctx context.Context, key string) error

	// ListKeys returns metadata for blobs whose key starts with prefix, ordered by key.
	ListKeys(ctx context.Context, prefix string) ([]*entities.PatientFileBlob, error)
}
