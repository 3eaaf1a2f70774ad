package repository

import (
	"context"

	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
)

// PatientFileRepository provides access to the patient_files table.
type PatientFileRepository interface {
	// Create inserts file metadata and sets its ID.
	// Returns ErrForeignKey if the patient does not exist and
	// ErrDuplicateKey if the stored path is already recorded.
	Create(ctx context.Context, file *entities.PatientFile) error

	// GetByID retrieves file metadata by ID.
	// Returns ErrFileNotFound if not found.
	GetByID(ctx context.Context, id uint) (*entities.PatientFile, error)

	// ListByPatient returns a patient's files, newest upload first.
	ListByPatient(ctx context.Context, patientID uint) ([]*entities.PatientFile, error)

	// ListAll returns every file row ordered by ID.
	ListAll(ctx context.Context) ([]*entities.PatientFile, error)

	// Count returns the total number of file rows.
	Count(ctx context.Context) (int64, error)
}
