package repository

import (
	"context"

	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
)

// PatientRepository provides access to the patients table.
type PatientRepository interface {
	// Create inserts a patient and sets its ID.
	// Returns ErrDuplicateKey if the national ID is already registered.
	Create(ctx context.Context, patient *entities.Patient) error

	// GetByID retrieves a patient by surrogate ID.
	// Returns ErrPatientNotFound if not found.
	GetByID(ctx context.Context, id uint) (*entities.Patient, error)

	// GetByNationalID retrieves a patient by national ID.
	// Returns ErrPatientNotFound if not found.
	GetByNationalID(ctx context.Context, nationalID string) (*entities.Patient, error)

	// List returns all patients ordered by name, then ID.
	List(ctx context.Context) ([]*entities.Patient, error)

	// Count returns the total number of patients.
	Count(ctx context.Context) (int64, error)
}
