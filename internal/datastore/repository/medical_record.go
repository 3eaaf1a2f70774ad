package repository

import (
	"context"

	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
)

// MedicalRecordRepository provides access to the medical_records table.
type MedicalRecordRepository interface {
	// Create inserts an observation and sets its ID.
	// Returns ErrForeignKey if the patient does not exist.
	Create(ctx context.Context, record *entities.MedicalRecord) error

	// ListByPatient returns a patient's observations, newest first.
	// Rows with equal record dates are ordered by ID descending.
	ListByPatient(ctx context.Context, patientID uint) ([]*entities.MedicalRecord, error)

	// Count returns the total number of observations.
	Count(ctx context.Context) (int64, error)
}
