package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
)

// patientRepository implements PatientRepository.
type patientRepository struct {
	db *gorm.DB
}

// NewPatientRepository creates a new PatientRepository.
func NewPatientRepository(db *gorm.DB) PatientRepository {
	return &patientRepository{db: db}
}

func (r *patientRepository) Create(ctx context.Context, patient *entities.Patient) error {
	err := r.db.WithContext(ctx).Table(tablePatients).Create(patient).Error
	return translateError(err)
}

func (r *patientRepository) GetByID(ctx context.Context, id uint) (*entities.Patient, error) {
	var patient entities.Patient
	err := r.db.WithContext(ctx).Table(tablePatients).First(&patient, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &patient, nil
}

func (r *patientRepository) GetByNationalID(ctx context.Context, nationalID string) (*entities.Patient, error) {
	var patient entities.Patient
	err := r.db.WithContext(ctx).Table(tablePatients).
		Where("national_id = ?", nationalID).
		First(&patient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &patient, nil
}

func (r *patientRepository) List(ctx context.Context) ([]*entities.Patient, error) {
	patients := make([]*entities.Patient, 0)
	err := r.db.WithContext(ctx).Table(tablePatients).
		Order("name ASC, id ASC").
		Find(&patients).Error
	return patients, err
}

func (r *patientRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Table(tablePatients).Count(&count).Error
	return count, err
}
