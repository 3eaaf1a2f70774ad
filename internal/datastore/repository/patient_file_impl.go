package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
)

// patientFileRepository implements PatientFileRepository.
type patientFileRepository struct {
	db *gorm.DB
}

// NewPatientFileRepository creates a new PatientFileRepository.
func NewPatientFileRepository(db *gorm.DB) PatientFileRepository {
	return &patientFileRepository{db: db}
}

func (r *patientFileRepository) Create(ctx context.Context, file *entities.PatientFile) error {
	err := r.db.WithContext(ctx).Table(tablePatientFiles).
		Omit("Patient").
		Create(file).Error
	return translateError(err)
}

func (r *patientFileRepository) GetByID(ctx context.Context, id uint) (*entities.PatientFile, error) {
	var file entities.PatientFile
	err := r.db.WithContext(ctx).Table(tablePatientFiles).First(&file, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *patientFileRepository) ListByPatient(ctx context.Context, patientID uint) ([]*entities.PatientFile, error) {
	files := make([]*entities.PatientFile, 0)
	err := r.db.WithContext(ctx).Table(tablePatientFiles).
		Where("patient_id = ?", patientID).
		Order("upload_date DESC, id DESC").
		Find(&files).Error
	return files, err
}

func (r *patientFileRepository) ListAll(ctx context.Context) ([]*entities.PatientFile, error) {
	files := make([]*entities.PatientFile, 0)
	err := r.db.WithContext(ctx).Table(tablePatientFiles).
		Order("id ASC").
		Find(&files).Error
	return files, err
}

func (r *patientFileRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Table(tablePatientFiles).Count(&count).Error
	return count, err
}
