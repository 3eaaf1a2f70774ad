package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
)

// medicalRecordRepository implements MedicalRecordRepository.
type medicalRecordRepository struct {
	db *gorm.DB
}

// NewMedicalRecordRepository creates a new MedicalRecordRepository.
func NewMedicalRecordRepository(db *gorm.DB) MedicalRecordRepository {
	return &medicalRecordRepository{db: db}
}

func (r *medicalRecordRepository) Create(ctx context.Context, record *entities.MedicalRecord) error {
	err := r.db.WithContext(ctx).Table(tableMedicalRecords).
		Omit("Patient").
		Create(record).Error
	return translateError(err)
}

func (r *medicalRecordRepository) ListByPatient(ctx context.Context, patientID uint) ([]*entities.MedicalRecord, error) {
	records := make([]*entities.MedicalRecord, 0)
	err := r.db.WithContext(ctx).Table(tableMedicalRecords).
		Where("patient_id = ?", patientID).
		Order("record_date DESC, id DESC").
		Find(&records).Error
	return records, err
}

func (r *medicalRecordRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Table(tableMedicalRecords).Count(&count).Error
	return count, err
}
