package entities

import "time"

// MedicalRecord is a single vital-sign observation for a patient.
// Nil measurement pointers are stored as NULL ("not entered").
type MedicalRecord struct {
	ID            uint      `gorm:"primaryKey"`
	PatientID     uint      `gorm:"not null;index:idx_medical_records_patient_date,priority:1"`
	Patient       *Patient  `gorm:"foreignKey:PatientID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	RecordDate    time.Time `gorm:"not null;index:idx_medical_records_patient_date,priority:2"`
	BloodPressure *string   `gorm:"type:varchar(32)"`
	GlucoseLevel  *float64
	Temperature   *float64
	Notes         *string `gorm:"type:text"`
}

// TableName returns the table name for GORM.
func (MedicalRecord) TableName() string {
	return "medical_records"
}
