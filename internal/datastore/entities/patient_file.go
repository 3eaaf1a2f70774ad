package entities

import "time"

// PatientFile is the metadata row for an uploaded attachment.
// FilePath holds the blob key relative to the blob store root.
type PatientFile struct {
	ID          uint      `gorm:"primaryKey"`
	PatientID   uint      `gorm:"not null;index:idx_patient_files_patient_date,priority:1"`
	Patient     *Patient  `gorm:"foreignKey:PatientID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	FileName    string    `gorm:"type:varchar(255);not null"`
	FilePath    string    `gorm:"type:varchar(512);not null;uniqueIndex:idx_patient_files_path"`
	UploadDate  time.Time `gorm:"not null;index:idx_patient_files_patient_date,priority:2"`
	FileType    *string   `gorm:"type:varchar(16)"`
	Description *string   `gorm:"type:text"`
}

// TableName returns the table name for GORM.
func (PatientFile) TableName() string {
	return "patient_files"
}

// PatientFileBlob holds attachment bytes inline for the database blob driver.
type PatientFileBlob struct {
	ID          uint      `gorm:"primaryKey"`
	Key         string    `gorm:"column:blob_key;type:varchar(512);not null;uniqueIndex:idx_patient_file_blobs_key"`
	Data        []byte    `gorm:"not null"`
	Size        int64     `gorm:"not null"`
	ContentType string    `gorm:"type:varchar(100)"`
	SHA256      string    `gorm:"column:sha256;type:varchar(64)"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (PatientFileBlob) TableName() string {
	return "patient_file_blobs"
}

// All returns every model in dependency order for AutoMigrate.
func All() []any {
	return []any{
		&Patient{},
		&MedicalRecord{},
		&PatientFile{},
		&PatientFileBlob{},
	}
}
