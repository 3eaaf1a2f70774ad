package entities

import "time"

// Gender values accepted for Patient.Gender. Empty means not recorded.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// Patient is a registered patient. Rows are immutable after creation.
type Patient struct {
	ID               uint      `gorm:"primaryKey"`
	NationalID       string    `gorm:"column:national_id;type:varchar(64);not null;uniqueIndex:idx_patients_national_id"`
	Name             string    `gorm:"type:varchar(200);not null;index"`
	DateOfBirth      *string   `gorm:"type:varchar(10)"` // YYYY-MM-DD
	Gender           *string   `gorm:"type:varchar(10)"`
	Phone            *string   `gorm:"type:varchar(50)"`
	Address          *string   `gorm:"type:text"`
	RegistrationDate time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (Patient) TableName() string {
	return "patients"
}
