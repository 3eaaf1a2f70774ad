package repository

// Table name constants
const (
	tablePatients         = "patients"
	tableMedicalRecords   = "medical_records"
	tablePatientFiles     = "patient_files"
	tablePatientFileBlobs = "patient_file_blobs"
)
