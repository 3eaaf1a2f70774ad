// Package entities defines the GORM models for the patient record schema.
//
// Tables:
//   - patients: one row per registered patient, unique national ID
//   - medical_records: append-only vital-sign observations
//   - patient_files: metadata for uploaded attachments, pointing at a blob key
//   - patient_file_blobs: inline attachment bytes for the database blob driver
//
// medical_records.patient_id and patient_files.patient_id are real foreign
// keys with ON DELETE RESTRICT; patients are never deleted by the application.
package entities
