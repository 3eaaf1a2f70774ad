package metrics

// Operation label values recorded by the records service.
const (
	OpAddPatient      = "add_patient"
	OpGetPatient      = "get_patient"
	OpListPatients    = "list_patients"
	OpAddObservation  = "add_observation"
	OpListObservation = "list_observations"
	OpSaveFile        = "save_file"
	OpListFiles       = "list_files"
	OpReadFile        = "read_file"
	OpDescribe        = "describe"
	OpNameRetry       = "name_retry"
	OpPatientCache    = "patient_cache"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusHit     = "hit"
	StatusMiss    = "miss"
)

// Histogram bucket parameters.
const (
	BucketStart1ms = 0.001
	BucketFactor2  = 2
	BucketCount15  = 15
)
