// Package metrics provides custom Prometheus metrics for patientkeeper.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on it rather than on concrete collectors so tests
// can pass a TestRecorder or NoOpRecorder.
type Recorder interface {
	// RecordOperation records an operation with its outcome
	// (e.g. "add_patient", "success").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type
	// (e.g. "save_file", "integrity_warning").
	RecordError(operation, errorType string)
}

// NoOpRecorder discards everything.
type NoOpRecorder struct{}

// NewNoOpRecorder creates a recorder that records nothing.
func NewNoOpRecorder() *NoOpRecorder {
	return &NoOpRecorder{}
}

func (n *NoOpRecorder) RecordOperation(operation, status string) {}

func (n *NoOpRecorder) RecordDuration(operation string, seconds float64) {}

func (n *NoOpRecorder) RecordError(operation, errorType string) {}
