package metrics

import (
	"sync"
)

// TestRecorder captures recorded metrics in memory for verification in tests.
type TestRecorder struct {
	mu         sync.RWMutex
	operations map[string]map[string]int // operation -> status -> count
	durations  map[string][]float64      // operation -> list of durations
	errors     map[string]map[string]int // operation -> errorType -> count
}

// NewTestRecorder creates a new test recorder instance.
func NewTestRecorder() *TestRecorder {
	return &TestRecorder{
		operations: make(map[string]map[string]int),
		durations:  make(map[string][]float64),
		errors:     make(map[string]map[string]int),
	}
}

// RecordOperation implements Recorder.
func (r *TestRecorder) RecordOperation(operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.operations[operation] == nil {
		r.operations[operation] = make(map[string]int)
	}
	r.operations[operation][status]++
}

// RecordDuration implements Recorder.
func (r *TestRecorder) RecordDuration(operation string, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.durations[operation] = append(r.durations[operation], seconds)
}

// RecordError implements Recorder.
func (r *TestRecorder) RecordError(operation, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.errors[operation] == nil {
		r.errors[operation] = make(map[string]int)
	}
	r.errors[operation][errorType]++
}

// GetOperationCount returns the count of a specific operation and status.
func (r *TestRecorder) GetOperationCount(operation, status string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operations[operation][status]
}

// GetDurations returns a copy of the durations recorded for operation.
func (r *TestRecorder) GetDurations(operation string) []float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	durations, ok := r.durations[operation]
	if !ok {
		return nil
	}
	result := make([]float64, len(durations))
	copy(result, durations)
	return result
}

// GetErrorCount returns the count of a specific operation and error type.
func (r *TestRecorder) GetErrorCount(operation, errorType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errors[operation][errorType]
}

// Reset clears all recorded metrics.
func (r *TestRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.operations = make(map[string]map[string]int)
	r.durations = make(map[string][]float64)
	r.errors = make(map[string]map[string]int)
}
