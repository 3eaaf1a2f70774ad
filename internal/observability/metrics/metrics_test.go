package metrics

import (
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/patientkeeper/internal/errors"
)

func TestRecordsMetrics(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	m, err := NewRecordsMetrics(registry)
	require.NoError(t, err)

	m.RecordOperation(OpSaveFile, StatusSuccess)
	m.RecordOperation(OpSaveFile, StatusSuccess)
	m.RecordOperation(OpSaveFile, StatusError)
	m.RecordError(OpSaveFile, "integrity_warning")
	m.RecordDuration(OpSaveFile, 0.02)

	assert.InDelta(t, 2, testutil.ToFloat64(m.operationsTotal.WithLabelValues(OpSaveFile, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operationsTotal.WithLabelValues(OpSaveFile, StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.errorsTotal.WithLabelValues(OpSaveFile, "integrity_warning")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))

	_, err = NewRecordsMetrics(registry)
	require.Error(t, err, "registering twice on one registry must fail")
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()
	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordHTTPRequest("POST", "/api/v1/login", 401, 0.003)
	m.RecordAuthOperation("login", "failure")

	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/api/v1/login", "401")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.authOperationsTotal.WithLabelValues("login", "failure")), 0)
}

// Hooks are process-global, so these tests are not parallel.
func TestErrorMetricsHook(t *testing.T) {
	m, err := NewErrorMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	t.Cleanup(m.Install())

	_ = errors.New(stderrors.New("disk full")).
		Component("blobstore").
		Category(errors.CategoryBlobStorage).
		Build()

	assert.InDelta(t, 1, testutil.ToFloat64(m.errorsTotal.WithLabelValues("blobstore", "blob-storage")), 0)
}

func TestErrorMetricsUninstallKeepsOtherHooks(t *testing.T) {
	first, err := NewErrorMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	second, err := NewErrorMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	uninstallFirst := first.Install()
	uninstallSecond := second.Install()
	t.Cleanup(uninstallSecond)

	build := func() {
		_ = errors.New(stderrors.New("row missing")).
			Component("records").
			Category(errors.CategoryNotFound).
			Build()
	}

	build()
	uninstallFirst()
	uninstallFirst()
	build()

	assert.InDelta(t, 1, testutil.ToFloat64(first.errorsTotal.WithLabelValues("records", "not-found")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(second.errorsTotal.WithLabelValues("records", "not-found")), 0)
}

func TestTestRecorder(t *testing.T) {
	t.Parallel()
	r := NewTestRecorder()
	r.RecordOperation(OpAddPatient, StatusSuccess)
	r.RecordError(OpAddPatient, "duplicate_key")
	r.RecordDuration(OpAddPatient, 0.1)

	assert.Equal(t, 1, r.GetOperationCount(OpAddPatient, StatusSuccess))
	assert.Equal(t, 0, r.GetOperationCount(OpAddPatient, StatusError))
	assert.Equal(t, 1, r.GetErrorCount(OpAddPatient, "duplicate_key"))
	assert.Equal(t, []float64{0.1}, r.GetDurations(OpAddPatient))
	assert.Nil(t, r.GetDurations("unknown"))

	r.Reset()
	assert.Zero(t, r.GetOperationCount(OpAddPatient, StatusSuccess))

	var _ Recorder = NewNoOpRecorder()
	var _ Recorder = (*RecordsMetrics)(nil)
}
