package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RecordsMetrics contains Prometheus metrics for patient record operations.
// It implements Recorder.
type RecordsMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewRecordsMetrics creates and registers records metrics
func NewRecordsMetrics(registry *prometheus.Registry) (*RecordsMetrics, error) {
	m := &RecordsMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RecordsMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_operations_total",
			Help: "Total number of patient record operations",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "records_operation_duration_seconds",
			Help:    "Time taken for patient record operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_errors_total",
			Help: "Total number of patient record errors and integrity warnings",
		},
		[]string{"operation", "error_type"},
	)

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
	}
}

// Describe implements the Collector interface
func (m *RecordsMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *RecordsMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation implements Recorder.
func (m *RecordsMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *RecordsMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *RecordsMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}
