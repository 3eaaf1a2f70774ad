package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics contains Prometheus metrics for the JSON API.
type HTTPMetrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	authOperationsTotal *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewHTTPMetrics creates and registers HTTP metrics
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.authOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_auth_operations_total",
			Help: "Total number of login and logout attempts",
		},
		[]string{"operation", "status"}, // status: success, failure, rate_limited
	)

	m.collectors = []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.authOperationsTotal,
	}
}

// Describe implements the Collector interface
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordHTTPRequest records a completed request. path is the route pattern, not the raw URL.
func (m *HTTPMetrics) RecordHTTPRequest(method, path string, statusCode int, duration float64) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordAuthOperation records a login or logout attempt
func (m *HTTPMetrics) RecordAuthOperation(operation, status string) {
	m.authOperationsTotal.WithLabelValues(operation, status).Inc()
}
