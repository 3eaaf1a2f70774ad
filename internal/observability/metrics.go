// Package observability provides Prometheus metrics for patientkeeper.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicdesk/patientkeeper/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Records  *metrics.RecordsMetrics
	HTTP     *metrics.HTTPMetrics
	Errors   *metrics.ErrorMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry.
// Go runtime and process collectors are included.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	recordsMetrics, err := metrics.NewRecordsMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create records metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	errorMetrics, err := metrics.NewErrorMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create error metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Records:  recordsMetrics,
		HTTP:     httpMetrics,
		Errors:   errorMetrics,
	}, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
