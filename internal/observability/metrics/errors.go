package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicdesk/patientkeeper/internal/errors"
)

// ErrorMetrics counts enhanced errors by component and category.
type ErrorMetrics struct {
	errorsTotal *prometheus.CounterVec
}

// NewErrorMetrics creates and registers error metrics
func NewErrorMetrics(registry *prometheus.Registry) (*ErrorMetrics, error) {
	m := &ErrorMetrics{
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "app_errors_total",
				Help: "Total number of errors built through the errors package",
			},
			[]string{"component", "category"},
		),
	}
	if err := registry.Register(m.errorsTotal); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe counts one error. It has the errors.Hook signature.
func (m *ErrorMetrics) Observe(ee *errors.EnhancedError) {
	m.errorsTotal.WithLabelValues(ee.GetComponent(), ee.GetCategory()).Inc()
}

// Install registers Observe as an error hook. The returned function removes
// this hook only; hooks installed by others keep running.
func (m *ErrorMetrics) Install() (uninstall func()) {
	return errors.AddErrorHook(m.Observe)
}
