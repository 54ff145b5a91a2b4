// Package metrics exposes Prometheus collectors for write confirmations.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/opendelivery/internal/guard"
)

// Outcome label values.
const (
	OutcomeConfirmed   = "confirmed"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeCanceled    = "canceled"
)

// Metrics holds the write confirmation collectors.
type Metrics struct {
	Confirmations *prometheus.CounterVec
	Attempts      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opendelivery_write_confirmations_total",
			Help: "Total number of guarded writes by operation and outcome",
		}, []string{"op", "outcome"}),
		Attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opendelivery_write_confirmation_attempts",
			Help:    "Visibility checks needed per guarded write",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 40, 80, 160, 240},
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.Confirmations, m.Attempts)
	}
	return m
}

// ObserveConfirmation implements domain.Observer.
func (m *Metrics) ObserveConfirmation(op string, attempts int, err error) {
	m.Confirmations.WithLabelValues(op, outcome(err)).Inc()
	m.Attempts.WithLabelValues(op).Observe(float64(attempts))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeConfirmed
	case errors.Is(err, guard.ErrConsistencyTimeout):
		return OutcomeTimeout
	case errors.Is(err, guard.ErrBackendUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeCanceled
	}
}
