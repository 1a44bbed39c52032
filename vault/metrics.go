package vault

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are shared by the vaults of every secret kind and labelled by kind.
type Metrics struct {
	stored  *prometheus.GaugeVec
	added   *prometheus.CounterVec
	updated *prometheus.CounterVec
}

// NewMetrics registers the vault metrics with factory. A nil factory
// disables metrics.
func NewMetrics(factory *promauto.Factory, namespace string, subsystem string) *Metrics {
	if factory == nil {
		return nil
	}
	return &Metrics{
		stored: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "secrets_stored",
				Help:      "Number of distinct stored secrets observed since start.",
			},
			[]string{"kind"},
		),
		added: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "secrets_added_total",
				Help:      "Number of secrets added since start.",
			},
			[]string{"kind"},
		),
		updated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "secrets_updated_total",
				Help:      "Number of secret values replaced since start.",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) incStored(kind string) {
	if m != nil {
		m.stored.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) incAdded(kind string) {
	if m != nil {
		m.added.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) incUpdated(kind string) {
	if m != nil {
		m.updated.WithLabelValues(kind).Inc()
	}
}
