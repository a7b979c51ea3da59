package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GeneratorMetrics contains Prometheus metrics for the synthetic data generator.
type GeneratorMetrics struct {
	ReadingsGenerated  *prometheus.CounterVec
	FaultsInjected     *prometheus.CounterVec
	GenerationFailures *prometheus.CounterVec
	ActiveProducers    prometheus.Gauge
}

// NewGeneratorMetrics creates and registers generator metrics.
func NewGeneratorMetrics(namespace string) *GeneratorMetrics {
	m := &GeneratorMetrics{
		ReadingsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generator",
				Name:      "readings_generated_total",
				Help:      "Total number of synthetic readings generated, by location",
			},
			[]string{"loc_id"},
		),
		FaultsInjected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generator",
				Name:      "faults_injected_total",
				Help:      "Total number of faults injected into generated readings",
			},
			[]string{"kind"},
		),
		GenerationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generator",
				Name:      "generation_failures_total",
				Help:      "Total number of failed generation or publish attempts",
			},
			[]string{"reason"},
		),
		ActiveProducers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "generator",
				Name:      "active_producers",
				Help:      "Number of currently running producer goroutines",
			},
		),
	}

	MustRegister(
		m.ReadingsGenerated,
		m.FaultsInjected,
		m.GenerationFailures,
		m.ActiveProducers,
	)

	return m
}
