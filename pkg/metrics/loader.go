package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LoaderMetrics contains Prometheus metrics for the warehouse loader.
type LoaderMetrics struct {
	CyclesTotal     prometheus.Counter
	CycleFailures   prometheus.Counter
	RowsExtracted   prometheus.Counter
	DimensionsAdded *prometheus.CounterVec
	FactsInserted   prometheus.Counter
	CycleDuration   prometheus.Histogram
}

// NewLoaderMetrics creates and registers warehouse loader metrics.
func NewLoaderMetrics(namespace string) *LoaderMetrics {
	m := &LoaderMetrics{
		CyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "cycles_total",
				Help:      "Total number of load cycles attempted",
			},
		),
		CycleFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "cycle_failures_total",
				Help:      "Total number of load cycles that aborted with an error",
			},
		),
		RowsExtracted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "rows_extracted_total",
				Help:      "Total number of validated readings extracted past the watermark",
			},
		),
		DimensionsAdded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "dimension_rows_added_total",
				Help:      "Total number of new dimension rows inserted, by dimension",
			},
			[]string{"dimension"},
		),
		FactsInserted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "fact_rows_inserted_total",
				Help:      "Total number of fact rows inserted",
			},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "cycle_duration_seconds",
				Help:      "Duration of load cycles",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	MustRegister(
		m.CyclesTotal,
		m.CycleFailures,
		m.RowsExtracted,
		m.DimensionsAdded,
		m.FactsInserted,
		m.CycleDuration,
	)

	return m
}
