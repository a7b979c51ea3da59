package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for the batch processor.
type PipelineMetrics struct {
	RecordsProcessed *prometheus.CounterVec
	RecordErrors     *prometheus.CounterVec
	AlertsGenerated  *prometheus.CounterVec
	AlertsEmitted    *prometheus.CounterVec
	AlertsSuppressed *prometheus.CounterVec
	BatchDuration    prometheus.Histogram
	BatchSize        prometheus.Histogram
	StoreFailures    *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers batch processor metrics.
func NewPipelineMetrics(namespace string) *PipelineMetrics {
	m := &PipelineMetrics{
		RecordsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "records_processed_total",
				Help:      "Total number of records processed, by validation status",
			},
			[]string{"status"},
		),
		RecordErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "record_errors_total",
				Help:      "Total number of records that failed processing, by reason",
			},
			[]string{"reason"},
		),
		AlertsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "alerts_generated_total",
				Help:      "Total number of candidate alerts derived from readings",
			},
			[]string{"type", "priority"},
		),
		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "alerts_emitted_total",
				Help:      "Total number of alerts that passed throttling and were published",
			},
			[]string{"type", "priority"},
		),
		AlertsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "alerts_suppressed_total",
				Help:      "Total number of candidate alerts suppressed by the throttle",
			},
			[]string{"type"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "batch_duration_seconds",
				Help:      "Duration of batch processing",
				Buckets:   prometheus.DefBuckets,
			},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "batch_size_records",
				Help:      "Number of records per processed batch",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
			},
		),
		StoreFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "store_failures_total",
				Help:      "Total number of failed object store writes, by partition",
			},
			[]string{"partition"},
		),
	}

	MustRegister(
		m.RecordsProcessed,
		m.RecordErrors,
		m.AlertsGenerated,
		m.AlertsEmitted,
		m.AlertsSuppressed,
		m.BatchDuration,
		m.BatchSize,
		m.StoreFailures,
	)

	return m
}
