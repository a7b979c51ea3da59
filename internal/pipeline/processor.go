package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"agrodata.dev/farm-pipeline/internal/notify"
	"agrodata.dev/farm-pipeline/internal/store"
	"agrodata.dev/farm-pipeline/pkg/metrics"
)

// ProcessorVersion is stamped onto every persisted document.
const ProcessorVersion = "1.0"

const processorName = "farm-data-processor-v1"

// RecordStager receives validated readings for the warehouse staging
// table. Implemented by the warehouse package.
type RecordStager interface {
	Stage(ctx context.Context, r *Reading) error
}

// Summary aggregates the outcome of one processed batch.
type Summary struct {
	Processed     int
	Errored       int
	AlertsEmitted int
}

// ProcessorConfig holds the configuration for the BatchProcessor.
type ProcessorConfig struct {
	Logger   *slog.Logger
	Catalog  *RangeCatalog
	Store    store.Store
	Notifier notify.Notifier
	// Stager is optional; when nil, validated readings are not staged.
	Stager RecordStager
	// Throttle is optional; a default throttle is created when nil.
	Throttle *Throttle
	// Metrics is optional.
	Metrics *metrics.PipelineMetrics
	// Now is the clock; defaults to time.Now. Injectable for tests.
	Now func() time.Time
}

// BatchProcessor orchestrates validation, alerting, throttling and
// persistence-by-status for each reading in an inbound batch. Failure of
// one record is local to that record, never fatal to the batch.
type BatchProcessor struct {
	logger    *slog.Logger
	validator *Validator
	rules     *RuleEngine
	throttle  *Throttle
	store     store.Store
	notifier  notify.Notifier
	stager    RecordStager
	metrics   *metrics.PipelineMetrics
	now       func() time.Time
}

// NewBatchProcessor creates a BatchProcessor.
func NewBatchProcessor(cfg *ProcessorConfig) (*BatchProcessor, error) {
	if cfg == nil {
		return nil, errors.New("processor config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("range catalog cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("object store cannot be nil")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("notifier cannot be nil")
	}

	throttle := cfg.Throttle
	if throttle == nil {
		throttle = NewThrottle(nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &BatchProcessor{
		logger:    cfg.Logger,
		validator: NewValidator(cfg.Catalog),
		rules:     NewRuleEngine(cfg.Catalog),
		throttle:  throttle,
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		stager:    cfg.Stager,
		metrics:   cfg.Metrics,
		now:       now,
	}, nil
}

// ProcessBatch runs the pipeline over an ordered batch of raw payloads.
// The batch may be cancelled between records; records already persisted
// remain persisted.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, payloads [][]byte) Summary {
	var timer *prometheus.Timer
	if p.metrics != nil {
		timer = prometheus.NewTimer(p.metrics.BatchDuration)
		defer timer.ObserveDuration()
		p.metrics.BatchSize.Observe(float64(len(payloads)))
	}

	p.throttle.MaybePurge()

	var sum Summary
	for _, payload := range payloads {
		if ctx.Err() != nil {
			p.logger.Warn("batch cancelled",
				"processed", sum.Processed, "remaining", len(payloads)-sum.Processed-sum.Errored)
			break
		}

		emitted, err := p.processRecord(ctx, payload)
		sum.AlertsEmitted += emitted
		if err != nil {
			sum.Errored++
			continue
		}
		sum.Processed++
	}

	p.logger.Info("batch completed",
		"processed", sum.Processed,
		"errored", sum.Errored,
		"alerts_emitted", sum.AlertsEmitted,
	)
	return sum
}

// processRecord handles a single payload end to end. Unexpected panics
// are contained here so one bad record cannot take down the batch.
func (p *BatchProcessor) processRecord(ctx context.Context, payload []byte) (emitted int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unexpected processing error: %v", rec)
			p.logger.Error("record processing panicked", "error", err)
			p.recordError(ctx, "processing_error", err, payload, store.PartitionProcessingErrors)
			if p.metrics != nil {
				p.metrics.RecordErrors.WithLabelValues("processing_error").Inc()
			}
		}
	}()

	reading, err := DecodeReading(payload)
	if err != nil {
		p.logger.Error("failed to decode payload", "error", err)
		p.recordError(ctx, "json_decode_error", err, payload, store.PartitionDecodeErrors)
		if p.metrics != nil {
			p.metrics.RecordErrors.WithLabelValues("json_decode_error").Inc()
		}
		return 0, err
	}

	res := p.validator.Validate(reading)
	Annotate(reading, res, p.now())

	p.logger.Debug("reading validated",
		"event_id", reading.EventID,
		"loc_id", reading.LocID,
		"status", res.Status,
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
	)
	if p.metrics != nil {
		p.metrics.RecordsProcessed.WithLabelValues(string(res.Status)).Inc()
	}

	alerts := p.rules.DeriveAlerts(reading, res)
	if len(alerts) > 0 {
		reading.Alerts = alerts
	}
	for _, alert := range alerts {
		if p.metrics != nil {
			p.metrics.AlertsGenerated.WithLabelValues(alert.Type, string(alert.Priority)).Inc()
		}

		if !p.throttle.Allow(alert, reading.LocID) {
			p.logger.Debug("alert suppressed", "type", alert.Type, "loc_id", reading.LocID)
			if p.metrics != nil {
				p.metrics.AlertsSuppressed.WithLabelValues(alert.Type).Inc()
			}
			continue
		}

		emitted++
		reading.AlertsSent = append(reading.AlertsSent, SentAlert{
			Type:          alert.Type,
			Priority:      alert.Priority,
			SentTimestamp: p.now().UTC().Format(time.RFC3339),
		})
		if p.metrics != nil {
			p.metrics.AlertsEmitted.WithLabelValues(alert.Type, string(alert.Priority)).Inc()
		}

		// A failed send never blocks persistence of the reading.
		msg := notify.Message{
			AlertType:   alert.Type,
			Priority:    string(alert.Priority),
			Description: alert.Description,
			LocID:       reading.LocID,
			EventID:     reading.EventID,
			Timestamp:   reading.Timestamp,
		}
		if err := p.notifier.Publish(ctx, msg.Subject(), msg.Body()); err != nil {
			p.logger.Error("failed to publish alert",
				"type", alert.Type, "loc_id", reading.LocID, "error", err)
		}
	}

	p.persist(ctx, reading, res.Status)

	if res.Status != StatusInvalid && p.stager != nil {
		if err := p.stager.Stage(ctx, reading); err != nil {
			p.logger.Error("failed to stage reading for warehouse",
				"event_id", reading.EventID, "error", err)
		}
	}

	return emitted, nil
}

// persist writes the (possibly alert-annotated) reading to the object
// store under its status-derived partition. Sink failure is logged, not
// propagated: persistence and alert emission are independent.
func (p *BatchProcessor) persist(ctx context.Context, r *Reading, status Status) {
	partition := store.PartitionInvalid
	switch status {
	case StatusValid:
		partition = store.PartitionValid
	case StatusWarning:
		partition = store.PartitionWarnings
	}

	doc := r.Flatten()
	now := p.now().UTC()
	doc["processing_timestamp"] = now.Format(time.RFC3339)
	doc["processor_version"] = ProcessorVersion

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		p.logger.Error("failed to marshal document", "event_id", r.EventID, "error", err)
		return
	}

	locID := r.LocID
	if locID == "" {
		locID = "unknown"
	}
	key := store.ObjectKey(partition, locID, now, r.EventID)

	meta := store.Metadata{
		Location:  locID,
		EventTime: r.Timestamp,
		Status:    string(status),
		Processor: processorName,
	}
	if err := p.store.Put(ctx, key, body, meta); err != nil {
		p.logger.Error("failed to persist reading",
			"key", key, "status", status, "error", err)
		if p.metrics != nil {
			p.metrics.StoreFailures.WithLabelValues(partition).Inc()
		}
	}
}

// recordError persists a failed record to an error partition with the
// raw payload preserved for offline replay. Identifying fields are
// extracted best-effort.
func (p *BatchProcessor) recordError(ctx context.Context, kind string, cause error, payload []byte, partition string) {
	now := p.now().UTC()

	artifact := map[string]any{
		"error_type":    kind,
		"error_message": cause.Error(),
		"raw_payload":   string(payload),
		"timestamp":     now.Format(time.RFC3339),
	}

	locID := "unknown"
	eventID := "event_" + uuid.NewString()[:8]
	var partial struct {
		EventID string `json:"event_id"`
		LocID   string `json:"loc_id"`
	}
	if json.Unmarshal(payload, &partial) == nil {
		if partial.EventID != "" {
			artifact["event_id"] = partial.EventID
			eventID = partial.EventID
		}
		if partial.LocID != "" {
			artifact["loc_id"] = partial.LocID
			locID = partial.LocID
		}
	}

	body, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		p.logger.Error("failed to marshal error artifact", "error", err)
		return
	}

	key := store.ObjectKey(partition, locID, now, eventID)
	meta := store.Metadata{
		Location:  locID,
		Status:    kind,
		Processor: processorName,
	}
	if err := p.store.Put(ctx, key, body, meta); err != nil {
		p.logger.Error("failed to persist error artifact", "key", key, "error", err)
	}
}
