// Package processor hosts the stream-processing service: it consumes
// raw readings from the message queue, runs them through the batch
// processor and acknowledges them once handled.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"agrodata.dev/farm-pipeline/internal/pipeline"
	"agrodata.dev/farm-pipeline/pkg/mq"
)

const (
	// DefaultBatchSize is the number of buffered deliveries that
	// triggers an immediate flush.
	DefaultBatchSize = 25

	// DefaultFlushInterval bounds how long a partial batch may wait.
	DefaultFlushInterval = time.Second
)

// Consumer drains the readings queue into the batch processor. It
// buffers deliveries and flushes either when the buffer is full or on
// a timer, so quiet periods still drain promptly.
type Consumer struct {
	logger    *slog.Logger
	mqClient  mq.ClientInterface
	processor *pipeline.BatchProcessor

	batchSize     int
	flushInterval time.Duration
	prefetch      int
	done          chan struct{}
}

// ConsumerConfig holds the configuration for the Consumer.
type ConsumerConfig struct {
	Logger    *slog.Logger
	MQClient  mq.ClientInterface
	Processor *pipeline.BatchProcessor

	// BatchSize and FlushInterval default when zero.
	BatchSize     int
	FlushInterval time.Duration
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.MQClient == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	if cfg.Processor == nil {
		return nil, errors.New("processor cannot be nil")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	return &Consumer{
		logger:        cfg.Logger,
		mqClient:      cfg.MQClient,
		processor:     cfg.Processor,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		prefetch:      batchSize * 2,
		done:          make(chan struct{}),
	}, nil
}

// Start begins consuming messages from the queue.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting consumer")

	// Wait for MQ client to be ready
	time.Sleep(2 * time.Second)

	deliveries, err := c.mqClient.Consume(c.prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started, waiting for messages",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)

	go c.processMessages(ctx, deliveries)

	return nil
}

// processMessages buffers incoming deliveries and flushes them in
// batches.
func (c *Consumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]amqp.Delivery, 0, c.batchSize)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, flushing remaining messages")
			c.flush(batch)
			close(c.done)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				c.flush(batch)
				close(c.done)
				return
			}
			batch = append(batch, delivery)
			if len(batch) >= c.batchSize {
				c.flush(batch)
				batch = batch[:0]
				ticker.Reset(c.flushInterval)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush runs one batch through the processor and acknowledges every
// delivery. The batch is already claimed from the broker, so it runs
// under a background context: a shutdown mid-flush must not leave
// records acked but never validated, persisted or error-archived.
// Malformed and failed records land in the error partitions of the
// object store, so each delivery is acked exactly once.
func (c *Consumer) flush(batch []amqp.Delivery) {
	if len(batch) == 0 {
		return
	}

	payloads := make([][]byte, len(batch))
	for i, d := range batch {
		payloads[i] = d.Body
	}

	summary := c.processor.ProcessBatch(context.Background(), payloads)

	for _, d := range batch {
		if err := d.Ack(false); err != nil {
			c.logger.Error("failed to ack message", "error", err)
		}
	}

	c.logger.Info("batch processed",
		"size", len(batch),
		"processed", summary.Processed,
		"errored", summary.Errored,
		"alerts_emitted", summary.AlertsEmitted,
	)
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumer")

	if err := c.mqClient.Close(); err != nil {
		return fmt.Errorf("failed to close MQ client: %w", err)
	}

	select {
	case <-c.done:
	case <-time.After(10 * time.Second):
		c.logger.Warn("timeout waiting for message processing to stop")
	}

	c.logger.Info("consumer stopped")
	return nil
}
