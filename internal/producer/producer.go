// Package producer provides synthetic farm data generation and
// publishing functionality.
package producer

import (
	"context"
	"time"

	"agrodata.dev/farm-pipeline/pkg/generator"
	"agrodata.dev/farm-pipeline/pkg/metrics"
	"agrodata.dev/farm-pipeline/pkg/mq"
)

// Producer owns one site generator and publishes its readings to the
// message queue.
type Producer struct {
	MQClient  mq.ClientInterface
	Generator *generator.FarmGenerator
	metrics   *metrics.GeneratorMetrics // Optional metrics
}

// NewProducer creates a producer for one farm site.
func NewProducer(mqClient mq.ClientInterface, site generator.FarmSite, seed int64) *Producer {
	return &Producer{
		MQClient:  mqClient,
		Generator: generator.NewFarmGenerator(site, seed),
	}
}

// SetMetrics sets the metrics collector for this producer.
func (p *Producer) SetMetrics(m *metrics.GeneratorMetrics) {
	p.metrics = m
}

// PublishReading generates the next reading for the site and publishes
// it to the message queue.
func (p *Producer) PublishReading(ctx context.Context) error {
	reading := p.Generator.Next(time.Now())

	message, err := reading.Marshal()
	if err != nil {
		if p.metrics != nil {
			p.metrics.GenerationFailures.WithLabelValues("marshal_error").Inc()
		}
		return err
	}

	if err := p.MQClient.Push(ctx, message); err != nil {
		if p.metrics != nil {
			p.metrics.GenerationFailures.WithLabelValues("push_error").Inc()
		}
		return err
	}

	if p.metrics != nil {
		p.metrics.ReadingsGenerated.WithLabelValues(reading.LocID).Inc()
		if reading.Fault != generator.FaultNone {
			p.metrics.FaultsInjected.WithLabelValues(reading.Fault).Inc()
		}
	}

	return nil
}
