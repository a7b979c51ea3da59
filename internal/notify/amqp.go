package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"agrodata.dev/farm-pipeline/pkg/mq"
)

// AMQPNotifier publishes notifications to a RabbitMQ alerts queue as
// JSON envelopes, for delivery by downstream channel integrations
// (email, SMS, chat).
type AMQPNotifier struct {
	logger *slog.Logger
	client mq.ClientInterface
}

// envelope is the wire form of one published notification.
type envelope struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewAMQPNotifier creates a notifier over an existing MQ client.
func NewAMQPNotifier(client mq.ClientInterface, logger *slog.Logger) (*AMQPNotifier, error) {
	if client == nil {
		return nil, errors.New("mq client cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &AMQPNotifier{logger: logger, client: client}, nil
}

// Publish delivers one notification to the alerts queue.
func (n *AMQPNotifier) Publish(ctx context.Context, subject, body string) error {
	data, err := json.Marshal(envelope{Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.client.Push(ctx, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Info("alert published", "subject", subject)
	return nil
}

var _ Notifier = (*AMQPNotifier)(nil)

// LogNotifier writes notifications to the structured log. Used when no
// alerts queue is configured and in tests.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs instead of publishing.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Publish logs the notification.
func (n *LogNotifier) Publish(_ context.Context, subject, body string) error {
	n.logger.Info("alert notification", "subject", subject, "body", body)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
