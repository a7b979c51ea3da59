package notify_test

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrodata.dev/farm-pipeline/internal/notify"
	"agrodata.dev/farm-pipeline/pkg/logger"
)

// fakeMQClient captures pushed payloads.
type fakeMQClient struct {
	pushed  [][]byte
	pushErr error
}

func (f *fakeMQClient) Push(_ context.Context, data []byte) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, data)
	return nil
}

func (f *fakeMQClient) UnsafePush(_ context.Context, data []byte) error {
	return f.Push(context.Background(), data)
}

func (f *fakeMQClient) Consume(int) (<-chan amqp.Delivery, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMQClient) Close() error { return nil }

var _ = Describe("RecommendedAction", func() {
	It("maps every alert type to its playbook entry", func() {
		Expect(notify.RecommendedAction("High Temperature")).To(Equal(
			"Increase irrigation frequency and check cooling systems"))
		Expect(notify.RecommendedAction("Low Temperature")).To(Equal(
			"Check heating systems and frost protection"))
		Expect(notify.RecommendedAction("Low Water Level")).To(Equal(
			"Inspect irrigation system and water supply"))
		Expect(notify.RecommendedAction("High Water Level")).To(Equal(
			"Check drainage systems and reduce irrigation"))
		Expect(notify.RecommendedAction("Soil pH Warning")).To(Equal(
			"Test soil samples and adjust pH levels as needed"))
		Expect(notify.RecommendedAction("Low Nutrient")).To(Equal(
			"Schedule fertilizer application and soil testing"))
		Expect(notify.RecommendedAction("Sensor Failure")).To(Equal(
			"Immediate sensor inspection and replacement required"))
	})

	It("falls back to the generic action for unmapped types", func() {
		Expect(notify.RecommendedAction("Locust Swarm")).To(Equal(
			"Investigate the issue and contact technical support"))
	})
})

var _ = Describe("Message", func() {
	msg := notify.Message{
		AlertType:   "High Temperature",
		Priority:    "HIGH",
		Description: "High temperature warning: 38.0°C at loc_1",
		LocID:       "loc_1",
		EventID:     "evt_abc123def456",
		Timestamp:   "2026-08-30T10:15:00Z",
	}

	It("renders the subject with priority, type and location", func() {
		Expect(msg.Subject()).To(Equal("[HIGH] High Temperature @ loc_1"))
	})

	It("renders a complete body", func() {
		body := msg.Body()
		Expect(body).To(HavePrefix("Farm IoT Alert Notification"))
		Expect(body).To(ContainSubstring("Location: loc_1"))
		Expect(body).To(ContainSubstring("Timestamp: 2026-08-30T10:15:00Z"))
		Expect(body).To(ContainSubstring("Alert Type: High Temperature"))
		Expect(body).To(ContainSubstring("Priority: HIGH"))
		Expect(body).To(ContainSubstring("Description: High temperature warning: 38.0°C at loc_1"))
		Expect(body).To(ContainSubstring("Recommended Action: Increase irrigation frequency and check cooling systems"))
		Expect(body).To(ContainSubstring("Event ID: evt_abc123def456"))
		Expect(body).To(HaveSuffix("Generated by Farm Monitoring System"))
	})
})

var _ = Describe("AMQPNotifier", func() {
	It("requires a client and a logger", func() {
		_, err := notify.NewAMQPNotifier(nil, logger.NewDefault())
		Expect(err).To(HaveOccurred())

		_, err = notify.NewAMQPNotifier(&fakeMQClient{}, nil)
		Expect(err).To(HaveOccurred())
	})

	It("publishes a JSON envelope", func() {
		client := &fakeMQClient{}
		notifier, err := notify.NewAMQPNotifier(client, logger.NewDefault())
		Expect(err).NotTo(HaveOccurred())

		Expect(notifier.Publish(context.Background(), "[HIGH] X @ loc_1", "body text")).To(Succeed())
		Expect(client.pushed).To(HaveLen(1))

		var env map[string]string
		Expect(json.Unmarshal(client.pushed[0], &env)).To(Succeed())
		Expect(env["subject"]).To(Equal("[HIGH] X @ loc_1"))
		Expect(env["body"]).To(Equal("body text"))
	})

	It("propagates publish failures", func() {
		client := &fakeMQClient{pushErr: errors.New("channel closed")}
		notifier, err := notify.NewAMQPNotifier(client, logger.NewDefault())
		Expect(err).NotTo(HaveOccurred())

		Expect(notifier.Publish(context.Background(), "s", "b")).To(HaveOccurred())
	})
})
