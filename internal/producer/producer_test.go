package producer_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrodata.dev/farm-pipeline/internal/producer"
	"agrodata.dev/farm-pipeline/pkg/generator"
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

func (f *fakeMQClient) UnsafePush(ctx context.Context, data []byte) error {
	return f.Push(ctx, data)
}

func (f *fakeMQClient) Consume(int) (<-chan amqp.Delivery, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMQClient) Close() error { return nil }

var _ = Describe("Producer", func() {
	var (
		client *fakeMQClient
		p      *producer.Producer
	)

	BeforeEach(func() {
		client = &fakeMQClient{}
		p = producer.NewProducer(client, generator.Sites()[0], 42)
	})

	Describe("PublishReading", func() {
		It("publishes a JSON reading for the producer's site", func() {
			Expect(p.PublishReading(context.Background())).To(Succeed())
			Expect(client.pushed).To(HaveLen(1))

			var doc map[string]any
			Expect(json.Unmarshal(client.pushed[0], &doc)).To(Succeed())
			Expect(doc["loc_id"]).To(Equal("loc_1"))
			Expect(doc["event_id"]).To(HavePrefix("evt_"))
		})

		It("publishes a new reading on every call", func() {
			for i := 0; i < 5; i++ {
				Expect(p.PublishReading(context.Background())).To(Succeed())
			}
			Expect(client.pushed).To(HaveLen(5))

			ids := make(map[string]bool)
			for _, payload := range client.pushed {
				var doc map[string]any
				Expect(json.Unmarshal(payload, &doc)).To(Succeed())
				ids[doc["event_id"].(string)] = true
			}
			Expect(ids).To(HaveLen(5))
		})

		It("propagates push failures", func() {
			client.pushErr = errors.New("broker unavailable")
			Expect(p.PublishReading(context.Background())).To(HaveOccurred())
		})
	})
})

var _ = Describe("Server", func() {
	Describe("NewServer", func() {
		log := logger.NewDefault()

		It("creates one producer per site", func() {
			server, err := producer.NewServer(&producer.ServerConfig{
				Logger:      log,
				RabbitMQURL: "amqp://localhost:5672",
				QueueName:   "farm-data",
				Interval:    time.Second,
				Seed:        1,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(server).NotTo(BeNil())

			_ = server.Shutdown()
		})

		It("rejects a non-positive interval", func() {
			_, err := producer.NewServer(&producer.ServerConfig{
				Logger:    log,
				QueueName: "farm-data",
			})
			Expect(err).To(HaveOccurred())
		})

		It("rejects a missing logger", func() {
			_, err := producer.NewServer(&producer.ServerConfig{
				QueueName: "farm-data",
				Interval:  time.Second,
			})
			Expect(err).To(HaveOccurred())
		})

		It("rejects a missing queue name", func() {
			_, err := producer.NewServer(&producer.ServerConfig{
				Logger:   log,
				Interval: time.Second,
			})
			Expect(err).To(HaveOccurred())
		})
	})
})
