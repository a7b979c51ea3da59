package processor_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"agrodata.dev/farm-pipeline/internal/notify"
	"agrodata.dev/farm-pipeline/internal/pipeline"
	"agrodata.dev/farm-pipeline/internal/processor"
	"agrodata.dev/farm-pipeline/internal/store"
	"agrodata.dev/farm-pipeline/pkg/logger"
)

// fakeAcknowledger counts acknowledged delivery tags.
type fakeAcknowledger struct {
	mu   sync.Mutex
	acks int
}

func (a *fakeAcknowledger) Ack(_ uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _, _ bool) error { return nil }
func (a *fakeAcknowledger) Reject(_ uint64, _ bool) error  { return nil }

func (a *fakeAcknowledger) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks
}

// fakeMQClient hands the consumer a channel the test feeds directly.
type fakeMQClient struct {
	deliveries chan amqp.Delivery
	closeOnce  sync.Once
}

func newFakeMQClient() *fakeMQClient {
	return &fakeMQClient{deliveries: make(chan amqp.Delivery, 64)}
}

func (f *fakeMQClient) Push(context.Context, []byte) error       { return nil }
func (f *fakeMQClient) UnsafePush(context.Context, []byte) error { return nil }

func (f *fakeMQClient) Consume(int) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeMQClient) Close() error {
	f.closeOnce.Do(func() { close(f.deliveries) })
	return nil
}

// cancellingStager cancels a context from inside the first Stage call,
// mimicking a shutdown that lands while a batch is being processed.
type cancellingStager struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	staged int
}

func (s *cancellingStager) Stage(_ context.Context, _ *pipeline.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged++
	if s.staged == 1 {
		s.cancel()
	}
	return nil
}

func (s *cancellingStager) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged
}

func payloadWithID(eventID string) []byte {
	return []byte(`{
		"event_id": "` + eventID + `",
		"timestamp": "2026-08-30T10:15:00.000000Z",
		"loc_id": "loc_1",
		"location": {"latitude": 23.4219, "longitude": 30.5978},
		"sensor_data": {
			"temperature": 24.0, "humidity": 60.0, "water_level": 1.8,
			"nitrogen": 110.0, "phosphorus": 60.0, "potassium": 55.0, "ph": 6.8
		},
		"weather_data": {"temperature_2m": 28.0, "relative_humidity_2m": 55.0}
	}`)
}

func validPayload() []byte {
	return []byte(`{
		"event_id": "evt_consumer_test1",
		"timestamp": "2026-08-30T10:15:00.000000Z",
		"loc_id": "loc_1",
		"location": {"latitude": 23.4219, "longitude": 30.5978},
		"sensor_data": {
			"temperature": 24.0, "humidity": 60.0, "water_level": 1.8,
			"nitrogen": 110.0, "phosphorus": 60.0, "potassium": 55.0, "ph": 6.8
		},
		"weather_data": {"temperature_2m": 28.0, "relative_humidity_2m": 55.0}
	}`)
}

var _ = Describe("Consumer", func() {
	var (
		log       = logger.NewDefault()
		mqClient  *fakeMQClient
		ack       *fakeAcknowledger
		memStore  *store.MemoryStore
		batchProc *pipeline.BatchProcessor
	)

	newConsumer := func(batchSize int, flushInterval time.Duration) *processor.Consumer {
		var err error
		batchProc, err = pipeline.NewBatchProcessor(&pipeline.ProcessorConfig{
			Logger:   log,
			Catalog:  pipeline.DefaultCatalog(),
			Store:    memStore,
			Notifier: notify.NewLogNotifier(log),
		})
		Expect(err).NotTo(HaveOccurred())

		c, err := processor.NewConsumer(&processor.ConsumerConfig{
			Logger:        log,
			MQClient:      mqClient,
			Processor:     batchProc,
			BatchSize:     batchSize,
			FlushInterval: flushInterval,
		})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	deliver := func(payload []byte, tag uint64) {
		mqClient.deliveries <- amqp.Delivery{
			Acknowledger: ack,
			DeliveryTag:  tag,
			Body:         payload,
		}
	}

	BeforeEach(func() {
		mqClient = newFakeMQClient()
		ack = &fakeAcknowledger{}
		memStore = store.NewMemoryStore()
	})

	Describe("NewConsumer", func() {
		It("rejects a nil config", func() {
			_, err := processor.NewConsumer(nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a missing logger", func() {
			_, err := processor.NewConsumer(&processor.ConsumerConfig{
				MQClient: mqClient,
			})
			Expect(err).To(HaveOccurred())
		})

		It("rejects a missing mq client", func() {
			_, err := processor.NewConsumer(&processor.ConsumerConfig{
				Logger: log,
			})
			Expect(err).To(HaveOccurred())
		})

		It("rejects a missing batch processor", func() {
			_, err := processor.NewConsumer(&processor.ConsumerConfig{
				Logger:   log,
				MQClient: mqClient,
			})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("batching", func() {
		It("flushes a full batch and acknowledges every delivery", func() {
			consumer := newConsumer(2, time.Minute)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			Expect(consumer.Start(ctx)).To(Succeed())

			deliver(validPayload(), 1)
			deliver(validPayload(), 2)

			Eventually(ack.count, 5*time.Second).Should(Equal(2))
			// Duplicate event id: one stored object, both deliveries acked.
			Eventually(memStore.Len, 5*time.Second).Should(Equal(1))

			Expect(consumer.Stop()).To(Succeed())
		})

		It("flushes a partial batch on the timer", func() {
			consumer := newConsumer(100, 200*time.Millisecond)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			Expect(consumer.Start(ctx)).To(Succeed())

			deliver(validPayload(), 1)

			Eventually(ack.count, 5*time.Second).Should(Equal(1))

			Expect(consumer.Stop()).To(Succeed())
		})

		It("acknowledges undecodable payloads after routing them to the error partition", func() {
			consumer := newConsumer(1, time.Minute)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			Expect(consumer.Start(ctx)).To(Succeed())

			deliver([]byte("{not json"), 1)

			Eventually(ack.count, 5*time.Second).Should(Equal(1))
			Eventually(func() []string {
				return memStore.Keys("errors/json_decode/")
			}, 5*time.Second).Should(HaveLen(1))

			Expect(consumer.Stop()).To(Succeed())
		})

		It("completes the claimed batch when the context is cancelled mid-flush", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			stager := &cancellingStager{cancel: cancel}

			batchProc, err := pipeline.NewBatchProcessor(&pipeline.ProcessorConfig{
				Logger:   log,
				Catalog:  pipeline.DefaultCatalog(),
				Store:    memStore,
				Notifier: notify.NewLogNotifier(log),
				Stager:   stager,
			})
			Expect(err).NotTo(HaveOccurred())

			consumer, err := processor.NewConsumer(&processor.ConsumerConfig{
				Logger:        log,
				MQClient:      mqClient,
				Processor:     batchProc,
				BatchSize:     2,
				FlushInterval: time.Minute,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(consumer.Start(ctx)).To(Succeed())

			// Staging the first record cancels ctx; the second record of
			// the claimed batch must still be processed before its ack.
			deliver(payloadWithID("evt_midflush_00001"), 1)
			deliver(payloadWithID("evt_midflush_00002"), 2)

			Eventually(stager.count, 5*time.Second).Should(Equal(2))
			Eventually(ack.count, 5*time.Second).Should(Equal(2))
			Eventually(func() []string {
				return memStore.Keys("valid/")
			}, 5*time.Second).Should(HaveLen(2))

			Expect(consumer.Stop()).To(Succeed())
		})

		It("drains buffered deliveries when the client closes", func() {
			consumer := newConsumer(100, time.Minute)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			Expect(consumer.Start(ctx)).To(Succeed())

			deliver(validPayload(), 1)
			Expect(consumer.Stop()).To(Succeed())

			Expect(ack.count()).To(Equal(1))
		})
	})
})

var _ = Describe("Server", func() {
	log := logger.NewDefault()

	Describe("NewServer", func() {
		base := func() *processor.ServerConfig {
			return &processor.ServerConfig{
				Logger:        log,
				DBHost:        "localhost",
				DBPort:        5432,
				DBUser:        "postgres",
				DBName:        "farm",
				RabbitMQURL:   "amqp://localhost:5672",
				QueueName:     "farm-data",
				AlertQueue:    "farm-alerts",
				StoreEndpoint: "localhost:9000",
				StoreBucket:   "farm-readings",
			}
		}

		It("accepts a complete configuration", func() {
			server, err := processor.NewServer(base())
			Expect(err).NotTo(HaveOccurred())
			Expect(server).NotTo(BeNil())
		})

		It("accepts an empty alert queue", func() {
			cfg := base()
			cfg.AlertQueue = ""
			_, err := processor.NewServer(cfg)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a nil config", func() {
			_, err := processor.NewServer(nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a missing queue name", func() {
			cfg := base()
			cfg.QueueName = ""
			_, err := processor.NewServer(cfg)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a missing database host", func() {
			cfg := base()
			cfg.DBHost = ""
			_, err := processor.NewServer(cfg)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a missing object store endpoint", func() {
			cfg := base()
			cfg.StoreEndpoint = ""
			_, err := processor.NewServer(cfg)
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("defaults", func() {
	It("exposes sane batch tuning defaults", func() {
		Expect(processor.DefaultBatchSize).To(Equal(25))
		Expect(processor.DefaultFlushInterval).To(Equal(time.Second))
	})
})
