package mq_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrodata.dev/farm-pipeline/pkg/mq"
)

var _ = Describe("MQ Client", func() {
	var (
		logger *slog.Logger
	)

	BeforeEach(func() {
		// Create a logger that discards output for tests
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	Describe("New", func() {
		It("should create a new client instance", func() {
			client := mq.New("farm-data", "amqp://localhost:5672", logger)
			Expect(client).NotTo(BeNil())
			Expect(client.QueueName()).To(Equal("farm-data"))
		})

		It("should start background reconnection goroutine", func() {
			client := mq.New("farm-data", "amqp://invalid:5672", logger)
			Expect(client).NotTo(BeNil())

			// Give the goroutine a moment to start
			time.Sleep(100 * time.Millisecond)

			// Clean up
			_ = client.Close()
		})
	})

	Describe("Push", func() {
		Context("when not connected", func() {
			It("should retry with backoff and honor context cancellation", func() {
				client := mq.New("farm-data", "amqp://invalid:5672", logger)

				// Give client time to attempt connection and fail
				time.Sleep(100 * time.Millisecond)

				ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
				defer cancel()

				start := time.Now()
				err := client.Push(ctx, []byte(`{"event_id":"evt_x"}`))
				elapsed := time.Since(start)

				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(SatisfyAny(
					ContainSubstring("context deadline exceeded"),
					ContainSubstring("context canceled"),
				))
				// Should have waited for backoff retries
				Expect(elapsed).To(BeNumerically(">=", 100*time.Millisecond))

				_ = client.Close()
			})

			It("should return error after max retry attempts", func() {
				client := mq.New("farm-data", "amqp://invalid:5672", logger)

				time.Sleep(100 * time.Millisecond)

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				start := time.Now()
				err := client.Push(ctx, []byte(`{"event_id":"evt_x"}`))
				elapsed := time.Since(start)

				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("maximum retry attempts exceeded"))

				// 5 retries with backoff: 100ms + 200ms + 400ms + 800ms + 1600ms
				Expect(elapsed).To(BeNumerically(">=", 3*time.Second))
				Expect(elapsed).To(BeNumerically("<", 10*time.Second))

				_ = client.Close()
			})
		})
	})

	Describe("UnsafePush", func() {
		Context("when not connected", func() {
			It("should return an error immediately", func() {
				client := mq.New("farm-data", "amqp://invalid:5672", logger)

				time.Sleep(100 * time.Millisecond)

				err := client.UnsafePush(context.Background(), []byte("x"))
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not connected"))

				_ = client.Close()
			})
		})
	})

	Describe("Consume", func() {
		Context("when not connected", func() {
			It("should return an error immediately", func() {
				client := mq.New("farm-data", "amqp://invalid:5672", logger)

				time.Sleep(100 * time.Millisecond)

				_, err := client.Consume(50)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not connected"))

				_ = client.Close()
			})
		})
	})

	Describe("Close", func() {
		Context("when never connected", func() {
			It("should report already closed", func() {
				client := mq.New("farm-data", "amqp://invalid:5672", logger)

				err := client.Close()
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not connected"))
			})
		})
	})
})
