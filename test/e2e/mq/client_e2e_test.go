// Package mq provides end-to-end tests for the RabbitMQ client.
package mq

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrodata.dev/farm-pipeline/pkg/generator"
	clientmq "agrodata.dev/farm-pipeline/pkg/mq"
)

var _ = Describe("MQ Client E2E", func() {
	var (
		client    *clientmq.Client
		queueName string
	)

	BeforeEach(func() {
		// Unique queue name per test
		queueName = "farm-data-" + time.Now().Format("20060102-150405.000")
	})

	AfterEach(func() {
		if client != nil {
			_ = client.Close()
			client = nil
		}
	})

	Describe("Connection", func() {
		It("connects to RabbitMQ successfully", func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			Expect(client).NotTo(BeNil())

			// Give client time to connect
			time.Sleep(1 * time.Second)
		})

		It("handles an invalid URL gracefully", func() {
			invalidClient := clientmq.New(queueName, "amqp://invalid:5672", testLogger)
			Expect(invalidClient).NotTo(BeNil())

			// Should not crash, keeps retrying in background
			time.Sleep(500 * time.Millisecond)

			_ = invalidClient.Close()
		})
	})

	Describe("Publishing", func() {
		BeforeEach(func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			time.Sleep(2 * time.Second) // Wait for connection
		})

		It("publishes a reading successfully", func() {
			reading := generator.NewFarmGenerator(generator.Sites()[0], 1).Next(time.Now())
			payload, err := reading.Marshal()
			Expect(err).NotTo(HaveOccurred())

			Expect(client.Push(context.Background(), payload)).To(Succeed())
		})

		It("publishes many readings in rapid succession", func() {
			gen := generator.NewFarmGenerator(generator.Sites()[1], 2)
			for i := 0; i < 20; i++ {
				payload, err := gen.Next(time.Now()).Marshal()
				Expect(err).NotTo(HaveOccurred())
				Expect(client.Push(context.Background(), payload)).To(Succeed())
			}
		})

		It("uses UnsafePush without waiting for confirms", func() {
			err := client.UnsafePush(context.Background(), []byte(`{"event_id":"evt_unsafe"}`))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Consuming", func() {
		BeforeEach(func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			time.Sleep(2 * time.Second) // Wait for connection
		})

		It("delivers a published reading to the consumer", func() {
			deliveries, err := client.Consume(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(deliveries).NotTo(BeNil())

			// Wait for the consumer to register on the server
			time.Sleep(500 * time.Millisecond)

			reading := generator.NewFarmGenerator(generator.Sites()[0], 3).Next(time.Now())
			payload, err := reading.Marshal()
			Expect(err).NotTo(HaveOccurred())
			Expect(client.Push(context.Background(), payload)).To(Succeed())

			select {
			case delivery := <-deliveries:
				var doc map[string]any
				Expect(json.Unmarshal(delivery.Body, &doc)).To(Succeed())
				Expect(doc["event_id"]).To(Equal(reading.EventID))
				Expect(doc["loc_id"]).To(Equal("loc_1"))
				Expect(delivery.Ack(false)).To(Succeed())
			case <-time.After(5 * time.Second):
				Fail("Did not receive message within timeout")
			}
		})

		It("delivers messages in publish order", func() {
			deliveries, err := client.Consume(10)
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(500 * time.Millisecond)

			payloads := []string{
				`{"event_id":"evt_order_1"}`,
				`{"event_id":"evt_order_2"}`,
				`{"event_id":"evt_order_3"}`,
			}
			for _, p := range payloads {
				Expect(client.Push(context.Background(), []byte(p))).To(Succeed())
			}

			received := make([]string, 0, len(payloads))
			for i := 0; i < len(payloads); i++ {
				select {
				case delivery := <-deliveries:
					received = append(received, string(delivery.Body))
					Expect(delivery.Ack(false)).To(Succeed())
				case <-time.After(5 * time.Second):
					Fail("Did not receive all messages within timeout")
				}
			}

			Expect(received).To(Equal(payloads))
		})

		It("respects the prefetch limit for unacknowledged deliveries", func() {
			deliveries, err := client.Consume(1)
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(500 * time.Millisecond)

			Expect(client.Push(context.Background(), []byte(`{"event_id":"evt_qos_1"}`))).To(Succeed())
			Expect(client.Push(context.Background(), []byte(`{"event_id":"evt_qos_2"}`))).To(Succeed())

			select {
			case d := <-deliveries:
				// Second delivery must wait for this ack.
				Consistently(deliveries, 1*time.Second).ShouldNot(Receive())
				Expect(d.Ack(false)).To(Succeed())
			case <-time.After(5 * time.Second):
				Fail("Did not receive first message within timeout")
			}

			select {
			case d := <-deliveries:
				Expect(d.Ack(false)).To(Succeed())
			case <-time.After(5 * time.Second):
				Fail("Did not receive second message after ack")
			}
		})
	})
})
