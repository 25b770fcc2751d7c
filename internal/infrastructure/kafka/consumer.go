package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/example/marketplace/internal/event"
)

// Consumer reads mirrored envelopes off a Kafka topic and feeds them to an
// event.Handler. Handler failures are logged and the stream keeps moving;
// handlers are idempotent by envelope ID so redelivery is harmless.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

func (c *Consumer) Consume(ctx context.Context, handler event.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[Kafka] Error reading message: %v", err)
				continue
			}

			var env event.Envelope
			if err := json.Unmarshal(msg.Value, &env); err != nil {
				log.Printf("[Kafka] Dropping undecodable message %s: %v", string(msg.Key), err)
				continue
			}

			if err := handler(ctx, env); err != nil {
				log.Printf("[Kafka] Error handling envelope %s (%s): %v", env.ID, env.Type, err)
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
