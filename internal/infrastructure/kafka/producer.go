package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/marketplace/internal/event"
)

// Producer mirrors dispatched envelopes to a Kafka topic so out-of-process
// consumers (the relay worker) see the same stream the in-process bus does.
// It implements event.Relay.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer}
}

// Publish writes one envelope, keyed by envelope ID so consumers can
// deduplicate redeliveries.
func (p *Producer) Publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.ID),
		Value: data,
		Time:  env.Timestamp,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
