package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps a domain event for journaling and dispatch
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope wraps a payload into a uniquely identified envelope
func NewEnvelope(eventType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}, nil
}

// Decode unmarshals the envelope payload into v
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Handler processes a single envelope. Handlers must be idempotent with
// respect to duplicate delivery of the same envelope ID.
type Handler func(ctx context.Context, env Envelope) error

// Journal is a durable append-only log of published envelopes. Appends
// happen before dispatch so subscribers can recover via replay.
type Journal interface {
	Append(ctx context.Context, env Envelope) error
	ListSince(ctx context.Context, since time.Time) ([]Envelope, error)
}

// Relay mirrors envelopes to an external stream for other processes
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
}
