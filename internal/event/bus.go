package event

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	defaultQueueSize = 256
	defaultAttempts  = 3
)

// Bus is an in-process publish/subscribe dispatcher. Publish enqueues an
// envelope on a bounded channel after the journal append succeeds; Run
// drains the queue and delivers to subscribers. Delivery is asynchronous
// with respect to the caller but strictly ordered after the triggering
// write, because callers publish only after their own store mutation.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler

	queue    chan Envelope
	journal  Journal
	relay    Relay
	attempts int
	backoff  time.Duration
}

type Option func(*Bus)

// WithJournal makes Publish append envelopes to a durable outbox first
func WithJournal(j Journal) Option {
	return func(b *Bus) { b.journal = j }
}

// WithRelay mirrors every dispatched envelope to an external stream
func WithRelay(r Relay) Option {
	return func(b *Bus) { b.relay = r }
}

// WithQueueSize bounds the in-flight envelope queue
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan Envelope, n)
		}
	}
}

// WithAttempts sets how many delivery attempts each handler gets
func WithAttempts(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.attempts = n
		}
	}
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[string][]Handler),
		queue:    make(chan Envelope, defaultQueueSize),
		attempts: defaultAttempts,
		backoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for an event type
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish wraps the payload and enqueues it for dispatch. The journal
// append must succeed before the envelope becomes visible; a full queue
// blocks the caller rather than dropping the event.
func (b *Bus) Publish(ctx context.Context, eventType string, payload any) error {
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}

	if b.journal != nil {
		if err := b.journal.Append(ctx, env); err != nil {
			return err
		}
	}

	select {
	case b.queue <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is canceled
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.queue:
			b.Dispatch(ctx, env)
		}
	}
}

// Dispatch delivers an envelope to every subscriber of its type, retrying
// failed handlers with backoff. Handler failures are logged and never
// propagate to the publisher; the originating write is the source of truth
// and recovers via journal replay, not rollback.
func (b *Bus) Dispatch(ctx context.Context, env Envelope) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[env.Type]))
	copy(handlers, b.handlers[env.Type])
	b.mu.RUnlock()

	for _, h := range handlers {
		var err error
		for attempt := 1; attempt <= b.attempts; attempt++ {
			if err = h(ctx, env); err == nil {
				break
			}
			if attempt < b.attempts {
				select {
				case <-time.After(b.backoff * time.Duration(attempt)):
				case <-ctx.Done():
					return
				}
			}
		}
		if err != nil {
			log.Printf("[Bus] Handler failed for %s (%s) after %d attempts: %v",
				env.Type, env.ID, b.attempts, err)
		}
	}

	if b.relay != nil {
		if err := b.relay.Publish(ctx, env); err != nil {
			log.Printf("[Bus] Relay publish failed for %s (%s): %v", env.Type, env.ID, err)
		}
	}
}

// Replay re-dispatches journaled envelopes recorded since the given time.
// Subscribers are idempotent by envelope ID, so replay after a crash is
// safe under at-least-once delivery.
func (b *Bus) Replay(ctx context.Context, since time.Time) error {
	if b.journal == nil {
		return nil
	}
	envs, err := b.journal.ListSince(ctx, since)
	if err != nil {
		return err
	}
	for _, env := range envs {
		b.Dispatch(ctx, env)
	}
	return nil
}
