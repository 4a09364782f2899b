package event

import (
	"context"
	"sync"
	"time"
)

// Message is one published event as seen by subscribers.
type Message struct {
	Room      string    `json:"room"`
	Event     string    `json:"event"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus publishes domain events to rooms. Delivery is at-least-once per
// subscriber within an instance; cross-instance fan-out is the broker
// implementation's job. Publish failures are side-channel: callers log
// them and continue.
type Bus interface {
	Publish(ctx context.Context, room, event string, payload any) error
	Close() error
}

// MemoryBus is an in-process Bus used in tests and as a graceful fallback
// when the broker is unreachable at startup. Subscribers receive on
// buffered channels; a full subscriber drops the message rather than
// blocking the publisher.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]chan Message
}

// NewMemoryBus builds an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan Message)}
}

// Subscribe returns a channel receiving every message published to room.
func (b *MemoryBus) Subscribe(room string) <-chan Message {
	ch := make(chan Message, 16)
	b.mu.Lock()
	b.subs[room] = append(b.subs[room], ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers to every subscriber of room.
func (b *MemoryBus) Publish(_ context.Context, room, event string, payload any) error {
	msg := Message{Room: room, Event: event, Payload: payload, Timestamp: time.Now().UTC()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[room] {
		select {
		case ch <- msg:
		default: // slow subscriber, drop
		}
	}
	return nil
}

// Close releases all subscriber channels.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = make(map[string][]chan Message)
	return nil
}
