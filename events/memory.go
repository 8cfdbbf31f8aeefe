package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for tests and single-node deployments.
type MemoryBus struct {
	mu     sync.Mutex
	events []Event
	subs   []chan Event
	closed bool
}

// NewMemoryBus creates a new in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish appends the event and fans it out to subscribers.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	b.events = append(b.events, event)
	for _, sub := range b.subs {
		select {
		case sub <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe returns a channel receiving every subsequently published event.
func (b *MemoryBus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 64)
	b.subs = append(b.subs, ch)
	return ch
}

// Events returns a snapshot of everything published so far.
func (b *MemoryBus) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := make([]Event, len(b.events))
	copy(snapshot, b.events)
	return snapshot
}

// Close closes the bus and all subscriber channels.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub)
	}
	b.subs = nil
	return nil
}
