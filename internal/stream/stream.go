// Package stream is the in-process push channel between the write side and
// read-side consumers: every ledger mutation publishes a change event, and
// subscribers (dashboard cache invalidation, tests) receive it on a
// cancellable channel. It decouples the pure projections from any particular
// delivery mechanism.
package stream

import (
	"sync"
	"time"
)

// Change describes one ledger mutation.
type Change struct {
	AccountID int64
	Kind      string // entry_created, entry_updated, entry_deleted, transfer, plan, obligation
	At        time.Time
}

// Broker fans change events out to subscribers. A slow subscriber never
// blocks publishers: events it cannot keep up with are dropped.
type Broker struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]chan Change
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int64]chan Change)}
}

// Subscribe registers a consumer. The returned cancel function must be called
// when done; it closes the channel.
func (b *Broker) Subscribe() (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Change, 16)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers a change to every subscriber without blocking.
func (b *Broker) Publish(c Change) {
	if c.At.IsZero() {
		c.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- c:
		default: // subscriber lagging, drop rather than block the write path
		}
	}
}

// Close shuts the broker down and closes all subscriber channels.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
