// Package eventbus is a minimal in-memory fanout used to decouple the
// delivery queue from observers (outcome journal, daemon logging).
package eventbus

import (
	"sync"
	"time"
)

// Job lifecycle event types published by the delivery queue.
const (
	EventJobEnqueued  = "job.enqueued"
	EventJobAttempt   = "job.attempt"
	EventJobRetry     = "job.retry"
	EventJobDelivered = "job.delivered"
	EventJobFailed    = "job.failed"
)

// Event is a lightweight, in-memory signal.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Slow subscribers may lose events (bounded buffers, no backpressure).
//
// Data should be small; subscribers may log or serialize it.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.Mutex
	subs map[uint64]chan Event
	seq  uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// Deliver under the lock: sends are non-blocking, so the hold is short,
	// and it keeps Publish from racing a channel close in unsubscribe.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop rather than stall the queue.
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
