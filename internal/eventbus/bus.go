// Package eventbus carries task lifecycle events from the scheduler to
// in-process consumers such as the run-history recorder.
package eventbus

import (
	"sync"
	"time"
)

// Event is one lifecycle signal ("task.started", "task.completed",
// "task.failed", "task.cancelled"). Data holds the scheduler's payload.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus is a small in-memory fanout. Publish never blocks: a subscriber that
// falls behind its buffer loses events rather than stalling the scheduler.
//
// The bus owns no goroutines.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  uint64
}

func New() *Bus {
	return &Bus{subs: map[uint64]chan Event{}}
}

// Publish delivers e to every subscriber that has buffer room.
//
// Sends happen under the read lock; Unsubscribe closes its channel under
// the write lock, so a send on a closed channel cannot happen.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a buffered channel and returns it with an idempotent
// unsubscribe that also closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
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
