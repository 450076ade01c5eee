// Package eventbus implements the bounded, single-producer/single-consumer
// event channel that sits between a worker's stdout and its single consumer,
// the supervisor's Run loop (which also appends every event to the event
// log read by `logs` and the web status server). Publish never blocks: when the bus is full
// the oldest queued event is evicted to make room, and a synthesized WARNING
// event records that a drop occurred so observers know their view is lossy
// rather than silently falling behind.
package eventbus

import (
	"sync"
	"time"

	"github.com/evolvd/evolvd/internal/clock"
	"github.com/evolvd/evolvd/internal/eventq"
	"github.com/evolvd/evolvd/internal/protocol"
)

// DefaultCapacity is the bus capacity used by the supervisor in production.
const DefaultCapacity = 128

// Bus is a bounded event queue with drop-oldest overflow behavior.
type Bus struct {
	mu       sync.Mutex
	ch       chan protocol.AgentEvent
	capacity int
	dropped  uint64
}

// New creates a Bus with the given capacity. A capacity below 1 uses
// DefaultCapacity.
func New(capacity int) *Bus {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ch:       make(chan protocol.AgentEvent, capacity),
		capacity: capacity,
	}
}

// Publish enqueues evt, never blocking. If the bus is full, the oldest
// event is dropped and a WARNING event describing the drop is enqueued in
// its place. Re-enqueuing evt fills the bus again, so the warning itself
// evicts a second event, and each overflow adds 2 to Dropped.
func (b *Bus) Publish(evt protocol.AgentEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if eventq.Offer(b.ch, evt) {
		return
	}

	b.evictOldestLocked()
	b.dropped++
	eventq.Offer(b.ch, evt)

	warning := protocol.AgentEvent{
		Kind:      protocol.KindWarning,
		Timestamp: clock.System.Now(),
		Message:   "event bus overflow: oldest event dropped",
		Payload:   map[string]any{"dropped_total": b.dropped},
	}
	if !eventq.Offer(b.ch, warning) {
		b.evictOldestLocked()
		b.dropped++
		eventq.Offer(b.ch, warning)
	}
}

func (b *Bus) evictOldestLocked() {
	select {
	case <-b.ch:
	default:
	}
}

// Events returns the channel events are delivered on. There must be exactly
// one consumer draining it; the bus assumes single-consumer semantics.
func (b *Bus) Events() <-chan protocol.AgentEvent { return b.ch }

// Dropped returns the total number of events evicted due to overflow.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes the underlying channel. Callers must stop publishing before
// calling Close.
func (b *Bus) Close() { close(b.ch) }

// Drain removes and returns the events currently buffered without blocking:
// it returns as soon as the bus is empty or closed, so timeout never makes
// it wait.
func (b *Bus) Drain(timeout time.Duration) []protocol.AgentEvent {
	var out []protocol.AgentEvent
	deadline := clock.System.After(timeout)
	for {
		select {
		case evt, ok := <-b.ch:
			if !ok {
				return out
			}
			out = append(out, evt)
		case <-deadline:
			return out
		default:
			return out
		}
	}
}
