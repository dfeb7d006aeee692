// Package orchestrator selects an execution mode and coordinates agents.
package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// emitterDrainWait is how long Emit waits on a full channel before
// dropping the event.
const emitterDrainWait = 100 * time.Millisecond

// EventEmitter delivers run progress events to a single consumer over a
// buffered channel. Emission never blocks the run for more than the
// drain wait; a slow consumer loses events rather than stalling tasks.
type EventEmitter struct {
	events  chan Event
	dropped atomic.Uint64
}

// NewEventEmitter creates an EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit queues the event for the consumer. When the buffer stays full
// past the drain wait the event is dropped and counted.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(emitterDrainWait):
		count := e.dropped.Add(1)
		if count%10 == 1 {
			log.Printf("[orchestrator] event channel full, dropped %s (total dropped: %d)", event.Type, count)
		}
	}
}

// DroppedCount returns how many events have been dropped so far.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.dropped.Load()
}

// Events returns the consumer side of the event channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the event channel. Emit must not be called afterwards.
func (e *EventEmitter) Close() {
	close(e.events)
}
