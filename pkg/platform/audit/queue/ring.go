// Package queue provides the bounded in-memory hand-off between producers
// calling LogAsync and the single persistence worker.
package queue

import (
	"sync"

	audit "auditpipe/pkg/platform/audit"
)

// DefaultCapacity is used when a non-positive capacity is configured.
const DefaultCapacity = 2048

// Ring is a bounded, thread-safe FIFO for audit events. When full, the
// oldest event is evicted to make room for the new one. Producers never
// block; a single consumer drains with DequeueBatch.
type Ring struct {
	mu       sync.Mutex
	events   []audit.Event
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int
	closed   bool

	ready chan struct{}

	// Stats
	enqueued int64
	dropped  int64
	rejected int64
}

// NewRing creates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		events:   make([]audit.Event, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Enqueue adds an event, evicting the oldest if the ring is full. It reports
// whether an eviction happened. After Close the event is discarded and
// counted as rejected.
func (r *Ring) Enqueue(event audit.Event) (evicted bool) {
	r.mu.Lock()
	if r.closed {
		r.rejected++
		r.mu.Unlock()
		return false
	}

	if r.count >= r.capacity {
		r.events[r.tail] = audit.Event{}
		r.tail = (r.tail + 1) % r.capacity
		r.count--
		r.dropped++
		evicted = true
	}

	r.events[r.head] = event
	r.head = (r.head + 1) % r.capacity
	r.count++
	r.enqueued++
	r.mu.Unlock()

	r.signal()
	return evicted
}

// DequeueBatch removes up to n events in FIFO order.
func (r *Ring) DequeueBatch(n int) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 || n <= 0 {
		return nil
	}

	if n > r.count {
		n = r.count
	}

	result := make([]audit.Event, n)
	for i := 0; i < n; i++ {
		result[i] = r.events[r.tail]
		r.events[r.tail] = audit.Event{}
		r.tail = (r.tail + 1) % r.capacity
	}
	r.count -= n

	return result
}

// Ready delivers a notification after one or more enqueues. Notifications
// coalesce, so the consumer must drain until DequeueBatch returns nothing.
func (r *Ring) Ready() <-chan struct{} {
	return r.ready
}

func (r *Ring) signal() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// Close stops accepting events. Events already queued remain drainable.
func (r *Ring) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.signal()
}

// Len returns the current number of queued events.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Capacity returns the configured capacity.
func (r *Ring) Capacity() int {
	return r.capacity
}

// Dropped returns the number of events evicted by overflow.
func (r *Ring) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Stats returns a consistent snapshot of the counters.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Queued:   r.count,
		Capacity: r.capacity,
		Enqueued: r.enqueued,
		Dropped:  r.dropped,
		Rejected: r.rejected,
		Closed:   r.closed,
	}
}

// Stats holds queue statistics.
type Stats struct {
	Queued   int   // Events currently queued
	Capacity int   // Maximum queued events
	Enqueued int64 // Events accepted since creation
	Dropped  int64 // Events evicted by overflow
	Rejected int64 // Events discarded after Close
	Closed   bool
}
