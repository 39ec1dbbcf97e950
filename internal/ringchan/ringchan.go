// Package ringchan provides a bounded channel with overwrite-oldest semantics.
package ringchan

import "sync/atomic"

// RingChannel wraps a buffered channel so that producers never block: when the
// buffer is full the oldest element is discarded to make room.
//
// Platform notification callbacks write with Send; the session control loop
// reads from C().
type RingChannel[T any] struct {
	ch      chan T
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest buffered element if the buffer is full.
// It reports whether an element was discarded.
func (rc *RingChannel[T]) Send(v T) (dropped bool) {
	for {
		select {
		case rc.ch <- v:
			atomic.AddInt64(&rc.metrics.Written, 1)
			return dropped
		default:
		}

		select {
		case <-rc.ch:
			atomic.AddInt64(&rc.metrics.Overwritten, 1)
			dropped = true
		default:
			// a reader drained the buffer between the two selects
		}
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Metrics returns a snapshot of the counters.
func (rc *RingChannel[T]) Metrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics counts elements accepted and elements discarded to make room.
type Metrics struct {
	Written     int64
	Overwritten int64
}
