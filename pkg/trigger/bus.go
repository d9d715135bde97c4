// Package trigger turns button presses into session requests.
//
// A GPIO listener watches one input pin for falling edges, a Debouncer
// drops contact bounce and a Bus with room for a single pending signal
// hands presses to the consumer. Presses arriving while a signal is
// pending are dropped, never queued.
package trigger

import (
	"sync/atomic"
	"time"
)

// Signal is one accepted trigger.
type Signal struct {
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// Bus carries at most one pending Signal.
type Bus struct {
	ch        chan Signal
	published atomic.Int64
	dropped   atomic.Int64
}

// NewBus creates a bus with capacity one.
func NewBus() *Bus {
	return &Bus{ch: make(chan Signal, 1)}
}

// Publish offers sig without blocking and reports whether it was accepted.
func (b *Bus) Publish(sig Signal) bool {
	select {
	case b.ch <- sig:
		b.published.Add(1)
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// C returns the receive side of the bus.
func (b *Bus) C() <-chan Signal {
	return b.ch
}

// Drain discards any pending signal and returns how many were removed.
func (b *Bus) Drain() int {
	n := 0
	for {
		select {
		case <-b.ch:
			n++
			b.dropped.Add(1)
		default:
			return n
		}
	}
}

// Published returns the number of accepted signals.
func (b *Bus) Published() int64 {
	return b.published.Load()
}

// Dropped returns the number of rejected or drained signals.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
