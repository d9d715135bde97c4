package trigger

import (
	"sync"
	"time"
)

// DefaultDebounce is the minimum spacing between accepted presses.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer accepts an event only if the previous accepted one is at least
// Window old.
type Debouncer struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewDebouncer creates a debouncer. A zero window uses DefaultDebounce and
// a nil clock uses time.Now.
func NewDebouncer(window time.Duration, now func() time.Time) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	if now == nil {
		now = time.Now
	}
	return &Debouncer{window: window, now: now}
}

// Allow reports whether an event happening now should be accepted.
func (d *Debouncer) Allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.now()
	if !d.last.IsZero() && t.Sub(d.last) < d.window {
		return false
	}
	d.last = t
	return true
}
