package session

import "sync"

// DefaultHistorySize is the number of sessions History keeps.
const DefaultHistorySize = 20

// History keeps the most recent sessions, newest first. It implements
// Observer so it can be registered on a Runner.
type History struct {
	mu      sync.RWMutex
	size    int
	items   []Session
	current *Session
}

// NewHistory creates a history holding up to size sessions.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

// OnStart implements Observer.
func (h *History) OnStart(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = &s
}

// OnFinish implements Observer.
func (h *History) OnFinish(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = nil
	h.items = append([]Session{s}, h.items...)
	if len(h.items) > h.size {
		h.items = h.items[:h.size]
	}
}

// List returns finished sessions, newest first.
func (h *History) List() []Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Session, len(h.items))
	copy(out, h.items)
	return out
}

// Current returns the active session, if any.
func (h *History) Current() (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return Session{}, false
	}
	return *h.current, true
}

// Last returns the most recent finished session.
func (h *History) Last() (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.items) == 0 {
		return Session{}, false
	}
	return h.items[0], true
}

var _ Observer = (*History)(nil)
