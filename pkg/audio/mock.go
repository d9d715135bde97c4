package audio

import (
	"context"
	"os"
	"sync"
)

// MockPlayer records played files for tests. It checks the file exists at
// play time.
type MockPlayer struct {
	// Err is returned from every Play call when set.
	Err error

	mu      sync.Mutex
	played  []string
	sizes   []int64
	missing int
}

// NewMockPlayer creates a mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// Play implements Player.
func (m *MockPlayer) Play(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, path)
	fi, err := os.Stat(path)
	if err != nil {
		m.missing++
		m.sizes = append(m.sizes, 0)
		return err
	}
	m.sizes = append(m.sizes, fi.Size())
	return m.Err
}

// Played returns the paths played so far.
func (m *MockPlayer) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.played))
	copy(out, m.played)
	return out
}

// Sizes returns the size of each file at the time it was played.
func (m *MockPlayer) Sizes() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.sizes))
	copy(out, m.sizes)
	return out
}

// MockSpeaker records spoken text for tests.
type MockSpeaker struct {
	// Err is returned from every Speak call when set.
	Err error

	mu    sync.Mutex
	texts []string
}

// Speak implements FastSpeaker.
func (m *MockSpeaker) Speak(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return m.Err
}

// Texts returns everything spoken so far.
func (m *MockSpeaker) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}

var (
	_ Player      = (*MockPlayer)(nil)
	_ FastSpeaker = (*MockSpeaker)(nil)
)
