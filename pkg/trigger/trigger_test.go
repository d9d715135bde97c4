package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestBus(t *testing.T) {
	b := NewBus()

	assert.True(t, b.Publish(Signal{Source: "api"}))
	assert.False(t, b.Publish(Signal{Source: "gpio"}), "capacity is one")
	assert.Equal(t, int64(1), b.Published())
	assert.Equal(t, int64(1), b.Dropped())

	sig := <-b.C()
	assert.Equal(t, "api", sig.Source)

	assert.True(t, b.Publish(Signal{Source: "gpio"}))
	assert.Equal(t, 1, b.Drain())
	assert.Equal(t, 0, b.Drain())
	assert.Equal(t, int64(2), b.Dropped())
}

func TestDebouncer(t *testing.T) {
	clock := newFakeClock()
	d := NewDebouncer(0, clock.Now)

	assert.True(t, d.Allow())
	clock.Advance(100 * time.Millisecond)
	assert.False(t, d.Allow())
	clock.Advance(199 * time.Millisecond)
	assert.False(t, d.Allow())
	clock.Advance(time.Millisecond)
	assert.True(t, d.Allow(), "300ms after the last accepted press")
	assert.False(t, d.Allow())
}

func newPin() *gpiotest.Pin {
	return &gpiotest.Pin{N: "GPIO17", Num: 17, EdgesChan: make(chan gpio.Level)}
}

// waitConfigured blocks until the listener has set up the pin, so edges
// sent afterwards are not flushed by In.
func waitConfigured(t *testing.T, p *gpiotest.Pin) {
	t.Helper()
	require.Eventually(t, func() bool {
		p.Lock()
		defer p.Unlock()
		return p.P == gpio.PullUp
	}, time.Second, 5*time.Millisecond)
}

func TestListener(t *testing.T) {
	pin := newPin()
	bus := NewBus()
	clock := newFakeClock()
	presses := make(chan bool, 10)

	l := NewListener(pin, bus,
		WithDebouncer(NewDebouncer(DefaultDebounce, clock.Now)),
		WithPoll(10*time.Millisecond),
		WithPressHook(func(accepted bool) { presses <- accepted }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	waitConfigured(t, pin)

	// First press is accepted
	pin.EdgesChan <- gpio.Low
	assert.True(t, <-presses)

	// Contact bounce inside the window is ignored, and a rising edge is
	// not a press
	pin.EdgesChan <- gpio.Low
	pin.EdgesChan <- gpio.High

	// A real second press while the first is still pending is dropped
	clock.Advance(400 * time.Millisecond)
	pin.EdgesChan <- gpio.Low
	assert.False(t, <-presses)

	assert.Len(t, presses, 0)
	sig := <-bus.C()
	assert.Equal(t, SourceGPIO, sig.Source)

	// Once consumed, the next press goes through
	clock.Advance(400 * time.Millisecond)
	pin.EdgesChan <- gpio.Low
	assert.True(t, <-presses)
	assert.Equal(t, int64(2), bus.Published())

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListener_Busy(t *testing.T) {
	pin := newPin()
	bus := NewBus()
	clock := newFakeClock()
	presses := make(chan bool, 10)
	var busy atomic.Bool
	busy.Store(true)

	l := NewListener(pin, bus,
		WithDebouncer(NewDebouncer(DefaultDebounce, clock.Now)),
		WithPoll(10*time.Millisecond),
		WithPressHook(func(accepted bool) { presses <- accepted }),
		WithBusy(busy.Load),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	waitConfigured(t, pin)

	// Presses during a session never reach the bus
	pin.EdgesChan <- gpio.Low
	assert.False(t, <-presses)
	assert.Zero(t, bus.Published())
	assert.Len(t, bus.C(), 0)

	busy.Store(false)
	clock.Advance(400 * time.Millisecond)
	pin.EdgesChan <- gpio.Low
	assert.True(t, <-presses)
	assert.Equal(t, int64(1), bus.Published())
}

func TestListener_ConfigureError(t *testing.T) {
	// gpiotest refuses edge detection without an edge channel
	pin := &gpiotest.Pin{N: "GPIO27", Num: 27}
	l := NewListener(pin, NewBus())

	err := l.Run(context.Background())
	assert.Error(t, err)
}
