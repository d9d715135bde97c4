package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// DefaultPoll bounds how long a wait for an edge blocks before the
// listener rechecks its context.
const DefaultPoll = 500 * time.Millisecond

// SourceGPIO identifies signals from the button.
const SourceGPIO = "gpio"

// OpenPin initializes the host drivers and returns the BCM-numbered pin.
func OpenPin(bcm int) (gpio.PinIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w", err)
	}
	name := "GPIO" + strconv.Itoa(bcm)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %s not found", name)
	}
	return p, nil
}

// Listener publishes a Signal for every debounced falling edge on a pin.
// The pin is pulled up so the button shorts it to ground.
type Listener struct {
	pin      gpio.PinIO
	bus      *Bus
	debounce *Debouncer
	poll     time.Duration
	logger   *slog.Logger
	onPress  func(accepted bool)
	busy     func() bool
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithDebouncer replaces the default 300ms debouncer.
func WithDebouncer(d *Debouncer) ListenerOption {
	return func(l *Listener) { l.debounce = d }
}

// WithPoll sets the edge wait timeout.
func WithPoll(d time.Duration) ListenerOption {
	return func(l *Listener) { l.poll = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) { l.logger = logger }
}

// WithPressHook is called for each debounced press with whether the bus
// accepted it.
func WithPressHook(fn func(accepted bool)) ListenerOption {
	return func(l *Listener) { l.onPress = fn }
}

// WithBusy drops presses while busy reports true, without touching the bus.
func WithBusy(busy func() bool) ListenerOption {
	return func(l *Listener) { l.busy = busy }
}

// NewListener creates a listener on pin publishing to bus.
func NewListener(pin gpio.PinIO, bus *Bus, opts ...ListenerOption) *Listener {
	l := &Listener{
		pin:    pin,
		bus:    bus,
		poll:   DefaultPoll,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.debounce == nil {
		l.debounce = NewDebouncer(DefaultDebounce, nil)
	}
	l.logger = l.logger.With("component", "trigger.gpio", "pin", pin.Name())
	return l
}

// Run configures the pin and publishes presses until ctx is cancelled.
// The pin is halted on return.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return fmt.Errorf("configure %s: %w", l.pin.Name(), err)
	}
	defer func() {
		if err := l.pin.Halt(); err != nil {
			l.logger.Warn("halt failed", "error", err)
		}
	}()
	l.logger.Info("listening for button presses")

	for {
		if ctx.Err() != nil {
			return nil
		}
		if !l.pin.WaitForEdge(l.poll) {
			continue
		}
		if l.pin.Read() != gpio.Low {
			continue
		}
		if !l.debounce.Allow() {
			l.logger.Debug("bounce ignored")
			continue
		}
		accepted := false
		if l.busy == nil || !l.busy() {
			accepted = l.bus.Publish(Signal{Source: SourceGPIO, At: time.Now()})
		}
		if accepted {
			l.logger.Info("button pressed")
		} else {
			l.logger.Info("button pressed while busy, ignored")
		}
		if l.onPress != nil {
			l.onPress(accepted)
		}
	}
}
