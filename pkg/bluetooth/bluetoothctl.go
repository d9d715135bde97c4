package bluetooth

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Bluetoothctl drives BlueZ through the bluetoothctl command line tool.
type Bluetoothctl struct {
	runner Runner
	logger *slog.Logger
}

// NewBluetoothctl creates a control surface backed by bluetoothctl.
func NewBluetoothctl(r Runner, logger *slog.Logger) *Bluetoothctl {
	if r == nil {
		r = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bluetoothctl{
		runner: r,
		logger: logger.With("component", "bluetooth.ctl"),
	}
}

func (b *Bluetoothctl) ctl(ctx context.Context, args ...string) (string, error) {
	out, err := b.runner.Run(ctx, "bluetoothctl", args...)
	b.logger.Debug("bluetoothctl", "args", args, "output", out, "error", err)
	return out, err
}

// Initialize starts the bluetooth service, unblocks the radio, powers the
// adapter on and registers the default agent. Only "power on" is required
// to succeed.
func (b *Bluetoothctl) Initialize(ctx context.Context) error {
	if _, err := b.runner.Run(ctx, "systemctl", "start", "bluetooth"); err != nil {
		b.logger.Warn("could not start bluetooth service", "error", err)
	}
	if _, err := b.runner.Run(ctx, "rfkill", "unblock", "bluetooth"); err != nil {
		b.logger.Warn("could not unblock bluetooth radio", "error", err)
	}

	out, err := b.ctl(ctx, "power", "on")
	if err != nil || hasFailure(out) {
		return &CommandError{Command: "power on", Output: out, Err: err}
	}
	if out, err := b.ctl(ctx, "agent", "on"); err != nil {
		b.logger.Warn("agent registration failed", "output", out, "error", err)
	}
	if out, err := b.ctl(ctx, "default-agent"); err != nil {
		b.logger.Warn("default agent request failed", "output", out, "error", err)
	}
	return nil
}

// Scan keeps discovery on for duration, then lists known devices.
func (b *Bluetoothctl) Scan(ctx context.Context, duration time.Duration) ([]Discovered, error) {
	secs := int(duration.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if out, err := b.ctl(ctx, "--timeout", strconv.Itoa(secs), "scan", "on"); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// bluetoothctl exits non-zero when the timeout ends the scan on some versions
		b.logger.Debug("scan exited with error", "output", out, "error", err)
	}

	out, err := b.ctl(ctx, "devices")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &CommandError{Command: "devices", Output: out, Err: err}
	}
	return parseDevices(out), nil
}

// Info queries one device.
func (b *Bluetoothctl) Info(ctx context.Context, addr Address) (Info, error) {
	out, err := b.ctl(ctx, "info", string(addr))
	if hasAny(out, "not available") {
		return Info{Address: addr}, ErrUnknownDevice
	}
	if err != nil {
		return Info{Address: addr}, &CommandError{Command: "info", Output: out, Err: err}
	}
	return parseInfo(addr, out), nil
}

// Pair pairs with addr.
func (b *Bluetoothctl) Pair(ctx context.Context, addr Address) error {
	return b.expect(ctx, []string{"successful", "paired", "already"}, "pair", string(addr))
}

// Trust marks addr trusted so reconnects need no confirmation.
func (b *Bluetoothctl) Trust(ctx context.Context, addr Address) error {
	return b.expect(ctx, []string{"succeeded", "trust"}, "trust", string(addr))
}

// Remove deletes any stored pairing for addr. Unknown devices are not an error.
func (b *Bluetoothctl) Remove(ctx context.Context, addr Address) error {
	out, err := b.ctl(ctx, "remove", string(addr))
	if hasAny(out, "removed", "not available") {
		return nil
	}
	if err != nil {
		return &CommandError{Command: "remove", Output: out, Err: err}
	}
	return nil
}

// Connect opens the audio link to addr.
func (b *Bluetoothctl) Connect(ctx context.Context, addr Address) error {
	return b.expect(ctx, []string{"successful", "connected", "already"}, "connect", string(addr))
}

// Disconnect closes the link to addr.
func (b *Bluetoothctl) Disconnect(ctx context.Context, addr Address) error {
	return b.expect(ctx, []string{"successful", "disconnected", "not connected"}, "disconnect", string(addr))
}

// expect runs a command and requires one of the success words and no
// failure marker in its output.
func (b *Bluetoothctl) expect(ctx context.Context, success []string, args ...string) error {
	out, err := b.ctl(ctx, args...)
	cmd := fmt.Sprint(args)
	if hasFailure(out) {
		return &CommandError{Command: cmd, Output: out, Err: err}
	}
	if hasAny(out, success...) {
		return nil
	}
	if err != nil {
		return &CommandError{Command: cmd, Output: out, Err: err}
	}
	return &CommandError{Command: cmd, Output: out}
}

// Verify Bluetoothctl implements ControlSurface at compile time.
var _ ControlSurface = (*Bluetoothctl)(nil)
