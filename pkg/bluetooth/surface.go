package bluetooth

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ControlSurface is the capability set needed from the host Bluetooth stack.
type ControlSurface interface {
	// Initialize powers the adapter on and registers a pairing agent.
	Initialize(ctx context.Context) error

	// Scan discovers nearby devices for duration and returns what the
	// stack knows afterwards.
	Scan(ctx context.Context, duration time.Duration) ([]Discovered, error)

	// Info queries the current state of one device.
	Info(ctx context.Context, addr Address) (Info, error)

	Pair(ctx context.Context, addr Address) error
	Trust(ctx context.Context, addr Address) error
	Remove(ctx context.Context, addr Address) error
	Connect(ctx context.Context, addr Address) error
	Disconnect(ctx context.Context, addr Address) error
}

// SinkRegistry lists and selects audio sinks on the host audio server.
type SinkRegistry interface {
	ListSinks(ctx context.Context) ([]Sink, error)
	SetDefaultSink(ctx context.Context, name string) error
}

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// DefaultCommandTimeout bounds every external command.
const DefaultCommandTimeout = 30 * time.Second

// ExecRunner runs commands with os/exec under a per-command timeout.
type ExecRunner struct {
	Timeout time.Duration
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if ctx.Err() != nil {
		return string(out), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ctx.Err())
	}
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return string(out), nil
}
