package bluetooth

import (
	"context"
	"log/slog"
)

// Pactl lists and selects PulseAudio/PipeWire sinks through pactl.
type Pactl struct {
	runner Runner
	logger *slog.Logger
}

// NewPactl creates a sink registry backed by pactl.
func NewPactl(r Runner, logger *slog.Logger) *Pactl {
	if r == nil {
		r = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pactl{runner: r, logger: logger.With("component", "bluetooth.pactl")}
}

// ListSinks returns every registered sink.
func (p *Pactl) ListSinks(ctx context.Context) ([]Sink, error) {
	out, err := p.runner.Run(ctx, "pactl", "list", "sinks", "short")
	if err != nil {
		return nil, &CommandError{Command: "pactl list sinks short", Output: out, Err: err}
	}
	return parseSinks(out), nil
}

// SetDefaultSink makes name the default output.
func (p *Pactl) SetDefaultSink(ctx context.Context, name string) error {
	out, err := p.runner.Run(ctx, "pactl", "set-default-sink", name)
	if err != nil {
		return &CommandError{Command: "pactl set-default-sink", Output: out, Err: err}
	}
	p.logger.Debug("default sink set", "sink", name)
	return nil
}

// Verify Pactl implements SinkRegistry at compile time.
var _ SinkRegistry = (*Pactl)(nil)
