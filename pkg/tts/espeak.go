package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const providerEspeak = "espeak"

// EspeakBinary is the synthesizer executable.
const EspeakBinary = "espeak-ng"

// Commander runs an external program and returns its standard output.
type Commander interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommander runs programs with os/exec.
type ExecCommander struct{}

// Output implements Commander.
func (ExecCommander) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Espeak implements Provider with the offline espeak-ng synthesizer.
type Espeak struct {
	config *Config
	cmd    Commander
	logger *slog.Logger
}

// NewEspeak creates an espeak-ng provider. It needs no credentials.
func NewEspeak(opts ...Option) *Espeak {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return &Espeak{
		config: cfg,
		cmd:    ExecCommander{},
		logger: cfg.Logger.With("component", "tts.espeak"),
	}
}

// WithCommander replaces the command runner, for tests.
func (e *Espeak) WithCommander(c Commander) *Espeak {
	e.cmd = c
	return e
}

func (e *Espeak) args(text string, stdout bool) []string {
	args := []string{
		"-v", e.config.Language,
		"-s", strconv.Itoa(e.config.Speed),
		"-a", strconv.Itoa(e.config.Amplitude),
	}
	if stdout {
		args = append(args, "--stdout")
	}
	return append(args, text)
}

// Synthesize renders text to a WAV file in memory.
func (e *Espeak) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerEspeak, ErrEmptyText)
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	audio, err := e.cmd.Output(ctx, EspeakBinary, e.args(text, true)...)
	if err != nil {
		return nil, WrapError(providerEspeak, err)
	}
	if len(audio) == 0 {
		return nil, WrapError(providerEspeak, ErrEmptyAudio)
	}

	format := AudioFormat{Encoding: EncodingWAV, SampleRate: 22050, Channels: 1, BitDepth: 16}
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  estimateDuration(format, len(audio)),
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
		Provider:  providerEspeak,
	}, nil
}

// Speak synthesizes and plays text on the default audio sink in one step.
// It blocks until playback finishes.
func (e *Espeak) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return WrapError(providerEspeak, ErrEmptyText)
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	if _, err := e.cmd.Output(ctx, EspeakBinary, e.args(text, false)...); err != nil {
		return WrapError(providerEspeak, err)
	}
	e.logger.Debug("spoke text", "chars", len(text))
	return nil
}

// Health checks that espeak-ng is installed.
func (e *Espeak) Health(ctx context.Context) error {
	if _, err := e.cmd.Output(ctx, EspeakBinary, "--version"); err != nil {
		return WrapError(providerEspeak, err)
	}
	return nil
}

// Close releases resources.
func (e *Espeak) Close() error {
	return nil
}

// Verify Espeak implements Provider at compile time.
var _ Provider = (*Espeak)(nil)
