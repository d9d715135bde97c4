package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-assistant/pkg/audioio"
	"github.com/teslashibe/go-assistant/pkg/tts"
)

// File name prefixes of pipeline artifacts in the temp dir.
const (
	recordingPrefix = "recording_"
	speechPrefix    = "speech_"
)

// FFmpegBinary converts recordings to the upload format.
const FFmpegBinary = "ffmpeg"

// Config holds pipeline configuration.
type Config struct {
	// TempDir receives recordings and synthesized speech.
	// Default: $TMPDIR/go-assistant
	TempDir string `json:"temp_dir"`

	// MP3Bitrate is passed to ffmpeg when converting to MP3.
	// Default: "128k"
	MP3Bitrate string `json:"mp3_bitrate"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TempDir:    filepath.Join(os.TempDir(), "go-assistant"),
		MP3Bitrate: "128k",
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFastSpeaker sets the direct-to-sink speaker tried first on RouteBluetooth.
func WithFastSpeaker(s FastSpeaker) Option {
	return func(p *Pipeline) { p.fast = s }
}

// WithPlayer replaces the player used for a route.
func WithPlayer(r Route, pl Player) Option {
	return func(p *Pipeline) { p.players[r] = pl }
}

// WithCommander replaces the runner used for ffmpeg and paplay.
func WithCommander(c tts.Commander) Option {
	return func(p *Pipeline) { p.cmd = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline records requests and plays replies.
type Pipeline struct {
	cfg     Config
	source  audioio.Source
	synth   Synthesizer
	fast    FastSpeaker
	players map[Route]Player
	cmd     tts.Commander
	logger  *slog.Logger

	recMu  sync.Mutex
	playMu sync.Mutex
}

// New creates a pipeline capturing from source and synthesizing with synth.
// Either may be nil when the corresponding operations are not used.
func New(cfg Config, source audioio.Source, synth Synthesizer, opts ...Option) (*Pipeline, error) {
	if cfg.TempDir == "" {
		cfg.TempDir = DefaultConfig().TempDir
	}
	if cfg.MP3Bitrate == "" {
		cfg.MP3Bitrate = DefaultConfig().MP3Bitrate
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	p := &Pipeline{
		cfg:     cfg,
		source:  source,
		synth:   synth,
		players: make(map[Route]Player),
		cmd:     tts.ExecCommander{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "audio.pipeline")

	if _, ok := p.players[RouteBluetooth]; !ok {
		p.players[RouteBluetooth] = NewPaplay(p.cmd)
	}
	if _, ok := p.players[RouteLocal]; !ok {
		p.players[RouteLocal] = NewLocalPlayer()
	}
	return p, nil
}

// TempDir returns the directory holding pipeline artifacts.
func (p *Pipeline) TempDir() string {
	return p.cfg.TempDir
}

// Record captures d of audio into a new WAV file in the temp dir and returns
// its path. The file is removed again if capture fails.
func (p *Pipeline) Record(ctx context.Context, d time.Duration) (string, error) {
	if p.source == nil {
		return "", fmt.Errorf("%w: %w", ErrRecordFailed, ErrNoInputDevice)
	}
	if d <= 0 {
		return "", fmt.Errorf("%w: duration must be positive, got %v", ErrRecordFailed, d)
	}

	p.recMu.Lock()
	defer p.recMu.Unlock()

	cfg := p.source.Config()
	want := cfg.FramesFor(d) * cfg.Channels

	if err := p.source.Start(ctx); err != nil {
		return "", fmt.Errorf("%w: start capture: %w", ErrRecordFailed, err)
	}
	p.logger.Info("recording", "duration", d, "backend", p.source.Name())

	samples := make([]int16, 0, want)
	for len(samples) < want {
		chunk, err := p.source.Read(ctx)
		if err != nil {
			_ = p.source.Stop()
			return "", fmt.Errorf("%w: read: %w", ErrRecordFailed, err)
		}
		samples = append(samples, chunk.Samples...)
	}
	if err := p.source.Stop(); err != nil {
		p.logger.Warn("stop capture failed", "error", err)
	}
	samples = samples[:want]

	path := filepath.Join(p.cfg.TempDir, fmt.Sprintf("%s%d.wav", recordingPrefix, time.Now().UnixNano()))
	if err := writeWAV(path, samples, cfg.SampleRate, cfg.Channels); err != nil {
		p.CleanupFile(path)
		return "", fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}

	p.logger.Debug("recording saved", "path", path, "samples", len(samples))
	return path, nil
}

// Convert converts the file at path to format and returns the new path.
// Converting to the format the file already has returns path unchanged.
func (p *Pipeline) Convert(ctx context.Context, path string, format Format) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if Format(ext) == format {
		return path, nil
	}
	if format != FormatMP3 {
		return "", fmt.Errorf("%w: unsupported target %q", ErrConvertFailed, format)
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + "." + string(format)
	_, err := p.cmd.Output(ctx, FFmpegBinary,
		"-i", path,
		"-acodec", "libmp3lame",
		"-ab", p.cfg.MP3Bitrate,
		"-y", out,
	)
	if err != nil {
		p.CleanupFile(out)
		return "", fmt.Errorf("%w: %w", ErrConvertFailed, err)
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		p.CleanupFile(out)
		return "", fmt.Errorf("%w: no output at %s", ErrConvertFailed, out)
	}
	return out, nil
}

// SynthesizeAndPlay speaks text on route and blocks until playback ends.
// It reports whether the text was heard; failures are logged only.
func (p *Pipeline) SynthesizeAndPlay(ctx context.Context, text string, route Route) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	p.playMu.Lock()
	defer p.playMu.Unlock()

	logger := p.logger.With("route", route.String())

	if route == RouteBluetooth && p.fast != nil {
		err := p.fast.Speak(ctx, text)
		if err == nil {
			logger.Debug("spoke via fast path", "chars", len(text))
			return true
		}
		logger.Warn("fast speech failed, falling back", "error", err)
	}

	if err := p.synthesizeAndPlay(ctx, text, route); err != nil {
		logger.Error("speech failed", "error", err)
		return false
	}
	return true
}

func (p *Pipeline) synthesizeAndPlay(ctx context.Context, text string, route Route) error {
	player, ok := p.players[route]
	if !ok || player == nil {
		return ErrNoPlayer
	}
	if p.synth == nil {
		return errors.New("no synthesizer configured")
	}

	res, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	path := filepath.Join(p.cfg.TempDir,
		fmt.Sprintf("%s%d.%s", speechPrefix, time.Now().UnixNano(), res.Format.Encoding.Extension()))
	if err := os.WriteFile(path, res.Audio, 0o644); err != nil {
		return fmt.Errorf("write speech: %w", err)
	}
	defer p.CleanupFile(path)

	if err := player.Play(ctx, path); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	p.logger.Debug("spoke", "route", route.String(), "provider", res.Provider, "latency_ms", res.LatencyMs)
	return nil
}

// CleanupFile removes path, ignoring files that are already gone.
func (p *Pipeline) CleanupFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("cleanup failed", "path", path, "error", err)
	}
}

// CleanupTempFiles removes every recording and speech file left in the temp
// dir and returns how many were removed.
func (p *Pipeline) CleanupTempFiles() (int, error) {
	entries, err := os.ReadDir(p.cfg.TempDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	var errs []error
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasPrefix(name, recordingPrefix) || strings.HasPrefix(name, speechPrefix)) {
			continue
		}
		if err := os.Remove(filepath.Join(p.cfg.TempDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		p.logger.Info("temp files removed", "count", removed)
	}
	return removed, errors.Join(errs...)
}

// Close releases the capture source.
func (p *Pipeline) Close() error {
	if p.source == nil {
		return nil
	}
	return p.source.Close()
}
