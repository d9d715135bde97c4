package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-assistant/pkg/audio"
	"github.com/teslashibe/go-assistant/pkg/inference"
)

// DefaultRecordDuration is how long the user may speak.
const DefaultRecordDuration = 10 * time.Second

// Gate reports whether the speaker is usable, reconnecting if needed.
type Gate interface {
	EnsureConnection(ctx context.Context) bool
}

// Audio records requests and speaks replies. *audio.Pipeline satisfies it.
type Audio interface {
	Record(ctx context.Context, d time.Duration) (string, error)
	Convert(ctx context.Context, path string, format audio.Format) (string, error)
	SynthesizeAndPlay(ctx context.Context, text string, route audio.Route) bool
}

// Config holds session parameters.
type Config struct {
	// RecordDuration is the capture length. Default: 10s
	RecordDuration time.Duration

	// Language hint for transcription. Default: "fr"
	Language string

	// SystemPrompt is the fixed instruction sent with every prompt.
	SystemPrompt string

	// Model, MaxTokens and Temperature override the generator defaults
	// when non-zero.
	Model       string
	MaxTokens   int
	Temperature float64

	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecordDuration: DefaultRecordDuration,
		Language:       "fr",
		SystemPrompt:   inference.DefaultSystemPrompt,
	}
}

// Runner executes sessions one at a time.
type Runner struct {
	cfg    Config
	gate   Gate
	audio  Audio
	tr     inference.Transcriber
	gen    inference.Generator
	logger *slog.Logger

	runMu     sync.Mutex
	busy      atomic.Bool
	obsMu     sync.RWMutex
	observers []Observer
	removeFn  func(string) error
}

// NewRunner creates a runner. All collaborators are required.
func NewRunner(cfg Config, gate Gate, a Audio, tr inference.Transcriber, gen inference.Generator) (*Runner, error) {
	if gate == nil || a == nil || tr == nil || gen == nil {
		return nil, errors.New("session: gate, audio, transcriber and generator are required")
	}
	def := DefaultConfig()
	if cfg.RecordDuration <= 0 {
		cfg.RecordDuration = def.RecordDuration
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:      cfg,
		gate:     gate,
		audio:    a,
		tr:       tr,
		gen:      gen,
		logger:   logger.With("component", "session"),
		removeFn: os.Remove,
	}, nil
}

// Observe registers an observer.
func (r *Runner) Observe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Busy reports whether a session is active.
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

// TryRun runs a session unless one is already active, in which case it
// returns ErrBusy immediately.
func (r *Runner) TryRun(ctx context.Context, req Request) (*Session, error) {
	if !r.runMu.TryLock() {
		return nil, ErrBusy
	}
	defer r.runMu.Unlock()
	return r.execute(ctx, req), nil
}

// Run runs a session, waiting for any active one to finish first.
func (r *Runner) Run(ctx context.Context, req Request) *Session {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.execute(ctx, req)
}

func (r *Runner) execute(ctx context.Context, req Request) (s *Session) {
	r.busy.Store(true)
	defer r.busy.Store(false)

	s = &Session{
		ID:        uuid.NewString(),
		Source:    req.Source,
		StartedAt: time.Now(),
	}
	logger := r.logger.With("session", s.ID, "source", req.Source)
	logger.Info("session started")
	r.notify(func(o Observer) { o.OnStart(s.snapshot()) })

	defer func() {
		r.cleanup(logger, s)
		s.FinishedAt = time.Now()
		logger.Info("session finished",
			"outcome", s.Outcome,
			"duration", s.Duration(),
			"error", s.Error,
		)
		r.notify(func(o Observer) { o.OnFinish(s.snapshot()) })
	}()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("session panicked", "panic", p)
			s.fail(OutcomeError, fmt.Errorf("panic: %v", p))
			r.say(ctx, MsgError, audio.RouteBluetooth)
		}
	}()

	r.steps(ctx, logger, s)
	return s
}

func (r *Runner) steps(ctx context.Context, logger *slog.Logger, s *Session) {
	if !r.gate.EnsureConnection(ctx) {
		logger.Warn("speaker not connected")
		s.fail(OutcomeNoDevice, nil)
		r.say(ctx, MsgNoDevice, audio.RouteLocal)
		return
	}

	if !r.say(ctx, MsgListening, audio.RouteBluetooth) {
		logger.Warn("listening cue not played")
	}

	path, err := r.audio.Record(ctx, r.cfg.RecordDuration)
	if path != "" {
		s.Artifacts = append(s.Artifacts, path)
	}
	if err != nil {
		logger.Error("recording failed", "error", err)
		s.fail(OutcomeRecordFailed, err)
		r.say(ctx, MsgRecordFailed, audio.RouteBluetooth)
		return
	}
	s.AudioPath = path

	text, err := r.transcribe(ctx, s, path)
	if err != nil {
		logger.Error("transcription failed", "error", err)
		s.fail(OutcomeTranscribeFailed, err)
		r.say(ctx, MsgNotUnderstood, audio.RouteBluetooth)
		return
	}
	s.Transcript = text
	logger.Info("transcribed", "text", text)

	reply, err := r.generate(ctx, text)
	if err != nil {
		logger.Error("generation failed", "error", err)
		s.fail(OutcomeGenerateFailed, err)
		r.say(ctx, MsgConnection, audio.RouteBluetooth)
		return
	}
	s.Response = reply
	logger.Info("generated", "text", reply)

	if !r.say(ctx, reply, audio.RouteBluetooth) {
		logger.Warn("reply not played")
	}
	s.Outcome = OutcomeSuccess
}

func (r *Runner) transcribe(ctx context.Context, s *Session, path string) (string, error) {
	upload, err := r.audio.Convert(ctx, path, audio.Format(r.tr.Format()))
	if upload != "" && upload != path {
		s.Artifacts = append(s.Artifacts, upload)
	}
	if err != nil {
		return "", err
	}

	r.say(ctx, MsgProcessing, audio.RouteBluetooth)

	tr, err := r.tr.Transcribe(ctx, &inference.TranscribeRequest{
		Path:     upload,
		Language: r.cfg.Language,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return "", inference.ErrEmptyResponse
	}
	return text, nil
}

func (r *Runner) generate(ctx context.Context, prompt string) (string, error) {
	c, err := r.gen.Generate(ctx, &inference.GenerateRequest{
		Prompt:      prompt,
		System:      r.cfg.SystemPrompt,
		Model:       r.cfg.Model,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return "", inference.ErrEmptyResponse
	}
	return text, nil
}

func (r *Runner) say(ctx context.Context, text string, route audio.Route) bool {
	return r.audio.SynthesizeAndPlay(ctx, text, route)
}

// cleanup removes every artifact. It runs on every exit path.
func (r *Runner) cleanup(logger *slog.Logger, s *Session) {
	for _, path := range s.Artifacts {
		if err := r.removeFn(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("artifact cleanup failed", "path", path, "error", err)
		}
	}
}

func (r *Runner) notify(fn func(Observer)) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		fn(o)
	}
}
