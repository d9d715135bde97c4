// Package assistant wires the voice assistant together: the hardware button,
// the speaker supervisor, command sessions, the health checker and the
// status server.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio"

	"github.com/teslashibe/go-assistant/internal/config"
	"github.com/teslashibe/go-assistant/internal/httpc"
	"github.com/teslashibe/go-assistant/pkg/audio"
	"github.com/teslashibe/go-assistant/pkg/audioio"
	"github.com/teslashibe/go-assistant/pkg/bluetooth"
	"github.com/teslashibe/go-assistant/pkg/health"
	"github.com/teslashibe/go-assistant/pkg/hub"
	"github.com/teslashibe/go-assistant/pkg/inference"
	"github.com/teslashibe/go-assistant/pkg/metrics"
	"github.com/teslashibe/go-assistant/pkg/session"
	"github.com/teslashibe/go-assistant/pkg/supervisor"
	"github.com/teslashibe/go-assistant/pkg/trigger"
	"github.com/teslashibe/go-assistant/pkg/tts"
	"github.com/teslashibe/go-assistant/pkg/web"
)

// ReadyMessage is spoken once the assistant has booted.
const ReadyMessage = "Assistant vocal prêt"

// App is the assistant process. It owns every component and their lifecycle.
type App struct {
	config    Config
	logger    *slog.Logger
	startedAt time.Time
	deps      deps

	store      *config.Store
	settingsMu sync.RWMutex
	settings   config.Settings
	disabled   string

	// Speaker
	link       *bluetooth.Link
	supervisor *supervisor.Supervisor

	// Audio
	source   audioio.Source
	synth    audio.Synthesizer
	espeak   *tts.Espeak
	pipeline *audio.Pipeline

	// Sessions, nil while disabled
	runner  *session.Runner
	history *session.History

	// Trigger
	bus      *trigger.Bus
	listener *trigger.Listener

	// Status surface
	checker   *health.Checker
	metrics   *metrics.Metrics
	events    *hub.Hub
	webServer *web.Server
}

// deps are collaborators tests replace.
type deps struct {
	surface     bluetooth.ControlSurface
	sinks       bluetooth.SinkRegistry
	linkConfig  *bluetooth.LinkConfig
	source      audioio.Source
	synth       audio.Synthesizer
	commander   tts.Commander
	audioOpts   []audio.Option
	transcriber inference.Transcriber
	generator   inference.Generator
	newClient   func(opts ...inference.Option) (*inference.Client, error)
	pin         gpio.PinIO
}

// Option customizes an App.
type Option func(*deps)

// WithBluetooth replaces the bluetoothctl and pactl backends.
func WithBluetooth(surface bluetooth.ControlSurface, sinks bluetooth.SinkRegistry) Option {
	return func(d *deps) {
		d.surface = surface
		d.sinks = sinks
	}
}

// WithLinkConfig overrides the bluetooth timing.
func WithLinkConfig(cfg bluetooth.LinkConfig) Option {
	return func(d *deps) { d.linkConfig = &cfg }
}

// WithSource replaces the microphone.
func WithSource(s audioio.Source) Option {
	return func(d *deps) { d.source = s }
}

// WithSynthesizer replaces the TTS chain.
func WithSynthesizer(s audio.Synthesizer) Option {
	return func(d *deps) { d.synth = s }
}

// WithCommander replaces the runner used for espeak-ng, paplay and ffmpeg.
func WithCommander(c tts.Commander) Option {
	return func(d *deps) { d.commander = c }
}

// WithAudioOptions passes extra options to the audio pipeline.
func WithAudioOptions(opts ...audio.Option) Option {
	return func(d *deps) { d.audioOpts = append(d.audioOpts, opts...) }
}

// WithInference replaces the OpenAI client.
func WithInference(tr inference.Transcriber, gen inference.Generator) Option {
	return func(d *deps) {
		d.transcriber = tr
		d.generator = gen
	}
}

// WithPin replaces the button pin.
func WithPin(p gpio.PinIO) Option {
	return func(d *deps) { d.pin = p }
}

// New creates an App and loads the config files.
func New(cfg Config, opts ...Option) (*App, error) {
	cfg.LoadEnvConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &App{
		config: cfg,
		logger: cfg.Logger.With("component", "assistant"),
	}
	for _, opt := range opts {
		opt(&a.deps)
	}

	a.store = config.NewStore(cfg.ConfigDir, cfg.Logger)
	if err := a.store.Load(); err != nil {
		a.logger.Warn("some config files could not be read", "error", err)
	}
	a.store.ApplyEnv()
	a.settings = a.store.Settings()
	a.disabled = disabledReason(a.settings)

	return a, nil
}

// Init builds every component, sets up the speaker and announces readiness.
// Call this after New() and before Run().
func (a *App) Init(ctx context.Context) error {
	a.startedAt = time.Now()
	a.store.LogCurrent()
	if a.disabled != "" {
		a.logger.Warn("assistant disabled, only the status server will run", "reason", a.disabled)
	}

	a.metrics = metrics.New()
	a.events = hub.New("events", a.config.Logger)
	a.bus = trigger.NewBus()

	a.initBluetooth()
	if err := a.initAudio(); err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	if a.disabled == "" {
		if err := a.initSessions(); err != nil {
			a.disabled = "sessions unavailable: " + err.Error()
			a.logger.Error("session init failed, assistant disabled", "error", err)
		} else {
			a.initTrigger()
		}
	}
	a.initHealth()

	if a.config.ListenAddr != "" {
		a.webServer = web.NewServer(a.config.ListenAddr, a, a.events, a.metrics.Handler(), a.config.Logger)
	}

	if !a.config.SkipSetup {
		a.boot(ctx)
	}
	return nil
}

func (a *App) initBluetooth() {
	s := a.currentSettings()

	surface, sinks := a.deps.surface, a.deps.sinks
	if surface == nil {
		surface = bluetooth.NewBluetoothctl(nil, a.config.Logger)
	}
	if sinks == nil {
		sinks = bluetooth.NewPactl(nil, a.config.Logger)
	}

	lc := bluetooth.DefaultLinkConfig()
	if a.deps.linkConfig != nil {
		lc = *a.deps.linkConfig
	}
	if s.Bluetooth.ConnectionTimeout > 0 {
		lc.ScanGrace = s.Bluetooth.ConnectionTimeout
	}
	lc.Logger = a.config.Logger
	a.link = bluetooth.NewLink(surface, sinks, lc)

	sc := supervisor.DefaultConfig()
	sc.Pattern = s.Bluetooth.SpeakerName
	sc.AutoConnect = s.Bluetooth.AutoConnect
	sc.Logger = a.config.Logger
	if a.config.SupervisorInterval > 0 {
		sc.Interval = a.config.SupervisorInterval
	}
	a.supervisor = supervisor.New(a.link, sc)
	a.supervisor.OnChange(func(h supervisor.Health) {
		a.metrics.ObserveSpeaker(h)
		a.publish(hub.EventSpeaker, h)
	})
}

func (a *App) initAudio() error {
	s := a.currentSettings()

	a.source = a.deps.source
	if a.source == nil {
		ac := audioio.DefaultConfig()
		ac.Backend = a.config.AudioBackend
		ac.Device = a.config.AudioDevice
		if s.Assistant.SampleRate > 0 {
			ac.SampleRate = s.Assistant.SampleRate
		}
		src, err := audioio.NewSource(ac, a.config.Logger)
		if err != nil {
			// sessions end with NoInputDevice
			a.logger.Warn("no audio input available", "error", err)
		} else {
			a.logger.Info("audio input ready", "backend", src.Name())
			a.source = src
		}
	}

	a.espeak = tts.NewEspeak(tts.WithLanguage("fr"), tts.WithLogger(a.config.Logger))
	if a.deps.commander != nil {
		a.espeak.WithCommander(a.deps.commander)
	}

	a.synth = a.deps.synth
	if a.synth == nil {
		chain, err := a.newSpeechChain(s)
		if err != nil {
			return err
		}
		a.synth = chain
	}

	opts := []audio.Option{
		audio.WithFastSpeaker(a.espeak),
		audio.WithLogger(a.config.Logger),
	}
	if a.deps.commander != nil {
		opts = append(opts, audio.WithCommander(a.deps.commander))
	}
	opts = append(opts, a.deps.audioOpts...)

	p, err := audio.New(audio.Config{TempDir: a.config.TempDir}, a.source, a.synth, opts...)
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

// newSpeechChain prefers OpenAI voices when a key is configured and falls
// back to espeak-ng.
func (a *App) newSpeechChain(s config.Settings) (*tts.Chain, error) {
	providers := []tts.Provider{}
	if config.ValidateAPIKey(s.OpenAI.APIKey) == nil {
		client, err := httpc.ForProxy(a.config.SocksProxy, httpc.DefaultTimeout)
		if err != nil {
			return nil, err
		}
		o, err := tts.NewOpenAI(
			tts.WithAPIKey(s.OpenAI.APIKey),
			tts.WithHTTPClient(client),
			tts.WithLogger(a.config.Logger),
		)
		if err != nil {
			a.logger.Warn("openai speech unavailable", "error", err)
		} else {
			providers = append(providers, o)
		}
	}
	providers = append(providers, a.espeak)
	return tts.NewChainWithLogger(a.config.Logger, providers...)
}

func (a *App) initSessions() error {
	s := a.currentSettings()

	tr, gen := a.deps.transcriber, a.deps.generator
	if tr == nil || gen == nil {
		client, err := httpc.ForProxy(a.config.SocksProxy, inference.DefaultTimeout)
		if err != nil {
			return err
		}
		newClient := a.deps.newClient
		if newClient == nil {
			newClient = inference.NewClient
		}
		c, err := newClient(
			inference.WithAPIKey(s.OpenAI.APIKey),
			inference.WithModel(s.OpenAI.Model),
			inference.WithWhisperModel(s.OpenAI.WhisperModel),
			inference.WithMaxTokens(s.OpenAI.MaxTokens),
			inference.WithTemperature(s.OpenAI.Temperature),
			inference.WithHTTPClient(client),
			inference.WithLogger(a.config.Logger),
		)
		if err != nil {
			return err
		}
		tr, gen = c, c
	}

	cfg := session.DefaultConfig()
	cfg.RecordDuration = s.Assistant.RecordingDuration
	cfg.Model = s.OpenAI.Model
	cfg.MaxTokens = s.OpenAI.MaxTokens
	cfg.Temperature = s.OpenAI.Temperature
	cfg.Logger = a.config.Logger

	r, err := session.NewRunner(cfg, a.supervisor, a.pipeline, tr, gen)
	if err != nil {
		return err
	}
	a.history = session.NewHistory(session.DefaultHistorySize)
	r.Observe(a.history)
	r.Observe(a.metrics)
	r.Observe(eventObserver{a})
	a.runner = r
	return nil
}

func (a *App) initTrigger() {
	if a.config.NoGPIO {
		a.logger.Info("button disabled, sessions start through the API only")
		return
	}
	pin := a.deps.pin
	if pin == nil {
		p, err := trigger.OpenPin(a.currentSettings().Assistant.GPIOPin)
		if err != nil {
			a.logger.Warn("button unavailable, sessions start through the API only", "error", err)
			return
		}
		pin = p
	}
	a.listener = trigger.NewListener(pin, a.bus,
		trigger.WithLogger(a.config.Logger),
		trigger.WithBusy(a.runner.Busy),
		trigger.WithPressHook(func(accepted bool) {
			a.metrics.Press(accepted)
			a.publish(hub.EventTrigger, triggerEvent{Source: trigger.SourceGPIO, Accepted: accepted})
		}),
	)
}

func (a *App) initHealth() {
	a.checker = health.New(health.Config{
		Dir:    a.config.TempDir,
		Logger: a.config.Logger,
	}, a.pipeline)
	a.checker.OnReport(func(r health.Report) {
		a.metrics.ObserveHealth(r)
		a.publish(hub.EventHealth, r)
	})
}

// boot connects the speaker and announces readiness. Neither step is fatal.
func (a *App) boot(ctx context.Context) {
	route := audio.RouteLocal
	if a.currentSettings().Bluetooth.AutoConnect {
		if h := a.supervisor.Check(ctx); h.Connected {
			route = audio.RouteBluetooth
		} else {
			a.logger.Warn("speaker not connected at boot, the supervisor will retry")
		}
	}
	if !a.pipeline.SynthesizeAndPlay(ctx, ReadyMessage, route) {
		a.logger.Warn("ready announcement failed", "route", route)
	}
}

// Run starts the background tasks and blocks until ctx is cancelled and
// every task has returned.
func (a *App) Run(ctx context.Context) error {
	if a.pipeline == nil {
		return errors.New("assistant: Init must be called before Run")
	}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.supervisor.Run(ctx) })
	g.Go(func() error { return a.checker.Run(ctx) })

	g.Go(func() error {
		a.events.Run()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.events.Stop()
		return nil
	})

	if a.listener != nil {
		g.Go(func() error {
			if err := a.listener.Run(ctx); err != nil {
				a.logger.Error("button listener stopped", "error", err)
			}
			return nil
		})
	}
	if a.runner != nil {
		g.Go(func() error { return a.consume(ctx) })
	}
	if a.webServer != nil {
		g.Go(func() error {
			if err := a.webServer.Run(ctx); err != nil {
				a.logger.Error("status server stopped", "error", err)
			}
			return nil
		})
	}
	if a.config.Watch {
		g.Go(func() error {
			if err := a.store.Watch(ctx, a.applySettings); err != nil {
				a.logger.Warn("config watch unavailable", "error", err)
			}
			return nil
		})
	}

	a.logger.Info("assistant running", "enabled", a.disabled == "", "listen", a.config.ListenAddr)
	a.publish(hub.EventStatus, a.Status())
	return g.Wait()
}

// consume runs one session per signal. Signals that arrive during a session
// are dropped once it ends.
func (a *App) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-a.bus.C():
			a.handleSignal(ctx, sig)
		}
	}
}

func (a *App) handleSignal(ctx context.Context, sig trigger.Signal) {
	// the session is not cancelled on shutdown
	s, err := a.runner.TryRun(context.WithoutCancel(ctx), session.Request{Source: sig.Source})
	switch {
	case errors.Is(err, session.ErrBusy):
		a.logger.Info("session already running, trigger ignored", "source", sig.Source)
	case err != nil:
		a.logger.Error("session failed to start", "error", err)
	default:
		a.logger.Info("session finished", "id", s.ID, "outcome", s.Outcome, "duration", s.Duration())
	}
	if n := a.bus.Drain(); n > 0 {
		a.logger.Info("dropped triggers received during session", "count", n)
	}
}

// applySettings takes a reloaded config snapshot. The speaker pattern is
// applied live; other changes need a restart.
func (a *App) applySettings(s config.Settings) {
	a.store.ApplyEnv()
	s = a.store.Settings()

	a.settingsMu.Lock()
	prev := a.settings
	a.settings = s
	a.settingsMu.Unlock()

	if s.Bluetooth.SpeakerName != prev.Bluetooth.SpeakerName {
		a.logger.Info("speaker pattern changed", "pattern", s.Bluetooth.SpeakerName)
		a.link.ForgetTarget()
		a.supervisor.SetPattern(s.Bluetooth.SpeakerName)
	}
	if (disabledReason(s) == "") != (a.runner != nil) {
		a.logger.Warn("assistant enablement changed, restart to apply")
	}
	a.publish(hub.EventStatus, a.Status())
}

func (a *App) currentSettings() config.Settings {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return a.settings
}

// Shutdown removes temp files and releases audio resources.
func (a *App) Shutdown() {
	a.logger.Info("shutting down")
	if a.events != nil {
		a.events.Stop()
	}
	if a.pipeline != nil {
		if _, err := a.pipeline.CleanupTempFiles(); err != nil {
			a.logger.Warn("temp cleanup failed", "error", err)
		}
		if err := a.pipeline.Close(); err != nil {
			a.logger.Warn("closing audio input failed", "error", err)
		}
	}
	if c, ok := a.synth.(interface{ Close() error }); ok {
		c.Close()
	}
}

// Enabled reports whether the assistant takes commands.
func (a *App) Enabled() bool {
	return a.disabled == ""
}

// Bus returns the trigger bus.
func (a *App) Bus() *trigger.Bus {
	return a.bus
}

// Supervisor returns the speaker supervisor.
func (a *App) Supervisor() *supervisor.Supervisor {
	return a.supervisor
}

// Pipeline returns the audio pipeline.
func (a *App) Pipeline() *audio.Pipeline {
	return a.pipeline
}

// Web returns the status server, or nil when disabled.
func (a *App) Web() *web.Server {
	return a.webServer
}
