// Package supervisor keeps the target speaker connected.
//
// A Supervisor probes the device on a fixed interval and reconnects it when
// the link drops. Sessions call EnsureConnection before capturing audio; the
// periodic cycle and those on-demand calls are serialized by one mutex so
// connect and disconnect never race against the device.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-assistant/pkg/bluetooth"
)

// DefaultInterval is the time between periodic probes.
const DefaultInterval = 30 * time.Second

// Device is the subset of bluetooth.Link the supervisor drives.
type Device interface {
	Target() (bluetooth.DeviceRecord, bool)
	SetupTargetSpeaker(ctx context.Context, pattern string) (bluetooth.DeviceRecord, error)
	IsConnected(ctx context.Context, dev bluetooth.DeviceRecord) bool
	Connect(ctx context.Context, dev bluetooth.DeviceRecord) error
	BindAsAudioSink(ctx context.Context, dev bluetooth.DeviceRecord) bool
}

// Config configures a Supervisor.
type Config struct {
	// Interval between periodic probes. Cached health older than this is stale.
	Interval time.Duration

	// Pattern is the speaker name pattern used when no target is resolved.
	Pattern string

	// AutoConnect lets the periodic cycle run setup and reconnects. When
	// false the cycle only probes.
	AutoConnect bool

	Now    func() time.Time
	Logger *slog.Logger
}

// DefaultConfig returns a config with the production interval.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		AutoConnect: true,
		Now:         time.Now,
		Logger:      slog.Default(),
	}
}

// Health is the last observed link state.
type Health struct {
	Connected bool              `json:"connected"`
	CheckedAt time.Time         `json:"checked_at"`
	Address   bluetooth.Address `json:"address,omitempty"`
	Name      string            `json:"name,omitempty"`
}

// Fresh reports whether h was observed within interval of now.
func (h Health) Fresh(now time.Time, interval time.Duration) bool {
	if h.CheckedAt.IsZero() {
		return false
	}
	return now.Sub(h.CheckedAt) < interval
}

// Supervisor owns the periodic probe and reconnect cycle.
type Supervisor struct {
	dev    Device
	cfg    Config
	logger *slog.Logger

	// mu serializes every probe, setup and reconnect.
	mu sync.Mutex

	stateMu  sync.RWMutex
	health   Health
	onChange func(Health)

	probes atomic.Int64
}

// New creates a Supervisor for dev.
func New(dev Device, cfg Config) *Supervisor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	return &Supervisor{
		dev:    dev,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "supervisor"),
	}
}

// OnChange registers fn to be called after every health update.
func (s *Supervisor) OnChange(fn func(Health)) {
	s.stateMu.Lock()
	s.onChange = fn
	s.stateMu.Unlock()
}

// SetPattern changes the speaker pattern used by later setups.
func (s *Supervisor) SetPattern(pattern string) {
	s.mu.Lock()
	s.cfg.Pattern = pattern
	s.mu.Unlock()
}

// Health returns the last recorded health.
func (s *Supervisor) Health() Health {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.health
}

// Probes returns the number of live probe cycles executed so far.
func (s *Supervisor) Probes() int {
	return int(s.probes.Load())
}

// Interval returns the probe interval.
func (s *Supervisor) Interval() time.Duration {
	return s.cfg.Interval
}

// Run probes the device every interval until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("connection supervisor started", "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("connection supervisor stopped")
			return nil
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Check runs one periodic cycle and returns the resulting health.
func (s *Supervisor) Check(ctx context.Context) Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.dev.Target()
	if !ok {
		if !s.cfg.AutoConnect {
			return s.record(false, dev)
		}
		return s.setup(ctx)
	}
	return s.probe(ctx, dev, s.cfg.AutoConnect)
}

// EnsureConnection reports whether the speaker is usable right now. Fresh
// cached health is trusted only while the link's own record agrees;
// otherwise the device is probed and one reconnect is attempted inline.
func (s *Supervisor) EnsureConnection(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.dev.Target()
	if !ok {
		return s.setup(ctx).Connected
	}

	h := s.Health()
	now := s.cfg.Now()
	if h.Connected && h.Address == dev.Address && h.Fresh(now, s.cfg.Interval) &&
		dev.ConnectedWithin(now, s.cfg.Interval) {
		return true
	}
	return s.probe(ctx, dev, true).Connected
}

// setup resolves the target from scratch. Callers hold s.mu.
func (s *Supervisor) setup(ctx context.Context) Health {
	s.probes.Add(1)
	if s.cfg.Pattern == "" {
		s.logger.Warn("no speaker pattern configured")
		return s.record(false, bluetooth.DeviceRecord{})
	}
	rec, err := s.dev.SetupTargetSpeaker(ctx, s.cfg.Pattern)
	if err != nil {
		s.logger.Warn("speaker setup failed", "pattern", s.cfg.Pattern, "error", err)
		return s.record(false, rec)
	}
	return s.record(rec.Connection == bluetooth.Connected, rec)
}

// probe checks the live link and optionally reconnects. Callers hold s.mu.
func (s *Supervisor) probe(ctx context.Context, dev bluetooth.DeviceRecord, reconnect bool) Health {
	s.probes.Add(1)
	connected := s.dev.IsConnected(ctx, dev)
	if !connected && reconnect {
		s.logger.Info("speaker disconnected, reconnecting", "address", dev.Address)
		if err := s.dev.Connect(ctx, dev); err != nil {
			s.logger.Warn("reconnect failed", "address", dev.Address, "error", err)
		} else {
			connected = true
			s.dev.BindAsAudioSink(ctx, dev)
		}
	}
	return s.record(connected, dev)
}

func (s *Supervisor) record(connected bool, dev bluetooth.DeviceRecord) Health {
	h := Health{
		Connected: connected,
		CheckedAt: s.cfg.Now(),
		Address:   dev.Address,
		Name:      dev.Name,
	}

	s.stateMu.Lock()
	prev := s.health
	s.health = h
	fn := s.onChange
	s.stateMu.Unlock()

	if prev.Connected != h.Connected {
		s.logger.Info("speaker health changed", "connected", h.Connected, "address", h.Address)
	}
	if fn != nil {
		fn(h)
	}
	return h
}
