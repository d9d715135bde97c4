package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Link timing defaults.
const (
	DefaultScanDuration = 15 * time.Second
	DefaultScanGrace    = 10 * time.Second
	MinSettleDelay      = 3 * time.Second
)

// LinkConfig tunes a Link.
type LinkConfig struct {
	// ScanDuration is used by SetupTargetSpeaker.
	ScanDuration time.Duration

	// ScanGrace is added to the scan duration before a scan is declared
	// timed out.
	ScanGrace time.Duration

	// SettleDelay is the wait after connecting before sinks are listed.
	// Values below MinSettleDelay are raised to it.
	SettleDelay time.Duration

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	// Now returns the current time. Tests replace it.
	Now func() time.Time

	Logger *slog.Logger
}

// DefaultLinkConfig returns production timing.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		ScanDuration: DefaultScanDuration,
		ScanGrace:    DefaultScanGrace,
		SettleDelay:  MinSettleDelay,
		Sleep:        sleepCtx,
		Now:          time.Now,
		Logger:       slog.Default(),
	}
}

// Link owns pairing and connection state for the target speaker.
type Link struct {
	surface ControlSurface
	sinks   SinkRegistry
	cfg     LinkConfig
	logger  *slog.Logger

	mu      sync.Mutex
	records map[Address]*DeviceRecord
	locks   map[Address]*sync.Mutex
	target  Address
}

// NewLink creates a Link over the given capabilities.
func NewLink(surface ControlSurface, sinks SinkRegistry, cfg LinkConfig) *Link {
	def := DefaultLinkConfig()
	if cfg.ScanDuration <= 0 {
		cfg.ScanDuration = def.ScanDuration
	}
	if cfg.ScanGrace <= 0 {
		cfg.ScanGrace = def.ScanGrace
	}
	if cfg.SettleDelay < MinSettleDelay {
		cfg.SettleDelay = MinSettleDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = def.Sleep
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	return &Link{
		surface: surface,
		sinks:   sinks,
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "bluetooth.link"),
		records: make(map[Address]*DeviceRecord),
		locks:   make(map[Address]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing mutations of one device.
func (l *Link) lockFor(addr Address) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	addr = addr.Normalize()
	m, ok := l.locks[addr]
	if !ok {
		m = &sync.Mutex{}
		l.locks[addr] = m
	}
	return m
}

// update mutates the record for addr under the table lock and returns a copy.
func (l *Link) update(addr Address, fn func(r *DeviceRecord)) DeviceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	addr = addr.Normalize()
	r, ok := l.records[addr]
	if !ok {
		r = &DeviceRecord{Address: addr}
		l.records[addr] = r
	}
	fn(r)
	return *r
}

// Record returns what is known about addr.
func (l *Link) Record(addr Address) (DeviceRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[addr.Normalize()]
	if !ok {
		return DeviceRecord{}, false
	}
	return *r, true
}

// Records returns every device seen so far.
func (l *Link) Records() []DeviceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]DeviceRecord, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, *r)
	}
	return out
}

// Target returns the resolved target speaker, if any.
func (l *Link) Target() (DeviceRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[l.target]
	if l.target == "" || !ok {
		return DeviceRecord{}, false
	}
	return *r, true
}

// ForgetTarget drops the cached target so the next setup rediscovers it.
func (l *Link) ForgetTarget() {
	l.mu.Lock()
	l.target = ""
	l.mu.Unlock()
}

func (l *Link) setTarget(addr Address) {
	l.mu.Lock()
	l.target = addr.Normalize()
	l.mu.Unlock()
}

// Initialize prepares the control surface.
func (l *Link) Initialize(ctx context.Context) error {
	if err := l.surface.Initialize(ctx); err != nil {
		return fmt.Errorf("bluetooth initialize: %w", err)
	}
	return nil
}

// Discover scans for scanDuration and returns the first device whose name
// contains pattern, ignoring case. A cached target missing from the scan
// is invalidated.
func (l *Link) Discover(ctx context.Context, pattern string, scanDuration time.Duration) (DeviceRecord, error) {
	if scanDuration <= 0 {
		scanDuration = l.cfg.ScanDuration
	}
	scanCtx, cancel := context.WithTimeout(ctx, scanDuration+l.cfg.ScanGrace)
	defer cancel()

	l.logger.Info("scanning for devices", "pattern", pattern, "duration", scanDuration)

	found, err := l.surface.Scan(scanCtx, scanDuration)
	if err != nil {
		if ctx.Err() == nil && errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
			return DeviceRecord{}, ErrScanTimeout
		}
		return DeviceRecord{}, fmt.Errorf("bluetooth scan: %w", err)
	}
	if ctx.Err() == nil && errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
		return DeviceRecord{}, ErrScanTimeout
	}

	l.invalidateMissingTarget(found)

	needle := strings.ToLower(strings.TrimSpace(pattern))
	if needle == "" {
		return DeviceRecord{}, ErrNotFound
	}
	for _, d := range found {
		if strings.Contains(strings.ToLower(d.Name), needle) {
			rec := l.update(d.Address, func(r *DeviceRecord) {
				r.Name = d.Name
			})
			l.logger.Info("device found", "name", rec.Name, "address", rec.Address)
			return rec, nil
		}
	}

	l.logger.Warn("no device matched", "pattern", pattern, "scanned", len(found))
	return DeviceRecord{}, ErrNotFound
}

func (l *Link) invalidateMissingTarget(found []Discovered) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.target == "" {
		return
	}
	for _, d := range found {
		if d.Address.Normalize() == l.target {
			return
		}
	}
	l.logger.Warn("cached target missing from scan, invalidating", "address", l.target)
	l.target = ""
}

// EnsurePaired pairs dev unless it is already paired. Stale pairing data
// is removed first and the device is trusted on success.
func (l *Link) EnsurePaired(ctx context.Context, dev DeviceRecord) error {
	mu := l.lockFor(dev.Address)
	mu.Lock()
	defer mu.Unlock()

	if info, err := l.surface.Info(ctx, dev.Address); err == nil && info.Paired {
		l.update(dev.Address, func(r *DeviceRecord) { r.Pairing = Paired })
		return nil
	}

	l.logger.Info("pairing device", "address", dev.Address)
	if err := l.surface.Remove(ctx, dev.Address); err != nil {
		l.logger.Debug("remove before pair failed", "address", dev.Address, "error", err)
	}
	if err := l.surface.Pair(ctx, dev.Address); err != nil {
		l.update(dev.Address, func(r *DeviceRecord) { r.Pairing = Unpaired })
		return fmt.Errorf("%w: %w", ErrPairFailed, err)
	}
	if err := l.surface.Trust(ctx, dev.Address); err != nil {
		l.logger.Warn("trust failed", "address", dev.Address, "error", err)
	}
	l.update(dev.Address, func(r *DeviceRecord) { r.Pairing = Paired })
	l.logger.Info("device paired", "address", dev.Address)
	return nil
}

// Connect opens the link to dev. When the device already reports
// connected no connect command is issued.
func (l *Link) Connect(ctx context.Context, dev DeviceRecord) error {
	mu := l.lockFor(dev.Address)
	mu.Lock()
	defer mu.Unlock()

	if info, err := l.surface.Info(ctx, dev.Address); err == nil && info.Connected {
		l.markProbed(dev.Address, info)
		return nil
	}

	l.update(dev.Address, func(r *DeviceRecord) { r.Connection = Connecting })
	l.logger.Info("connecting", "address", dev.Address)

	if err := l.surface.Connect(ctx, dev.Address); err != nil {
		l.update(dev.Address, func(r *DeviceRecord) {
			r.Connection = Disconnected
			r.ProbedAt = l.cfg.Now()
		})
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	l.update(dev.Address, func(r *DeviceRecord) {
		r.Connection = Connected
		r.ProbedAt = l.cfg.Now()
	})
	l.logger.Info("connected", "address", dev.Address)
	return nil
}

// Disconnect closes the link. It never fails the caller.
func (l *Link) Disconnect(ctx context.Context, dev DeviceRecord) {
	mu := l.lockFor(dev.Address)
	mu.Lock()
	defer mu.Unlock()

	if err := l.surface.Disconnect(ctx, dev.Address); err != nil {
		l.logger.Debug("disconnect reported an error", "address", dev.Address, "error", err)
	}
	l.update(dev.Address, func(r *DeviceRecord) {
		r.Connection = Disconnected
		r.ProbedAt = l.cfg.Now()
	})
}

// BindAsAudioSink waits for the audio server to register the device's sink
// and makes it the default output. False means no matching sink appeared;
// the connection itself is unaffected.
func (l *Link) BindAsAudioSink(ctx context.Context, dev DeviceRecord) bool {
	if l.sinks == nil {
		return false
	}
	mu := l.lockFor(dev.Address)
	mu.Lock()
	defer mu.Unlock()

	if err := l.cfg.Sleep(ctx, l.cfg.SettleDelay); err != nil {
		return false
	}

	sinks, err := l.sinks.ListSinks(ctx)
	if err != nil {
		l.logger.Warn("listing sinks failed", "error", err)
		return false
	}
	sink, ok := matchSink(sinks, dev.Address)
	if !ok {
		l.logger.Warn("no audio sink for device", "address", dev.Address, "sinks", len(sinks))
		return false
	}
	if err := l.sinks.SetDefaultSink(ctx, sink.Name); err != nil {
		l.logger.Warn("setting default sink failed", "sink", sink.Name, "error", err)
		return false
	}
	l.logger.Info("audio sink bound", "sink", sink.Name)
	return true
}

// IsConnected probes the device. Any failure reads as false.
func (l *Link) IsConnected(ctx context.Context, dev DeviceRecord) bool {
	info, err := l.surface.Info(ctx, dev.Address)
	if err != nil {
		l.update(dev.Address, func(r *DeviceRecord) {
			r.Connection = Disconnected
			r.ProbedAt = l.cfg.Now()
		})
		return false
	}
	l.markProbed(dev.Address, info)
	return info.Connected
}

// IsPaired probes the device. Any failure reads as false.
func (l *Link) IsPaired(ctx context.Context, dev DeviceRecord) bool {
	info, err := l.surface.Info(ctx, dev.Address)
	if err != nil {
		return false
	}
	l.markProbed(dev.Address, info)
	return info.Paired
}

func (l *Link) markProbed(addr Address, info Info) {
	l.update(addr, func(r *DeviceRecord) {
		if info.Name != "" {
			r.Name = info.Name
		}
		if info.Paired {
			r.Pairing = Paired
		} else {
			r.Pairing = Unpaired
		}
		if info.Connected {
			r.Connection = Connected
		} else {
			r.Connection = Disconnected
		}
		r.ProbedAt = l.cfg.Now()
	})
}

// SetupTargetSpeaker runs initialize, discover, pair, connect and sink
// binding in order. Each failing stage stops the sequence, except sink
// binding whose failure is only logged.
func (l *Link) SetupTargetSpeaker(ctx context.Context, pattern string) (DeviceRecord, error) {
	if err := l.Initialize(ctx); err != nil {
		return DeviceRecord{}, err
	}

	dev, err := l.Discover(ctx, pattern, l.cfg.ScanDuration)
	if err != nil {
		return DeviceRecord{}, err
	}
	l.setTarget(dev.Address)

	if !l.IsPaired(ctx, dev) {
		if err := l.EnsurePaired(ctx, dev); err != nil {
			return dev, err
		}
	}

	if err := l.Connect(ctx, dev); err != nil {
		return dev, err
	}

	if !l.BindAsAudioSink(ctx, dev) {
		l.logger.Warn("speaker connected without audio sink", "address", dev.Address)
	}

	rec, _ := l.Record(dev.Address)
	l.logger.Info("target speaker ready", "name", rec.Name, "address", rec.Address)
	return rec, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
