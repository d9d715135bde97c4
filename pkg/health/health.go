// Package health runs the periodic housekeeping check: free disk space in
// the audio temp dir (cleaning it when low) and internet reachability.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Defaults for Config.
const (
	DefaultSchedule    = "@every 5m"
	DefaultMinFree     = 100 << 20
	DefaultProbeAddr   = "8.8.8.8:53"
	DefaultDialTimeout = 5 * time.Second
)

// Cleaner removes leftover audio files. *audio.Pipeline satisfies it.
type Cleaner interface {
	CleanupTempFiles() (int, error)
}

// Config holds checker configuration.
type Config struct {
	// Schedule is a cron spec. Default: "@every 5m"
	Schedule string

	// Dir is the directory whose filesystem is checked.
	Dir string

	// MinFree is the free space in bytes below which temp files are removed.
	MinFree uint64

	// ProbeAddr is dialed over TCP to test connectivity.
	ProbeAddr   string
	DialTimeout time.Duration

	Logger *slog.Logger
}

// Report is the result of one check.
type Report struct {
	CheckedAt     time.Time `json:"checked_at"`
	DiskFree      uint64    `json:"disk_free_bytes"`
	LowDisk       bool      `json:"low_disk"`
	Cleaned       int       `json:"cleaned_files"`
	MemoryUsedPct float64   `json:"memory_used_percent"`
	Online        bool      `json:"online"`
	Errors        []string  `json:"errors,omitempty"`
}

// Healthy reports whether the check found nothing wrong.
func (r Report) Healthy() bool {
	return r.Online && !r.LowDisk && len(r.Errors) == 0
}

// Checker performs health checks on a schedule.
type Checker struct {
	cfg     Config
	cleaner Cleaner
	logger  *slog.Logger

	diskUsage   func(ctx context.Context, path string) (*disk.UsageStat, error)
	memoryUsage func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	dial        func(ctx context.Context, network, addr string) (net.Conn, error)

	mu       sync.RWMutex
	last     Report
	onReport func(Report)
}

// New creates a checker. cleaner may be nil.
func New(cfg Config, cleaner Cleaner) *Checker {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.MinFree == 0 {
		cfg.MinFree = DefaultMinFree
	}
	if cfg.ProbeAddr == "" {
		cfg.ProbeAddr = DefaultProbeAddr
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	return &Checker{
		cfg:         cfg,
		cleaner:     cleaner,
		logger:      logger.With("component", "health"),
		diskUsage:   disk.UsageWithContext,
		memoryUsage: mem.VirtualMemoryWithContext,
		dial:        dialer.DialContext,
	}
}

// OnReport registers a callback invoked after every check.
func (c *Checker) OnReport(fn func(Report)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReport = fn
}

// Last returns the most recent report.
func (c *Checker) Last() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Check runs one health check.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{CheckedAt: time.Now()}

	if c.cfg.Dir != "" {
		if err := c.checkDisk(ctx, &r); err != nil {
			r.Errors = append(r.Errors, err.Error())
		}
	}

	if vm, err := c.memoryUsage(ctx); err == nil {
		r.MemoryUsedPct = vm.UsedPercent
	}

	r.Online = c.online(ctx)
	if !r.Online {
		c.logger.Warn("network unreachable", "probe", c.cfg.ProbeAddr)
	}

	c.mu.Lock()
	c.last = r
	fn := c.onReport
	c.mu.Unlock()

	c.logger.Debug("health check",
		"disk_free", r.DiskFree,
		"online", r.Online,
		"memory_used_pct", r.MemoryUsedPct,
	)
	if fn != nil {
		fn(r)
	}
	return r
}

func (c *Checker) checkDisk(ctx context.Context, r *Report) error {
	usage, err := c.diskUsage(ctx, c.cfg.Dir)
	if err != nil {
		return fmt.Errorf("disk usage: %w", err)
	}
	r.DiskFree = usage.Free
	if usage.Free >= c.cfg.MinFree {
		return nil
	}

	r.LowDisk = true
	c.logger.Warn("low disk space", "free_bytes", usage.Free, "min_bytes", c.cfg.MinFree)
	if c.cleaner == nil {
		return nil
	}
	n, err := c.cleaner.CleanupTempFiles()
	r.Cleaned = n
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

func (c *Checker) online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn, err := c.dial(ctx, "tcp", c.cfg.ProbeAddr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Run schedules checks until ctx is cancelled. It runs one check
// immediately.
func (c *Checker) Run(ctx context.Context) error {
	sched := cron.New()
	if _, err := sched.AddFunc(c.cfg.Schedule, func() { c.Check(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", c.cfg.Schedule, err)
	}

	c.Check(ctx)
	sched.Start()
	c.logger.Info("health checks scheduled", "schedule", c.cfg.Schedule)

	<-ctx.Done()
	stopped := sched.Stop()
	<-stopped.Done()
	return nil
}
