package assistant

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-assistant/internal/config"
	"github.com/teslashibe/go-assistant/pkg/audioio"
)

// Config holds process-level settings. Everything the appliance owner edits
// lives in the config Store; this struct is set from flags in
// cmd/assistant/main.go.
type Config struct {
	// ConfigDir holds the config-*.txt files.
	ConfigDir string

	// ListenAddr is the status server address. Empty disables the server.
	ListenAddr string

	// TempDir receives recordings and synthesized speech.
	TempDir string

	// SocksProxy routes OpenAI traffic through a SOCKS5 proxy when set.
	SocksProxy string

	// Audio capture.
	AudioBackend audioio.Backend
	AudioDevice  string

	// NoGPIO disables the hardware button. Sessions can still be started
	// through the API.
	NoGPIO bool

	// SkipSetup skips speaker setup and the ready announcement at boot.
	SkipSetup bool

	// Watch reloads the config files when they change.
	Watch bool

	// SupervisorInterval overrides the probe interval. Zero keeps the default.
	SupervisorInterval time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the configuration used on the appliance.
func DefaultConfig() Config {
	return Config{
		ConfigDir:    config.DefaultDir,
		ListenAddr:   config.DefaultListen,
		TempDir:      config.DefaultTempDir,
		AudioBackend: audioio.BackendAuto,
		Watch:        true,
	}
}

// LoadEnvConfig applies environment overrides.
// Call this after flag parsing.
func (c *Config) LoadEnvConfig() {
	c.ConfigDir = config.Dir(c.ConfigDir)
	c.ListenAddr = config.ListenAddr(c.ListenAddr)
	c.TempDir = config.TempDir(c.TempDir)
	if p := config.SocksProxy(); p != "" {
		c.SocksProxy = p
	}
}

// Validate checks the process configuration. Settings from the config
// files never fail validation; bad values fall back to defaults or put the
// assistant in disabled mode.
func (c *Config) Validate() error {
	if c.ConfigDir == "" {
		return &ConfigError{Field: "ConfigDir", Message: "config directory is required"}
	}
	if c.TempDir == "" {
		return &ConfigError{Field: "TempDir", Message: "temp directory is required"}
	}
	switch c.AudioBackend {
	case "", audioio.BackendAuto, audioio.BackendPortAudio, audioio.BackendMock:
	default:
		return &ConfigError{Field: "AudioBackend", Message: "unknown audio backend " + string(c.AudioBackend)}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// disabledReason returns why the assistant cannot take commands, or "" when
// it can.
func disabledReason(s config.Settings) string {
	if !s.Assistant.Enabled {
		return "assistant disabled in configuration"
	}
	if err := config.ValidateAPIKey(s.OpenAI.APIKey); err != nil {
		return err.Error()
	}
	return ""
}
