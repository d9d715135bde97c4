// Package config loads the appliance's per-domain key=value files.
//
// Each domain lives in its own file under the config directory
// (config-bluetooth.txt, config-gpt.txt, config-openai.txt, config-spotify.txt).
// A missing file yields the domain defaults, a missing key yields the key
// default and a malformed number is logged and replaced by its default.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

// Domain names a configuration file.
type Domain string

// Known domains.
const (
	DomainSpotify   Domain = "spotify"
	DomainBluetooth Domain = "bluetooth"
	DomainGPT       Domain = "gpt"
	DomainOpenAI    Domain = "openai"
)

// Domains lists every domain in load order.
var Domains = []Domain{DomainSpotify, DomainBluetooth, DomainGPT, DomainOpenAI}

// DefaultDir is where the appliance image places its config files.
const DefaultDir = "/boot"

var defaults = map[Domain]map[string]string{
	DomainSpotify: {
		"device_name":    "Mon Assistant Pi",
		"bitrate":        "320",
		"initial_volume": "50",
	},
	DomainBluetooth: {
		"speaker_name":       "Mon Enceinte Bluetooth",
		"auto_connect":       "true",
		"connection_timeout": "30",
	},
	DomainGPT: {
		"enabled":            "true",
		"gpio_pin":           "17",
		"recording_duration": "10",
		"sample_rate":        "44100",
	},
	DomainOpenAI: {
		"api_key":       "",
		"model":         "gpt-4o",
		"whisper_model": "whisper-1",
		"max_tokens":    "150",
		"temperature":   "0.7",
	},
}

// Default returns the built-in default for a key, or "" if none exists.
func Default(d Domain, key string) string {
	return defaults[d][key]
}

// FileName returns the file name used for a domain.
func FileName(d Domain) string {
	return "config-" + string(d) + ".txt"
}

// Store holds the merged (defaults + file) values of every domain.
// It is safe for concurrent use.
type Store struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	values map[Domain]map[string]string
}

// NewStore creates a store rooted at dir. Call Load before reading values.
func NewStore(dir string, logger *slog.Logger) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		dir:    dir,
		logger: logger.With("component", "config"),
		values: make(map[Domain]map[string]string),
	}
	for _, d := range Domains {
		s.values[d] = copyMap(defaults[d])
	}
	return s
}

// Dir returns the config directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute path of a domain file.
func (s *Store) Path(d Domain) string {
	return filepath.Join(s.dir, FileName(d))
}

// Load reads every domain file. Missing files are not an error; unreadable
// or unparsable files are logged, keep their defaults and are reported in
// the returned error.
func (s *Store) Load() error {
	var errs []error
	for _, d := range Domains {
		if err := s.ReloadDomain(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reload re-reads every domain file.
func (s *Store) Reload() error {
	return s.Load()
}

// ReloadDomain re-reads a single domain file.
func (s *Store) ReloadDomain(d Domain) error {
	vals, err := s.readFile(d)
	s.mu.Lock()
	s.values[d] = vals
	s.mu.Unlock()
	return err
}

func (s *Store) readFile(d Domain) (map[string]string, error) {
	vals := copyMap(defaults[d])
	path := s.Path(d)

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("config file missing, using defaults", "domain", d, "path", path)
		return vals, nil
	}

	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
		KeyValueDelimiters:      "=",
	}, path)
	if err != nil {
		s.logger.Error("config file unreadable, using defaults", "domain", d, "path", path, "error", err)
		return vals, fmt.Errorf("config %s: %w", d, err)
	}

	for _, k := range f.Section(ini.DefaultSection).Keys() {
		vals[strings.TrimSpace(k.Name())] = strings.TrimSpace(k.Value())
	}
	s.logger.Debug("config loaded", "domain", d, "keys", len(vals))
	return vals, nil
}

// Set overrides a value in memory. Used for environment overrides.
func (s *Store) Set(d Domain, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[d] == nil {
		s.values[d] = make(map[string]string)
	}
	s.values[d][key] = value
}

// Values returns a copy of a domain's values.
func (s *Store) Values(d Domain) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMap(s.values[d])
}

// String returns a value or its default. An empty value counts as missing
// when the key has a non-empty default.
func (s *Store) String(d Domain, key string) string {
	s.mu.RLock()
	v, ok := s.values[d][key]
	s.mu.RUnlock()
	if !ok {
		return Default(d, key)
	}
	if v == "" {
		if def := Default(d, key); def != "" {
			s.logger.Warn("empty value, using default", "domain", d, "key", key, "default", def)
			return def
		}
	}
	return v
}

// Int returns an integer value. A malformed value logs a warning and
// falls back to the default.
func (s *Store) Int(d Domain, key string) int {
	raw := s.String(d, key)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err == nil {
		return n
	}
	def, _ := strconv.Atoi(Default(d, key))
	s.logger.Warn("invalid integer, using default",
		"domain", d,
		"key", key,
		"value", raw,
		"default", def,
	)
	return def
}

// Float returns a float value with the same fallback rules as Int.
func (s *Store) Float(d Domain, key string) float64 {
	raw := s.String(d, key)
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err == nil {
		return f
	}
	def, _ := strconv.ParseFloat(Default(d, key), 64)
	s.logger.Warn("invalid number, using default",
		"domain", d,
		"key", key,
		"value", raw,
		"default", def,
	)
	return def
}

// Bool returns true for "true", "1", "yes" and "on" (case-insensitive).
func (s *Store) Bool(d Domain, key string) bool {
	return parseBool(s.String(d, key))
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// LogCurrent writes every value at info level, masking API keys.
func (s *Store) LogCurrent() {
	for _, d := range Domains {
		for k, v := range s.Values(d) {
			if strings.Contains(strings.ToLower(k), "api_key") && v != "" {
				v = MaskKey(v)
			}
			s.logger.Info("config value", "domain", d, "key", k, "value", v)
		}
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
