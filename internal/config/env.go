package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables read by the commands.
const (
	EnvConfigDir   = "ASSISTANT_CONFIG_DIR"
	EnvOpenAIKey   = "OPENAI_API_KEY"
	EnvSocksProxy  = "ASSISTANT_SOCKS_PROXY"
	EnvListenAddr  = "ASSISTANT_LISTEN"
	EnvTempDir     = "ASSISTANT_TEMP_DIR"
	DefaultListen  = "127.0.0.1:8090"
	DefaultTempDir = "/tmp/rpi-assistant-audio"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// Dir returns the config directory from ASSISTANT_CONFIG_DIR or the default.
func Dir(defaultDir string) string {
	return envOr(EnvConfigDir, defaultDir)
}

// ListenAddr returns the status server address from ASSISTANT_LISTEN or the default.
func ListenAddr(defaultAddr string) string {
	return envOr(EnvListenAddr, defaultAddr)
}

// TempDir returns the audio scratch directory from ASSISTANT_TEMP_DIR or the default.
func TempDir(defaultDir string) string {
	return envOr(EnvTempDir, defaultDir)
}

// SocksProxy returns the SOCKS5 proxy address, or "" when unset.
func SocksProxy() string {
	return os.Getenv(EnvSocksProxy)
}

// ApplyEnv copies environment overrides into the store.
// OPENAI_API_KEY takes precedence over the file key.
func (s *Store) ApplyEnv() {
	if key := os.Getenv(EnvOpenAIKey); key != "" {
		s.Set(DomainOpenAI, "api_key", key)
		s.logger.Debug("openai api key taken from environment", "key", MaskKey(key))
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
