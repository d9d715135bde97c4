package inference

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds every remote call.
const DefaultTimeout = 30 * time.Second

// Config holds provider configuration.
type Config struct {
	// Connection
	BaseURL    string // API base URL, empty for the OpenAI default
	APIKey     string
	HTTPClient *http.Client

	// Models
	Model        string // Chat model
	WhisperModel string // Transcription model
	Language     string // Default transcription language

	// Request defaults
	MaxTokens   int
	Temperature float64

	// Timeout applies to each call independently of the caller's context.
	Timeout    time.Duration
	MaxRetries int

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithHTTPClient sets the HTTP client, e.g. one routed through a proxy.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithModel sets the default chat model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithWhisperModel sets the transcription model.
func WithWhisperModel(model string) Option {
	return func(c *Config) { c.WhisperModel = model }
}

// WithLanguage sets the default transcription language.
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry sets how many times failed requests are retried.
func WithRetry(maxRetries int) Option {
	return func(c *Config) { c.MaxRetries = maxRetries }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for OpenAI.
func DefaultConfig() *Config {
	return &Config{
		Model:        "gpt-4o",
		WhisperModel: "whisper-1",
		Language:     "fr",
		MaxTokens:    150,
		Temperature:  0.7,
		Timeout:      DefaultTimeout,
		MaxRetries:   2,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.Model == "" || c.WhisperModel == "" {
		return ErrNoModel
	}
	return nil
}
