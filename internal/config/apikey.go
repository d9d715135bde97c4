package config

import (
	"errors"
	"strings"
)

// PlaceholderAPIKey is the value shipped in the example config file.
const PlaceholderAPIKey = "sk-votre-clé-openai-ici"

var (
	// ErrMissingAPIKey is returned when no key is configured.
	ErrMissingAPIKey = errors.New("config: openai api key not configured")

	// ErrInvalidAPIKey is returned when the key does not look like an OpenAI key.
	ErrInvalidAPIKey = errors.New("config: openai api key must start with sk-")
)

// ValidateAPIKey checks that key is set, is not the shipped placeholder and
// carries the sk- prefix.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" || key == PlaceholderAPIKey {
		return ErrMissingAPIKey
	}
	if !strings.HasPrefix(key, "sk-") {
		return ErrInvalidAPIKey
	}
	return nil
}

// MaskKey keeps the first 8 and last 4 characters of a key.
func MaskKey(key string) string {
	if len(key) <= 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
