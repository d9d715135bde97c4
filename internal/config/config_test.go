package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-assistant/internal/log"
)

func writeFile(t *testing.T, dir string, d Domain, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(d)), []byte(body), 0o644))
}

func TestStoreDefaultsWhenFilesMissing(t *testing.T) {
	s := NewStore(t.TempDir(), log.Discard())
	require.NoError(t, s.Load())

	cfg := s.Settings()
	assert.Equal(t, "Mon Enceinte Bluetooth", cfg.Bluetooth.SpeakerName)
	assert.True(t, cfg.Bluetooth.AutoConnect)
	assert.Equal(t, 30*time.Second, cfg.Bluetooth.ConnectionTimeout)
	assert.True(t, cfg.Assistant.Enabled)
	assert.Equal(t, 17, cfg.Assistant.GPIOPin)
	assert.Equal(t, 10*time.Second, cfg.Assistant.RecordingDuration)
	assert.Equal(t, 44100, cfg.Assistant.SampleRate)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, "whisper-1", cfg.OpenAI.WhisperModel)
	assert.Equal(t, 150, cfg.OpenAI.MaxTokens)
	assert.InDelta(t, 0.7, cfg.OpenAI.Temperature, 1e-9)
	assert.Equal(t, "Mon Assistant Pi", cfg.Spotify.DeviceName)
}

func TestStoreReadsFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DomainBluetooth, "# speaker\nspeaker_name = JBL Flip 5\nauto_connect=no\n")
	writeFile(t, dir, DomainGPT, "gpio_pin=27\nrecording_duration=6\nnot a key value line\n")
	writeFile(t, dir, DomainOpenAI, "api_key=sk-test-1234567890abcd\nmodel=gpt-4o-mini\ntemperature=0.2\n")

	s := NewStore(dir, log.Discard())
	require.NoError(t, s.Load())
	cfg := s.Settings()

	assert.Equal(t, "JBL Flip 5", cfg.Bluetooth.SpeakerName)
	assert.False(t, cfg.Bluetooth.AutoConnect)
	assert.Equal(t, 27, cfg.Assistant.GPIOPin)
	assert.Equal(t, 6*time.Second, cfg.Assistant.RecordingDuration)
	assert.Equal(t, "sk-test-1234567890abcd", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.InDelta(t, 0.2, cfg.OpenAI.Temperature, 1e-9)
	// untouched keys keep defaults
	assert.Equal(t, 150, cfg.OpenAI.MaxTokens)
}

func TestMalformedMaxTokensFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DomainOpenAI, "max_tokens=beaucoup\ntemperature=chaud\n")

	s := NewStore(dir, log.Discard())
	require.NoError(t, s.Load())

	assert.Equal(t, 150, s.Int(DomainOpenAI, "max_tokens"))
	assert.InDelta(t, 0.7, s.Float(DomainOpenAI, "temperature"), 1e-9)
	assert.Equal(t, 150, s.Settings().OpenAI.MaxTokens)
}

func TestEmptyValueFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DomainOpenAI, "api_key=\nmodel=\nwhisper_model=\n")
	writeFile(t, dir, DomainBluetooth, "speaker_name=\n")

	s := NewStore(dir, log.Discard())
	require.NoError(t, s.Load())

	cfg := s.Settings()
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, "whisper-1", cfg.OpenAI.WhisperModel)
	assert.Equal(t, "Mon Enceinte Bluetooth", cfg.Bluetooth.SpeakerName)
	// no default, stays empty
	assert.Empty(t, cfg.OpenAI.APIKey)
}

func TestBoolParsing(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes", "on"} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"false", "0", "no", "off", "", "maybe"} {
		assert.False(t, parseBool(v), v)
	}
}

func TestApplyEnvOverridesFileKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DomainOpenAI, "api_key=sk-from-file-000000000\n")
	t.Setenv(EnvOpenAIKey, "sk-from-env-111111111")

	s := NewStore(dir, log.Discard())
	require.NoError(t, s.Load())
	s.ApplyEnv()

	assert.Equal(t, "sk-from-env-111111111", s.Settings().OpenAI.APIKey)
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want error
	}{
		{"", ErrMissingAPIKey},
		{"   ", ErrMissingAPIKey},
		{PlaceholderAPIKey, ErrMissingAPIKey},
		{"pk-1234567890", ErrInvalidAPIKey},
		{"sk-proj-abcdef", nil},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.ErrorIs(t, ValidateAPIKey(tt.key), tt.want)
			if tt.want == nil {
				assert.NoError(t, ValidateAPIKey(tt.key))
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "sk-abcde...wxyz", MaskKey("sk-abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "***", MaskKey("sk-short"))
}

func TestWatchReloadsChangedDomain(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DomainGPT, "recording_duration=10\n")

	s := NewStore(dir, log.Discard())
	require.NoError(t, s.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan Settings, 4)
	go func() { _ = s.Watch(ctx, func(cfg Settings) { changed <- cfg }) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, DomainGPT, "recording_duration=4\n")

	select {
	case cfg := <-changed:
		assert.Equal(t, 4*time.Second, cfg.Assistant.RecordingDuration)
	case <-time.After(3 * time.Second):
		t.Fatal("config change not observed")
	}
}
