package config

import "time"

// BluetoothSettings configures the target speaker.
type BluetoothSettings struct {
	SpeakerName       string
	AutoConnect       bool
	ConnectionTimeout time.Duration
}

// AssistantSettings configures the trigger and capture.
type AssistantSettings struct {
	Enabled           bool
	GPIOPin           int
	RecordingDuration time.Duration
	SampleRate        int
}

// OpenAISettings configures the remote clients.
type OpenAISettings struct {
	APIKey       string
	Model        string
	WhisperModel string
	MaxTokens    int
	Temperature  float64
}

// SpotifySettings is loaded for status reporting only.
type SpotifySettings struct {
	DeviceName    string
	Bitrate       int
	InitialVolume int
}

// Settings is a typed snapshot of every domain.
type Settings struct {
	Bluetooth BluetoothSettings
	Assistant AssistantSettings
	OpenAI    OpenAISettings
	Spotify   SpotifySettings
}

// Settings builds a typed snapshot from the current values.
func (s *Store) Settings() Settings {
	return Settings{
		Bluetooth: BluetoothSettings{
			SpeakerName:       s.String(DomainBluetooth, "speaker_name"),
			AutoConnect:       s.Bool(DomainBluetooth, "auto_connect"),
			ConnectionTimeout: time.Duration(s.Int(DomainBluetooth, "connection_timeout")) * time.Second,
		},
		Assistant: AssistantSettings{
			Enabled:           s.Bool(DomainGPT, "enabled"),
			GPIOPin:           s.Int(DomainGPT, "gpio_pin"),
			RecordingDuration: time.Duration(s.Int(DomainGPT, "recording_duration")) * time.Second,
			SampleRate:        s.Int(DomainGPT, "sample_rate"),
		},
		OpenAI: OpenAISettings{
			APIKey:       s.String(DomainOpenAI, "api_key"),
			Model:        s.String(DomainOpenAI, "model"),
			WhisperModel: s.String(DomainOpenAI, "whisper_model"),
			MaxTokens:    s.Int(DomainOpenAI, "max_tokens"),
			Temperature:  s.Float(DomainOpenAI, "temperature"),
		},
		Spotify: SpotifySettings{
			DeviceName:    s.String(DomainSpotify, "device_name"),
			Bitrate:       s.Int(DomainSpotify, "bitrate"),
			InitialVolume: s.Int(DomainSpotify, "initial_volume"),
		},
	}
}
