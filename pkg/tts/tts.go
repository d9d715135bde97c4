// Package tts turns response text into playable audio.
//
// Two providers are available: OpenAI speech over the network and the
// offline espeak-ng synthesizer. Both implement Provider and can be combined
// with a Chain so playback still works when the network is down.
//
// Example usage:
//
//	chain, _ := tts.NewChain(
//	    tts.NewOpenAI(tts.WithAPIKey(key)),
//	    tts.NewEspeak(tts.WithLanguage("fr")),
//	)
//	result, _ := chain.Synthesize(ctx, "Bonjour")
//	// result.Audio holds a complete WAV file
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to a complete audio file held in memory.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks that the provider can synthesize.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains an encoded audio file (container included).
	Audio []byte

	// Format describes the audio encoding.
	Format AudioFormat

	// Duration is the estimated playback duration, zero when unknown.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the synthesis time in milliseconds.
	LatencyMs int64

	// Provider names the provider that produced the audio.
	Provider string
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding is an audio container format.
type Encoding string

const (
	EncodingWAV Encoding = "wav"
	EncodingMP3 Encoding = "mp3"
)

// Extension returns the file extension for the encoding, dot included.
func (e Encoding) Extension() string {
	switch e {
	case EncodingMP3:
		return ".mp3"
	default:
		return ".wav"
	}
}

// estimateDuration guesses playback time from the WAV payload size.
func estimateDuration(f AudioFormat, n int) time.Duration {
	if f.Encoding != EncodingWAV || f.SampleRate == 0 || f.Channels == 0 || f.BitDepth == 0 {
		return 0
	}
	bytesPerSec := f.SampleRate * f.Channels * f.BitDepth / 8
	return time.Duration(n) * time.Second / time.Duration(bytesPerSec)
}
