//go:build !cgo || noportaudio

package audioio

import (
	"fmt"
	"log/slog"
)

const portAudioAvailable = false

// newPortAudioSource returns an error when built without PortAudio.
func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, fmt.Errorf("portaudio support not compiled in (requires cgo)")
}

// ListInputDevices returns an error when built without PortAudio.
func ListInputDevices() ([]InputDevice, error) {
	return nil, fmt.Errorf("portaudio support not compiled in (requires cgo)")
}
