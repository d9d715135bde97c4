//go:build !cgo || noportaudio

package audioio

import (
	"errors"
	"testing"
)

func TestNewSource_AutoWithoutPortAudio(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendAuto

	src, err := NewSource(cfg, nil)
	if !errors.Is(err, ErrNoInputDevice) {
		t.Fatalf("NewSource() error = %v, want ErrNoInputDevice", err)
	}
	if src != nil {
		t.Errorf("NewSource() = %T, want nil", src)
	}
}
