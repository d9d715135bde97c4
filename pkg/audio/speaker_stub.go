//go:build !cgo

package audio

import (
	"context"
	"errors"
)

// LocalPlayer is unavailable without cgo.
type LocalPlayer struct{}

// NewLocalPlayer returns a player that always fails.
func NewLocalPlayer() *LocalPlayer {
	return &LocalPlayer{}
}

// Play implements Player.
func (p *LocalPlayer) Play(ctx context.Context, path string) error {
	s, _, err := decodeFile(path)
	if err != nil {
		return err
	}
	s.Close()
	return errors.New("local playback not compiled in (requires cgo)")
}
