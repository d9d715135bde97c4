//go:build cgo

package audio

import (
	"context"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// speakerRate is the rate the local output device is opened at. Files at
// other rates are resampled.
const speakerRate = beep.SampleRate(44100)

// LocalPlayer plays files on the local audio device through beep's speaker.
type LocalPlayer struct {
	once    sync.Once
	initErr error
	mu      sync.Mutex
}

// NewLocalPlayer creates a local player. The device is opened on first use.
func NewLocalPlayer() *LocalPlayer {
	return &LocalPlayer{}
}

func (p *LocalPlayer) init() error {
	p.once.Do(func() {
		p.initErr = speaker.Init(speakerRate, speakerRate.N(time.Second/10))
	})
	return p.initErr
}

// Play implements Player.
func (p *LocalPlayer) Play(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	streamer, format, err := decodeFile(path)
	if err != nil {
		return err
	}
	defer streamer.Close()

	if err := p.init(); err != nil {
		return err
	}

	var s beep.Streamer = streamer
	if format.SampleRate != speakerRate {
		s = beep.Resample(4, format.SampleRate, speakerRate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Verify LocalPlayer implements Player at compile time.
var _ Player = (*LocalPlayer)(nil)
