//go:build cgo && !noportaudio

package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portAudioAvailable = true

// PortAudioSource captures audio through PortAudio's blocking read API.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	stream   *portaudio.Stream
	buf      []int16
	device   InputDevice
	streamCh chan AudioChunk
	stopCh   chan struct{}
	done     chan struct{}

	// Stats
	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}
	return &PortAudioSource{
		cfg:      cfg,
		logger:   logger.With("component", "audioio.portaudio"),
		streamCh: make(chan AudioChunk, 16),
	}, nil
}

// ListInputDevices returns every device PortAudio can capture from.
func ListInputDevices() ([]InputDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}
	defer portaudio.Terminate()
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	return toInputDevices(devices), nil
}

func toInputDevices(devices []*portaudio.DeviceInfo) []InputDevice {
	out := make([]InputDevice, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		out = append(out, InputDevice{
			Index:    d.Index,
			Name:     d.Name,
			Channels: d.MaxInputChannels,
			Rate:     d.DefaultSampleRate,
		})
	}
	return out
}

// resolveDevice maps the configured preference onto a PortAudio device.
func (s *PortAudioSource) resolveDevice() (*portaudio.DeviceInfo, InputDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, InputDevice{}, fmt.Errorf("list devices: %w", err)
	}

	var def *InputDevice
	if d, err := portaudio.DefaultInputDevice(); err == nil && d != nil {
		def = &InputDevice{Index: d.Index, Name: d.Name, Channels: d.MaxInputChannels, Rate: d.DefaultSampleRate}
	}

	chosen, err := SelectInput(toInputDevices(devices), s.cfg.Device, def)
	if err != nil {
		return nil, InputDevice{}, err
	}
	for _, d := range devices {
		if d.Index == chosen.Index {
			return d, chosen, nil
		}
	}
	return nil, InputDevice{}, ErrNoInputDevice
}

// Start opens the input stream and begins capture.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	info, dev, err := s.resolveDevice()
	if err != nil {
		return err
	}

	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = s.cfg.Channels
	params.SampleRate = float64(s.cfg.SampleRate)
	params.FramesPerBuffer = s.cfg.FramesPerBuffer

	s.buf = make([]int16, s.cfg.FramesPerBuffer*s.cfg.Channels)
	stream, err := portaudio.OpenStream(params, s.buf)
	if err != nil {
		return fmt.Errorf("open input stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start input stream: %w", err)
	}

	s.stream = stream
	s.device = dev
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.streamCh = make(chan AudioChunk, 16)

	go s.captureLoop(ctx, stream, s.stopCh, s.streamCh, s.done)

	s.logger.Info("audio capture started",
		"device", dev.Name,
		"sample_rate", s.cfg.SampleRate,
		"frames_per_buffer", s.cfg.FramesPerBuffer,
	)
	return nil
}

func (s *PortAudioSource) captureLoop(ctx context.Context, stream *portaudio.Stream, stop <-chan struct{}, out chan<- AudioChunk, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.overruns.Add(1)
			} else {
				s.logger.Warn("audio read failed", "error", err)
				return
			}
		}

		samples := make([]int16, len(s.buf))
		copy(samples, s.buf)
		chunk := AudioChunk{Samples: samples, SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}

		select {
		case out <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(samples)))
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts capture and closes the stream.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	<-done
	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("audio capture stopped", "chunks", s.chunksRead.Load(), "overruns", s.overruns.Load())
	return errors.Join(errs...)
}

// Read reads the next audio chunk.
func (s *PortAudioSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (s *PortAudioSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *PortAudioSource) Config() Config {
	return s.cfg
}

// Name returns "portaudio".
func (s *PortAudioSource) Name() string {
	return string(BackendPortAudio)
}

// Device returns the device chosen by the last Start.
func (s *PortAudioSource) Device() InputDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Close stops capture and terminates PortAudio.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Stop()
	return errors.Join(err, portaudio.Terminate())
}

// Stats returns source statistics.
func (s *PortAudioSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     s.Name(),
	}
}

// Ensure PortAudioSource implements SourceWithStats.
var _ SourceWithStats = (*PortAudioSource)(nil)
