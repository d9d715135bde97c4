package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"github.com/teslashibe/go-assistant/pkg/tts"
)

// PaplayBinary plays files on the default PulseAudio/PipeWire sink.
const PaplayBinary = "paplay"

// Paplay plays files on the default sink, which is the Bluetooth speaker
// once it has been bound.
type Paplay struct {
	cmd tts.Commander
}

// NewPaplay creates a player backed by paplay.
func NewPaplay(c tts.Commander) *Paplay {
	if c == nil {
		c = tts.ExecCommander{}
	}
	return &Paplay{cmd: c}
}

// Play implements Player.
func (p *Paplay) Play(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	_, err := p.cmd.Output(ctx, PaplayBinary, path)
	return err
}

// decodeFile opens a WAV or MP3 file as a beep stream. Closing the
// stream closes the file.
func decodeFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		s, format, err = wav.Decode(f)
	case ".mp3":
		s, format, err = mp3.Decode(f)
	default:
		err = fmt.Errorf("unsupported audio file %q", ext)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, err
	}
	return s, format, nil
}

// Verify Paplay implements Player at compile time.
var _ Player = (*Paplay)(nil)
