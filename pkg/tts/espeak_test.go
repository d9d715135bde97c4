package tts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-assistant/internal/log"
	"github.com/teslashibe/go-assistant/pkg/tts"
)

type fakeCommander struct {
	out   []byte
	err   error
	name  string
	args  []string
	calls int
}

func (f *fakeCommander) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls++
	f.name = name
	f.args = args
	return f.out, f.err
}

func TestEspeakSynthesize(t *testing.T) {
	wav := tts.SilentWAV(tts.AudioFormat{SampleRate: 22050, Channels: 1, BitDepth: 16}, 44100)
	cmd := &fakeCommander{out: wav}
	e := tts.NewEspeak(tts.WithLogger(log.Discard())).WithCommander(cmd)

	result, err := e.Synthesize(context.Background(), "Je n'ai pas compris")
	require.NoError(t, err)
	assert.Equal(t, "espeak-ng", cmd.name)
	assert.Equal(t, []string{"-v", "fr", "-s", "150", "-a", "50", "--stdout", "Je n'ai pas compris"}, cmd.args)
	assert.Equal(t, "espeak", result.Provider)
	assert.Equal(t, len(wav), len(result.Audio))
}

func TestEspeakSpeak(t *testing.T) {
	cmd := &fakeCommander{}
	e := tts.NewEspeak(tts.WithLogger(log.Discard())).WithCommander(cmd)

	require.NoError(t, e.Speak(context.Background(), "J'écoute"))
	assert.NotContains(t, cmd.args, "--stdout")
	assert.Equal(t, "J'écoute", cmd.args[len(cmd.args)-1])

	assert.ErrorIs(t, e.Speak(context.Background(), ""), tts.ErrEmptyText)
	assert.Equal(t, 1, cmd.calls)
}

func TestEspeakFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("command error", func(t *testing.T) {
		e := tts.NewEspeak(tts.WithLogger(log.Discard())).WithCommander(&fakeCommander{err: errors.New("executable file not found")})
		_, err := e.Synthesize(ctx, "Bonjour")
		var pe *tts.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "espeak", pe.Provider)
		assert.Error(t, e.Health(ctx))
	})

	t.Run("no output", func(t *testing.T) {
		e := tts.NewEspeak(tts.WithLogger(log.Discard())).WithCommander(&fakeCommander{})
		_, err := e.Synthesize(ctx, "Bonjour")
		assert.ErrorIs(t, err, tts.ErrEmptyAudio)
	})
}
