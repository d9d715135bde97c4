//go:build !cgo || noportaudio

package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-assistant/pkg/session"
)

func TestApp_AutoBackendWithoutPortAudio(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SkipSetup = true }, WithSource(nil))
	require.NoError(t, f.app.Init(context.Background()))
	assert.Nil(t, f.app.source)

	stop := f.run(t)
	defer stop()

	require.True(t, f.app.Trigger("api"))
	list := f.waitSessions(t, 1)
	assert.Equal(t, session.OutcomeRecordFailed, list[0].Outcome)
	assert.Zero(t, f.infer.CallCount("Transcribe"))
}
