package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-assistant/pkg/health"
	"github.com/teslashibe/go-assistant/pkg/session"
	"github.com/teslashibe/go-assistant/pkg/supervisor"
)

func TestSessionObserver(t *testing.T) {
	m := New()
	start := time.Now()

	m.OnStart(session.Session{StartedAt: start})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	m.OnFinish(session.Session{StartedAt: start, FinishedAt: start.Add(6 * time.Second), Outcome: session.OutcomeSuccess})
	m.OnFinish(session.Session{StartedAt: start, FinishedAt: start.Add(time.Second), Outcome: session.OutcomeNoDevice})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("no_device")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SessionDuration))
}

func TestGauges(t *testing.T) {
	m := New()

	m.ObserveSpeaker(supervisor.Health{Connected: true})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpeakerConnected))
	m.ObserveSpeaker(supervisor.Health{Connected: false})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SpeakerConnected))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SpeakerChecks))

	m.ObserveHealth(health.Report{DiskFree: 1 << 30, Online: true, Cleaned: 3})
	assert.Equal(t, float64(1<<30), testutil.ToFloat64(m.DiskFree))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Online))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TempFilesCleaned))

	m.Press(true)
	m.Press(false)
	m.Press(false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Presses.WithLabelValues("false")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Press(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `assistant_trigger_presses_total{accepted="true"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
