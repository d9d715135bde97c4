package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-assistant/pkg/audio"
	"github.com/teslashibe/go-assistant/pkg/inference"
)

type fakeGate struct {
	connected bool
	calls     int
}

func (g *fakeGate) EnsureConnection(ctx context.Context) bool {
	g.calls++
	return g.connected
}

type utterance struct {
	Text  string
	Route audio.Route
}

// fakeAudio writes real files into dir so cleanup can be verified.
type fakeAudio struct {
	dir string

	recordErr     error
	recordPartial bool
	convertErr    error
	block         chan struct{}
	started       chan struct{}

	mu      sync.Mutex
	spoken  []utterance
	records int
}

func newFakeAudio(t *testing.T) *fakeAudio {
	return &fakeAudio{dir: t.TempDir()}
}

func (a *fakeAudio) Record(ctx context.Context, d time.Duration) (string, error) {
	a.mu.Lock()
	a.records++
	n := a.records
	a.mu.Unlock()

	if a.started != nil {
		close(a.started)
	}
	if a.block != nil {
		<-a.block
	}

	path := filepath.Join(a.dir, "recording_"+strings.Repeat("x", n)+".wav")
	if a.recordErr != nil {
		if a.recordPartial {
			_ = os.WriteFile(path, []byte("RIFF"), 0o644)
			return path, a.recordErr
		}
		return "", a.recordErr
	}
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (a *fakeAudio) Convert(ctx context.Context, path string, format audio.Format) (string, error) {
	if strings.HasSuffix(path, "."+string(format)) {
		return path, nil
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + "." + string(format)
	if err := os.WriteFile(out, []byte("ID3"), 0o644); err != nil {
		return "", err
	}
	if a.convertErr != nil {
		return out, a.convertErr
	}
	return out, nil
}

func (a *fakeAudio) SynthesizeAndPlay(ctx context.Context, text string, route audio.Route) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spoken = append(a.spoken, utterance{Text: text, Route: route})
	return true
}

func (a *fakeAudio) Spoken() []utterance {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]utterance(nil), a.spoken...)
}

func (a *fakeAudio) Files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(a.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type harness struct {
	runner *Runner
	gate   *fakeGate
	audio  *fakeAudio
	model  *inference.Mock
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		gate:  &fakeGate{connected: true},
		audio: newFakeAudio(t),
		model: inference.NewMock(),
	}
	r, err := NewRunner(cfg, h.gate, h.audio, h.model, h.model)
	require.NoError(t, err)
	h.runner = r
	return h
}

func TestRun_HappyPath(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	var gotReq *inference.GenerateRequest
	h.model.GenerateFunc = func(ctx context.Context, req *inference.GenerateRequest) (*inference.Completion, error) {
		gotReq = req
		return &inference.Completion{Message: inference.NewAssistantMessage("Il est midi.")}, nil
	}

	s := h.runner.Run(context.Background(), Request{Source: "gpio"})

	require.NotNil(t, s)
	assert.Equal(t, OutcomeSuccess, s.Outcome)
	assert.Equal(t, "quelle heure est-il", s.Transcript)
	assert.Equal(t, "Il est midi.", s.Response)
	assert.Empty(t, s.Error)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.FinishedAt.Before(s.StartedAt))
	assert.True(t, s.Done())

	assert.Equal(t, []utterance{
		{MsgListening, audio.RouteBluetooth},
		{MsgProcessing, audio.RouteBluetooth},
		{"Il est midi.", audio.RouteBluetooth},
	}, h.audio.Spoken())

	// The transcriber received the converted upload
	tr := h.model.Calls()[0]
	assert.Equal(t, "Transcribe", tr.Method)
	assert.Equal(t, ".mp3", filepath.Ext(tr.Input))

	require.NotNil(t, gotReq)
	assert.Equal(t, "quelle heure est-il", gotReq.Prompt)
	assert.Equal(t, inference.DefaultSystemPrompt, gotReq.System)

	assert.Len(t, s.Artifacts, 2)
	assert.Empty(t, h.audio.Files(t), "artifacts must be removed")
}

func TestRun_WAVUploadSkipsConversion(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.model.UploadFormat = inference.FormatWAV

	s := h.runner.Run(context.Background(), Request{})

	assert.Equal(t, OutcomeSuccess, s.Outcome)
	assert.Equal(t, []string{s.AudioPath}, s.Artifacts)
	assert.Equal(t, s.AudioPath, h.model.Calls()[0].Input)
	assert.Empty(t, h.audio.Files(t))
}

func TestRun_NoDevice(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.gate.connected = false

	s := h.runner.Run(context.Background(), Request{})

	assert.Equal(t, OutcomeNoDevice, s.Outcome)
	assert.Equal(t, []utterance{{MsgNoDevice, audio.RouteLocal}}, h.audio.Spoken())
	assert.Zero(t, h.audio.records, "no recording without a speaker")
	assert.Zero(t, h.model.CallCount("Transcribe"))
	assert.Empty(t, s.Artifacts)
}

func TestRun_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		setup   func(h *harness)
		outcome Outcome
		apology string
	}{
		{
			name:    "record failed",
			setup:   func(h *harness) { h.audio.recordErr = audio.ErrRecordFailed },
			outcome: OutcomeRecordFailed,
			apology: MsgRecordFailed,
		},
		{
			name: "record failed after creating file",
			setup: func(h *harness) {
				h.audio.recordErr = audio.ErrRecordFailed
				h.audio.recordPartial = true
			},
			outcome: OutcomeRecordFailed,
			apology: MsgRecordFailed,
		},
		{
			name:    "conversion failed",
			setup:   func(h *harness) { h.audio.convertErr = audio.ErrConvertFailed },
			outcome: OutcomeTranscribeFailed,
			apology: MsgNotUnderstood,
		},
		{
			name: "transcription error",
			setup: func(h *harness) {
				h.model.TranscribeFunc = func(ctx context.Context, req *inference.TranscribeRequest) (*inference.Transcript, error) {
					return nil, boom
				}
			},
			outcome: OutcomeTranscribeFailed,
			apology: MsgNotUnderstood,
		},
		{
			name: "empty transcript",
			setup: func(h *harness) {
				h.model.TranscribeFunc = func(ctx context.Context, req *inference.TranscribeRequest) (*inference.Transcript, error) {
					return &inference.Transcript{Text: "   "}, nil
				}
			},
			outcome: OutcomeTranscribeFailed,
			apology: MsgNotUnderstood,
		},
		{
			name: "generation error",
			setup: func(h *harness) {
				h.model.GenerateFunc = func(ctx context.Context, req *inference.GenerateRequest) (*inference.Completion, error) {
					return nil, boom
				}
			},
			outcome: OutcomeGenerateFailed,
			apology: MsgConnection,
		},
		{
			name: "empty generation",
			setup: func(h *harness) {
				h.model.GenerateFunc = func(ctx context.Context, req *inference.GenerateRequest) (*inference.Completion, error) {
					return &inference.Completion{}, nil
				}
			},
			outcome: OutcomeGenerateFailed,
			apology: MsgConnection,
		},
		{
			name: "panic",
			setup: func(h *harness) {
				h.model.GenerateFunc = func(ctx context.Context, req *inference.GenerateRequest) (*inference.Completion, error) {
					panic("nil map")
				}
			},
			outcome: OutcomeError,
			apology: MsgError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			tt.setup(h)

			s := h.runner.Run(context.Background(), Request{})

			assert.Equal(t, tt.outcome, s.Outcome)
			assert.NotEmpty(t, s.Error)
			spoken := h.audio.Spoken()
			require.NotEmpty(t, spoken)
			assert.Equal(t, utterance{tt.apology, audio.RouteBluetooth}, spoken[len(spoken)-1])
			assert.Empty(t, s.Response)
			assert.Empty(t, h.audio.Files(t), "artifacts must be removed on every exit path")
			assert.False(t, h.runner.Busy())
		})
	}
}

func TestRun_GenerationParameters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "gpt-4o-mini"
	cfg.MaxTokens = 80
	cfg.Temperature = 0.2
	cfg.SystemPrompt = "Réponds en une phrase."
	h := newHarness(t, cfg)

	var got *inference.GenerateRequest
	h.model.GenerateFunc = func(ctx context.Context, req *inference.GenerateRequest) (*inference.Completion, error) {
		got = req
		return &inference.Completion{Message: inference.NewAssistantMessage("D'accord.")}, nil
	}

	h.runner.Run(context.Background(), Request{})

	require.NotNil(t, got)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 80, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	assert.Equal(t, "Réponds en une phrase.", got.System)
}

func TestTryRun_Busy(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.audio.block = make(chan struct{})
	h.audio.started = make(chan struct{})

	done := make(chan *Session)
	go func() {
		s, err := h.runner.TryRun(context.Background(), Request{Source: "gpio"})
		assert.NoError(t, err)
		done <- s
	}()

	<-h.audio.started
	assert.True(t, h.runner.Busy())

	s, err := h.runner.TryRun(context.Background(), Request{Source: "api"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Nil(t, s)

	close(h.audio.block)
	first := <-done
	assert.Equal(t, OutcomeSuccess, first.Outcome)
	assert.False(t, h.runner.Busy())
	assert.Equal(t, 1, h.audio.records)
}

func TestRunner_Observers(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	hist := NewHistory(2)
	h.runner.Observe(hist)

	rec := &recordingObserver{}
	h.runner.Observe(rec)

	for i := 0; i < 3; i++ {
		h.runner.Run(context.Background(), Request{Source: "cli"})
	}

	list := hist.List()
	require.Len(t, list, 2)
	assert.True(t, !list[0].StartedAt.Before(list[1].StartedAt), "newest first")
	_, active := hist.Current()
	assert.False(t, active)

	last, ok := hist.Last()
	require.True(t, ok)
	assert.Equal(t, list[0].ID, last.ID)

	assert.Equal(t, 3, rec.starts)
	assert.Equal(t, 3, rec.finishes)
	assert.Equal(t, Outcome(""), rec.firstStart.Outcome)
}

type recordingObserver struct {
	starts, finishes int
	firstStart       Session
}

func (o *recordingObserver) OnStart(s Session) {
	if o.starts == 0 {
		o.firstStart = s
	}
	o.starts++
}

func (o *recordingObserver) OnFinish(s Session) { o.finishes++ }

func TestNewRunner_Validation(t *testing.T) {
	m := inference.NewMock()
	_, err := NewRunner(DefaultConfig(), nil, &fakeAudio{}, m, m)
	assert.Error(t, err)

	r, err := NewRunner(Config{}, &fakeGate{}, &fakeAudio{}, m, m)
	require.NoError(t, err)
	assert.Equal(t, DefaultRecordDuration, r.cfg.RecordDuration)
	assert.Equal(t, "fr", r.cfg.Language)
}

func TestSession_Duration(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Session{StartedAt: start}
	assert.Zero(t, s.Duration())
	s.FinishedAt = start.Add(4 * time.Second)
	assert.Equal(t, 4*time.Second, s.Duration())
}
