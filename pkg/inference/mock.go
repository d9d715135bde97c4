package inference

import (
	"context"
	"sync"
	"time"
)

// Mock implements Transcriber and Generator for testing.
type Mock struct {
	// TranscribeFunc is called when Transcribe is invoked.
	TranscribeFunc func(ctx context.Context, req *TranscribeRequest) (*Transcript, error)

	// GenerateFunc is called when Generate is invoked.
	GenerateFunc func(ctx context.Context, req *GenerateRequest) (*Completion, error)

	// UploadFormat is returned by Format. Defaults to MP3.
	UploadFormat AudioFormat

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Input  string
	Time   time.Time
}

// NewMock creates a mock that hears "quelle heure est-il" and answers with
// a fixed sentence.
func NewMock() *Mock {
	return &Mock{
		TranscribeFunc: func(ctx context.Context, req *TranscribeRequest) (*Transcript, error) {
			return &Transcript{Text: "quelle heure est-il", Model: "whisper-1"}, nil
		},
		GenerateFunc: func(ctx context.Context, req *GenerateRequest) (*Completion, error) {
			return &Completion{
				Message:      NewAssistantMessage("Il est midi."),
				FinishReason: "stop",
				Usage:        Usage{PromptTokens: 30, CompletionTokens: 5, TotalTokens: 35},
				Model:        "gpt-4o",
			}, nil
		},
		UploadFormat: FormatMP3,
	}
}

// Transcribe calls TranscribeFunc and records the call.
func (m *Mock) Transcribe(ctx context.Context, req *TranscribeRequest) (*Transcript, error) {
	m.record("Transcribe", req.Path)
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, req)
	}
	return nil, WrapError("mock", ErrEmptyResponse)
}

// Generate calls GenerateFunc and records the call.
func (m *Mock) Generate(ctx context.Context, req *GenerateRequest) (*Completion, error) {
	m.record("Generate", req.Prompt)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return nil, WrapError("mock", ErrEmptyResponse)
}

// Format implements Transcriber.
func (m *Mock) Format() AudioFormat {
	if m.UploadFormat == "" {
		return FormatMP3
	}
	return m.UploadFormat
}

func (m *Mock) record(method, input string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Input: input, Time: time.Now()})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock whose calls all fail with err.
func WithError(err error) *Mock {
	return &Mock{
		TranscribeFunc: func(ctx context.Context, req *TranscribeRequest) (*Transcript, error) {
			return nil, err
		},
		GenerateFunc: func(ctx context.Context, req *GenerateRequest) (*Completion, error) {
			return nil, err
		},
	}
}

// Verify Mock implements the interfaces at compile time.
var (
	_ Transcriber = (*Mock)(nil)
	_ Generator   = (*Mock)(nil)
)
