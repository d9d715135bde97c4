package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-assistant/internal/log"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base := []Option{
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithRetry(0),
		WithLogger(log.Discard()),
	}
	client, err := NewClient(append(base, opts...)...)
	require.NoError(t, err)
	return client
}

func writeAudio(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestClientTranscribe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "fr", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "question.mp3", header.Filename)
		assert.Equal(t, "ID3fake", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" Quelle heure est-il ? "}`))
	})

	tr, err := client.Transcribe(context.Background(), &TranscribeRequest{
		Path: writeAudio(t, "question.mp3", []byte("ID3fake")),
	})
	require.NoError(t, err)
	assert.Equal(t, "Quelle heure est-il ?", tr.Text)
	assert.Equal(t, "whisper-1", tr.Model)
}

func TestClientTranscribeEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"   "}`))
	})

	_, err := client.Transcribe(context.Background(), &TranscribeRequest{
		Path: writeAudio(t, "silence.mp3", []byte("ID3")),
	})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClientTranscribeMissingFile(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := client.Transcribe(context.Background(), &TranscribeRequest{Path: "/nonexistent/a.mp3"})
	assert.ErrorIs(t, err, ErrNoAudio)

	_, err = client.Transcribe(context.Background(), &TranscribeRequest{Path: writeAudio(t, "empty.mp3", nil)})
	assert.ErrorIs(t, err, ErrNoAudio)
	assert.False(t, called)
}

func TestClientGenerate(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Il est midi."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 5, "total_tokens": 35}
		}`))
	})

	resp, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "quelle heure est-il"})
	require.NoError(t, err)
	assert.Equal(t, "Il est midi.", resp.Text())
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 35, resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 150, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "quelle heure est-il", got.Messages[1].Content)
}

func TestClientGenerateEmpty(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no choices", `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o","choices":[]}`},
		{"blank content", `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"  "},"finish_reason":"stop"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "bonjour"})
			assert.ErrorIs(t, err, ErrEmptyResponse)
		})
	}
}

func TestClientAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	})

	_, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "bonjour"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.True(t, apiErr.IsRateLimited())
	assert.True(t, apiErr.IsRetryable())
	assert.Equal(t, "rate_limit_exceeded", apiErr.Code)
}

func TestClientTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "bonjour"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
