package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const providerOpenAI = "openai"

// Client implements Transcriber and Generator against the OpenAI API.
type Client struct {
	config *Config
	api    openai.Client
	logger *slog.Logger
}

// NewClient creates a new inference client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		config: cfg,
		api:    openai.NewClient(reqOpts...),
		logger: cfg.Logger.With("component", "inference.client"),
	}, nil
}

// Format implements Transcriber. Uploads are sent as MP3 to keep them small.
func (c *Client) Format() AudioFormat {
	return FormatMP3
}

// Transcribe implements Transcriber.
func (c *Client) Transcribe(ctx context.Context, req *TranscribeRequest) (*Transcript, error) {
	start := time.Now()

	f, err := os.Open(req.Path)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("%w: %w", ErrNoAudio, err))
	}
	defer f.Close()
	if st, err := f.Stat(); err != nil || st.Size() == 0 {
		return nil, WrapError(providerOpenAI, ErrNoAudio)
	}

	model := req.Model
	if model == "" {
		model = c.config.WhisperModel
	}
	lang := req.Language
	if lang == "" {
		lang = c.config.Language
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(f, filepath.Base(req.Path), contentType(req.Path)),
		Model: openai.AudioModel(model),
	}
	if lang != "" {
		params.Language = openai.String(lang)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, convertError(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyResponse)
	}

	latency := time.Since(start).Milliseconds()
	c.logger.Debug("transcribed audio", "model", model, "chars", len(text), "latency_ms", latency)

	return &Transcript{
		Text:      text,
		Model:     model,
		LatencyMs: latency,
	}, nil
}

// Generate implements Generator.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*Completion, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.config.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.config.Temperature
	}
	system := req.System
	if system == "" {
		system = DefaultSystemPrompt
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(req.Prompt),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, WrapError(providerOpenAI, ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyResponse)
	}

	latency := time.Since(start).Milliseconds()
	c.logger.Debug("generated reply",
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
		"latency_ms", latency,
	)

	return &Completion{
		Message:      NewAssistantMessage(content),
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Model:     resp.Model,
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity and key validity.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	if _, err := c.api.Models.Get(ctx, c.config.Model); err != nil {
		return convertError(err)
	}
	return nil
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return *c.config
}

// convertError maps openai-go errors to APIError.
func convertError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Provider:   providerOpenAI,
		}
	}
	return WrapError(providerOpenAI, err)
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Verify Client implements the interfaces at compile time.
var (
	_ Transcriber = (*Client)(nil)
	_ Generator   = (*Client)(nil)
)
