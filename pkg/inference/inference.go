// Package inference talks to the remote speech-to-text and language models.
//
// Transcriber turns a recorded audio file into text and Generator turns a
// prompt into a short spoken-style answer. Client implements both on top of
// the OpenAI API; Mock implements both for tests.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    inference.WithModel("gpt-4o"),
//	)
//
//	tr, _ := client.Transcribe(ctx, &inference.TranscribeRequest{Path: "/tmp/a.mp3"})
//	resp, _ := client.Generate(ctx, &inference.GenerateRequest{Prompt: tr.Text})
package inference

import (
	"context"
)

// AudioFormat is a container format accepted for transcription uploads.
type AudioFormat string

const (
	FormatWAV AudioFormat = "wav"
	FormatMP3 AudioFormat = "mp3"
)

// Transcriber converts recorded speech to text.
type Transcriber interface {
	// Transcribe uploads the file at req.Path and returns its text.
	Transcribe(ctx context.Context, req *TranscribeRequest) (*Transcript, error)

	// Format is the audio format uploads must use.
	Format() AudioFormat
}

// Generator produces a reply to a prompt.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*Completion, error)
}

// TranscribeRequest for speech-to-text.
type TranscribeRequest struct {
	// Path is the local audio file to upload.
	Path string

	// Language is an ISO-639-1 hint (e.g. "fr"). Empty uses the client default.
	Language string

	// Model overrides the default transcription model.
	Model string
}

// Transcript is the recognized text.
type Transcript struct {
	Text      string
	Model     string
	LatencyMs int64
}

// GenerateRequest for a single-turn completion.
type GenerateRequest struct {
	// Prompt is the user's text.
	Prompt string

	// System is the instruction prepended to the conversation.
	// Empty uses DefaultSystemPrompt.
	System string

	// Model overrides the default chat model.
	Model string

	// MaxTokens limits the response length. Zero uses the client default.
	MaxTokens int

	// Temperature controls randomness. Zero uses the client default.
	Temperature float64
}

// Completion is the generated reply.
type Completion struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Text returns the reply content.
func (c *Completion) Text() string {
	return c.Message.Content
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
