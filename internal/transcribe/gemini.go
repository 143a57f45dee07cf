// Package transcribe turns voice-note audio into text so the message body
// is searchable. Transcription is best-effort: a failure never blocks the
// message from being stored.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const transcriptionPrompt = "Transcribe this audio message verbatim. Reply with only the transcript, no commentary. If the audio contains no speech, reply with an empty string."

// Transcriber converts an audio payload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// GeminiTranscriber implements Transcriber using Google's Gemini API, which
// accepts inline audio parts.
type GeminiTranscriber struct {
	client  *genai.Client
	modelID string
}

// NewGeminiTranscriber creates a Gemini-backed transcriber.
func NewGeminiTranscriber(ctx context.Context, apiKey, modelID string) (*GeminiTranscriber, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("transcribe: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("transcribe: failed to create gemini client: %w", err)
	}

	return &GeminiTranscriber{
		client:  client,
		modelID: modelID,
	}, nil
}

// Transcribe sends the audio inline and returns the transcript text.
func (t *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("transcribe: empty audio payload")
	}
	if mimeType == "" {
		mimeType = "audio/ogg"
	}
	// Gemini rejects codec parameters on the MIME type.
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	model := t.client.GenerativeModel(t.modelID)
	resp, err := model.GenerateContent(ctx,
		genai.Text(transcriptionPrompt),
		genai.Blob{MIMEType: mimeType, Data: audio},
	)
	if err != nil {
		return "", fmt.Errorf("transcribe: gemini request failed: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", errors.New("transcribe: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("transcribe: gemini returned empty content")
	}

	var out strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return strings.TrimSpace(out.String()), nil
}

// Close releases resources held by the Gemini client.
func (t *GeminiTranscriber) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}
