package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(config), model: model}
}

// Transcribe requests verbose_json so the response carries segment-level
// start offsets.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio Audio) ([]ProviderSegment, error) {
	filename := audio.Filename
	if filename == "" {
		filename = "audio.mp3"
	}

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:                  p.model,
		FilePath:               filename,
		Reader:                 bytes.NewReader(audio.Data),
		Language:               audio.Language,
		Format:                 openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{openai.TranscriptionTimestampGranularitySegment},
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	segments := make([]ProviderSegment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segments = append(segments, ProviderSegment{Text: text, Start: s.Start, End: s.End})
	}

	if len(segments) == 0 {
		if text := strings.TrimSpace(resp.Text); text != "" {
			segments = append(segments, ProviderSegment{Text: text, Start: 0, End: resp.Duration})
		}
	}

	return segments, nil
}
