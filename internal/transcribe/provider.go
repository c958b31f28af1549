package transcribe

import (
	"context"
	"fmt"
)

// Audio is one upload to a transcription provider.
type Audio struct {
	Data     []byte
	Filename string
	Language string
}

// ProviderSegment is a provider result with offsets local to the audio that
// was sent.
type ProviderSegment struct {
	Text    string
	Start   float64
	End     float64
	Speaker string
}

type Provider interface {
	Transcribe(ctx context.Context, audio Audio) ([]ProviderSegment, error)
}

type ProviderConfig struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case "deepgram":
		return NewDeepgramProvider(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q: supported providers are openai, deepgram", cfg.Name)
	}
}
