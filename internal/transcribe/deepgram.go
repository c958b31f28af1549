package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type DeepgramProvider struct {
	model      string
	fromStream func(ctx context.Context, r io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (any, error)
}

func NewDeepgramProvider(apiKey, model, host string) *DeepgramProvider {
	if model == "" {
		model = "nova-2"
	}

	dg := api.New(client.NewREST(apiKey, &interfaces.ClientOptions{Host: host}))

	return &DeepgramProvider{
		model: model,
		fromStream: func(ctx context.Context, r io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (any, error) {
			res, err := dg.FromStream(ctx, r, opts)
			if err != nil {
				return nil, err
			}
			return res, nil
		},
	}
}

func (p *DeepgramProvider) Transcribe(ctx context.Context, audio Audio) ([]ProviderSegment, error) {
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       p.model,
		Language:    audio.Language,
		Punctuate:   true,
		SmartFormat: true,
		Utterances:  true,
		Diarize:     true,
	}

	res, err := p.fromStream(ctx, bytes.NewReader(audio.Data), opts)
	if err != nil {
		return nil, fmt.Errorf("deepgram transcription: %w", err)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode deepgram response: %w", err)
	}
	return decodeDeepgram(raw)
}

type deepgramResponse struct {
	Results struct {
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
			Speaker    *int    `json:"speaker"`
		} `json:"utterances"`
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
}

// decodeDeepgram prefers utterances. Without them the first channel's
// transcript becomes a single segment at offset zero.
func decodeDeepgram(raw []byte) ([]ProviderSegment, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode deepgram response: %w", err)
	}

	segments := make([]ProviderSegment, 0, len(resp.Results.Utterances))
	for _, u := range resp.Results.Utterances {
		text := strings.TrimSpace(u.Transcript)
		if text == "" {
			continue
		}
		seg := ProviderSegment{Text: text, Start: u.Start, End: u.End}
		if u.Speaker != nil {
			seg.Speaker = "Speaker " + strconv.Itoa(*u.Speaker)
		}
		segments = append(segments, seg)
	}
	if len(segments) > 0 {
		return segments, nil
	}

	if len(resp.Results.Channels) > 0 && len(resp.Results.Channels[0].Alternatives) > 0 {
		if text := strings.TrimSpace(resp.Results.Channels[0].Alternatives[0].Transcript); text != "" {
			segments = append(segments, ProviderSegment{Text: text, Start: 0, End: resp.Metadata.Duration})
		}
	}
	return segments, nil
}
