package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sjawhar/ghost-minutes/internal/config"
	"github.com/sjawhar/ghost-minutes/internal/llm"
	"github.com/sjawhar/ghost-minutes/internal/suggest"
)

const extractPrompt = `You follow a meeting while it happens. From the latest transcript lines, list new topics, decisions and action items.
Respond with a single JSON object and nothing else:
{
  "topics": [{"title": "...", "summary": "..."}],
  "decisions": [{"text": "...", "confidence": 0.0}],
  "actions": [{"text": "...", "assignee": "...", "due_date": "...", "confidence": 0.0}]
}
Only report what the transcript states. Leave a list empty when nothing new appears. Do not repeat items already noted.`

// Extractor proposes suggestion candidates from a rolling transcript window.
type Extractor struct {
	model   string
	factory ClientFactory
}

func NewExtractor(cfg config.Summarization, factory ClientFactory) *Extractor {
	return &Extractor{model: cfg.Model, factory: factory}
}

// Extract returns candidates only. Deduplication against existing is the
// caller's job; existing is shown to the model to discourage repeats.
func (e *Extractor) Extract(ctx context.Context, window []string, existing suggest.Suggestions) (suggest.Suggestions, error) {
	if len(window) == 0 {
		return suggest.Suggestions{}, nil
	}

	provider, model, err := llm.ParseModel(e.model)
	if err != nil {
		return suggest.Suggestions{}, err
	}
	client, err := e.factory(provider, model)
	if err != nil {
		return suggest.Suggestions{}, fmt.Errorf("create llm client: %w", err)
	}

	var user strings.Builder
	if !existing.Empty() {
		if data, err := json.Marshal(existing); err == nil {
			user.WriteString("Already noted:\n")
			user.Write(data)
			user.WriteString("\n\n")
		}
	}
	user.WriteString("Latest transcript lines:\n")
	user.WriteString(strings.Join(window, "\n"))

	raw, err := client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: extractPrompt},
			{Role: "user", Content: user.String()},
		},
		JSON:      true,
		MaxTokens: 2048,
	})
	if err != nil {
		return suggest.Suggestions{}, fmt.Errorf("extract suggestions: %w", err)
	}

	var out suggest.Suggestions
	if err := ParseJSON(raw, &out); err != nil {
		return suggest.Suggestions{}, err
	}
	return out, nil
}
