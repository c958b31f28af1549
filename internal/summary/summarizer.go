package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sjawhar/ghost-minutes/internal/config"
	"github.com/sjawhar/ghost-minutes/internal/llm"
	"github.com/sjawhar/ghost-minutes/internal/meeting"
	"github.com/sjawhar/ghost-minutes/internal/suggest"
)

type ClientFactory func(provider, model string) (llm.Client, error)

var ErrEmptyTranscript = errors.New("empty transcript")

// Request is everything the provider sees for one meeting. Template names a
// configured preset or carries free-text structure instructions.
type Request struct {
	Lines       []string
	Suggestions suggest.Suggestions
	Notes       string
	Template    string
}

const schemaPrompt = `Respond with a single JSON object and nothing else, using this schema:
{
  "summary": "short paragraph",
  "detailed_summary": "optional longer markdown summary",
  "topics": [{"title": "...", "summary": "..."}],
  "decisions": [{"text": "...", "confidence": 0.0}],
  "actions": [{"text": "...", "assignee": "...", "due_date": "...", "confidence": 0.0}],
  "open_questions": ["..."],
  "enhancedNotes": "optional markdown merging the attendee notes with the transcript"
}
Omit optional fields you cannot fill. Write in the language of the transcript.`

const defaultSystemPrompt = "You write accurate, concise minutes of meetings from their transcripts. Never invent facts that are not in the transcript."

const defaultUserTemplate = `Meeting date: {{date}}

Transcript:
{{transcript}}`

type Summarizer struct {
	cfg     config.Summarization
	factory ClientFactory
	router  *Router
	now     func() time.Time
}

func New(cfg config.Summarization, factory ClientFactory) *Summarizer {
	var router *Router
	if len(cfg.Presets) > 1 {
		router = NewRouter(cfg, factory)
	}
	return &Summarizer{
		cfg:     cfg,
		factory: factory,
		router:  router,
		now:     time.Now,
	}
}

func (s *Summarizer) Summarize(ctx context.Context, req Request) (meeting.Summary, error) {
	if len(req.Lines) == 0 {
		return meeting.Summary{}, ErrEmptyTranscript
	}
	transcript := strings.Join(req.Lines, "\n")

	name, preset := s.resolveTemplate(ctx, req.Template, transcript)

	modelStr := preset.Model
	if modelStr == "" {
		modelStr = s.cfg.Model
	}
	provider, model, err := llm.ParseModel(modelStr)
	if err != nil {
		return meeting.Summary{}, err
	}
	client, err := s.factory(provider, model)
	if err != nil {
		return meeting.Summary{}, fmt.Errorf("create llm client: %w", err)
	}

	messages := []llm.Message{
		{Role: "system", Content: preset.SystemPrompt + "\n\n" + schemaPrompt},
		{Role: "user", Content: s.render(preset.UserTemplate, transcript, req)},
	}

	// One attempt: a provider error fails this run and the meeting is retried
	// as a whole.
	raw, err := client.Complete(ctx, llm.Request{Messages: messages, JSON: true})
	if err != nil {
		return meeting.Summary{}, fmt.Errorf("summarize with %s: %w", modelStr, err)
	}

	var out meeting.Summary
	if err := ParseJSON(raw, &out); err != nil {
		return meeting.Summary{}, err
	}
	out.Template = name
	return out, nil
}

// resolveTemplate picks the preset for a request. A template that names no
// preset is treated as free-text structure instructions.
func (s *Summarizer) resolveTemplate(ctx context.Context, template, transcript string) (string, config.Preset) {
	template = strings.TrimSpace(template)
	if template != "" {
		if preset, ok := s.cfg.Presets[template]; ok {
			return template, withDefaults(preset)
		}
		preset := config.Preset{
			SystemPrompt: defaultSystemPrompt + "\n\nStructure the summary following this template:\n" + template,
			UserTemplate: defaultUserTemplate,
		}
		return "", preset
	}

	switch {
	case len(s.cfg.Presets) == 0:
		return "", config.Preset{SystemPrompt: defaultSystemPrompt, UserTemplate: defaultUserTemplate}
	case s.router == nil:
		for name, preset := range s.cfg.Presets {
			return name, withDefaults(preset)
		}
	}

	name, err := s.router.SelectPreset(ctx, transcript)
	if err != nil {
		slog.Warn("summarizer: preset selection failed", "error", err)
		name = s.router.fallbackPreset()
	}
	return name, withDefaults(s.cfg.Presets[name])
}

func withDefaults(p config.Preset) config.Preset {
	if strings.TrimSpace(p.SystemPrompt) == "" {
		p.SystemPrompt = defaultSystemPrompt
	}
	if strings.TrimSpace(p.UserTemplate) == "" {
		p.UserTemplate = defaultUserTemplate
	}
	return p
}

func (s *Summarizer) render(tmpl, transcript string, req Request) string {
	out := strings.ReplaceAll(tmpl, "{{transcript}}", transcript)
	out = strings.ReplaceAll(out, "{{date}}", s.now().UTC().Format("2006-01-02"))

	notes := strings.TrimSpace(req.Notes)
	if strings.Contains(out, "{{notes}}") {
		out = strings.ReplaceAll(out, "{{notes}}", notes)
	} else if notes != "" {
		out += "\n\nAttendee notes:\n" + notes
	}

	suggestions := ""
	if !req.Suggestions.Empty() {
		if data, err := json.Marshal(req.Suggestions); err == nil {
			suggestions = string(data)
		}
	}
	if strings.Contains(out, "{{suggestions}}") {
		out = strings.ReplaceAll(out, "{{suggestions}}", suggestions)
	} else if suggestions != "" {
		out += "\n\nItems already noted during the meeting (keep the ones the transcript supports):\n" + suggestions
	}
	return out
}

// Presets lists the configured preset names in order.
func (s *Summarizer) Presets() []string {
	names := make([]string, 0, len(s.cfg.Presets))
	for name := range s.cfg.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Summarizer) Preset(name string) (config.Preset, bool) {
	p, ok := s.cfg.Presets[name]
	return p, ok
}
