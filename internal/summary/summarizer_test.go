package summary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sjawhar/ghost-minutes/internal/config"
	"github.com/sjawhar/ghost-minutes/internal/llm"
	"github.com/sjawhar/ghost-minutes/internal/suggest"
)

type mockLLMClient struct {
	calls       int
	response    string
	err         error
	failures    int
	lastRequest llm.Request
}

func (m *mockLLMClient) Complete(_ context.Context, req llm.Request) (string, error) {
	m.calls++
	m.lastRequest = req
	if m.err != nil && m.calls <= m.failures {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockLLMClient) userContent() string {
	for _, msg := range m.lastRequest.Messages {
		if msg.Role == "user" {
			return msg.Content
		}
	}
	return ""
}

const validSummary = `{"summary":"Team agreed on the launch.","topics":[{"title":"Launch","summary":"Date fixed"},"Hiring"],"decisions":[{"text":"Launch Friday"}],"actions":[{"text":"Prepare slides","assignee":"Ana"}],"open_questions":["Budget?"]}`

func singlePresetConfig() config.Summarization {
	return config.Summarization{
		Model: "openai/gpt-4o-mini",
		Presets: map[string]config.Preset{
			"default": {
				Description:  "general",
				SystemPrompt: "system",
				UserTemplate: "{{transcript}}",
			},
		},
	}
}

func newTestSummarizer(t *testing.T, cfg config.Summarization, client llm.Client) *Summarizer {
	t.Helper()
	s := New(cfg, func(_, _ string) (llm.Client, error) {
		return client, nil
	})
	s.now = func() time.Time { return time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestSummarizeSinglePreset(t *testing.T) {
	client := &mockLLMClient{response: validSummary}
	factoryCalls := 0

	s := New(singlePresetConfig(), func(provider, model string) (llm.Client, error) {
		if provider != "openai" {
			t.Fatalf("expected provider openai, got %q", provider)
		}
		if model != "gpt-4o-mini" {
			t.Fatalf("expected model gpt-4o-mini, got %q", model)
		}
		factoryCalls++
		return client, nil
	})

	out, err := s.Summarize(context.Background(), Request{Lines: []string{"We launch Friday.", "Ana prepares slides."}})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if out.Summary != "Team agreed on the launch." {
		t.Fatalf("unexpected summary %q", out.Summary)
	}
	if out.Template != "default" {
		t.Fatalf("expected preset default, got %q", out.Template)
	}
	if len(out.Topics) != 2 || !out.Topics[0].IsDetailed() || out.Topics[1].IsDetailed() {
		t.Fatalf("expected detailed and label topics, got %+v", out.Topics)
	}
	if len(out.Actions) != 1 || out.Actions[0].Assignee != "Ana" {
		t.Fatalf("unexpected actions %+v", out.Actions)
	}
	if !client.lastRequest.JSON {
		t.Fatal("expected JSON mode request")
	}
	if client.calls != 1 || factoryCalls != 1 {
		t.Fatalf("expected 1 llm call and 1 factory call, got %d and %d", client.calls, factoryCalls)
	}
}

func TestSummarizeEmptyTranscript(t *testing.T) {
	client := &mockLLMClient{response: validSummary}
	s := newTestSummarizer(t, singlePresetConfig(), client)

	_, err := s.Summarize(context.Background(), Request{})
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("expected zero llm calls, got %d", client.calls)
	}
}

func TestSummarizeRendersTemplate(t *testing.T) {
	client := &mockLLMClient{response: validSummary}
	cfg := singlePresetConfig()
	cfg.Presets["default"] = config.Preset{
		SystemPrompt: "system",
		UserTemplate: "Date={{date}}\nBody={{transcript}}\nNotes={{notes}}\nKnown={{suggestions}}",
	}
	s := newTestSummarizer(t, cfg, client)

	_, err := s.Summarize(context.Background(), Request{
		Lines:       []string{"line one", "line two"},
		Notes:       "remember budget",
		Suggestions: suggest.Suggestions{Topics: []suggest.Topic{suggest.Label("Budget")}},
	})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if len(client.lastRequest.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(client.lastRequest.Messages))
	}
	if !strings.Contains(client.lastRequest.Messages[0].Content, `"open_questions"`) {
		t.Fatalf("expected schema in system prompt, got %q", client.lastRequest.Messages[0].Content)
	}
	user := client.userContent()
	for _, want := range []string{
		"Date=2026-10-12",
		"Body=line one\nline two",
		"Notes=remember budget",
		`Known={"topics":["Budget"]`,
	} {
		if !strings.Contains(user, want) {
			t.Fatalf("expected %q in user content, got %q", want, user)
		}
	}
}

func TestSummarizeAppendsNotesWithoutPlaceholder(t *testing.T) {
	client := &mockLLMClient{response: validSummary}
	s := newTestSummarizer(t, singlePresetConfig(), client)

	_, err := s.Summarize(context.Background(), Request{Lines: []string{"hello"}, Notes: "my notes"})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.Contains(client.userContent(), "Attendee notes:\nmy notes") {
		t.Fatalf("expected notes appended, got %q", client.userContent())
	}
}

func TestSummarizeTemplateSelectsPreset(t *testing.T) {
	client := &mockLLMClient{response: validSummary}
	cfg := config.Summarization{
		Model: "not-a-valid-global-model",
		Presets: map[string]config.Preset{
			"default":  {SystemPrompt: "general system", Model: "openai/gpt-4o-mini"},
			"detailed": {SystemPrompt: "detailed system", Model: "openai/gpt-4o-mini"},
		},
	}
	s := newTestSummarizer(t, cfg, client)

	out, err := s.Summarize(context.Background(), Request{Lines: []string{"hello"}, Template: "detailed"})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if out.Template != "detailed" {
		t.Fatalf("expected detailed template, got %q", out.Template)
	}
	if !strings.HasPrefix(client.lastRequest.Messages[0].Content, "detailed system") {
		t.Fatalf("expected detailed system prompt, got %q", client.lastRequest.Messages[0].Content)
	}
	if !strings.Contains(client.userContent(), "Transcript:\nhello") {
		t.Fatalf("expected default user template, got %q", client.userContent())
	}
	if client.calls != 1 {
		t.Fatalf("expected no router call, got %d calls", client.calls)
	}
}

func TestSummarizeFreeTextTemplate(t *testing.T) {
	client := &mockLLMClient{response: validSummary}
	s := newTestSummarizer(t, singlePresetConfig(), client)

	out, err := s.Summarize(context.Background(), Request{
		Lines:    []string{"hello"},
		Template: "## Context\n## Risks",
	})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if out.Template != "" {
		t.Fatalf("expected no preset name for free text template, got %q", out.Template)
	}
	if !strings.Contains(client.lastRequest.Messages[0].Content, "## Context\n## Risks") {
		t.Fatalf("expected template in system prompt, got %q", client.lastRequest.Messages[0].Content)
	}
}

func TestSummarizeRoutesBetweenPresets(t *testing.T) {
	router := &mockLLMClient{response: "standup"}
	writer := &mockLLMClient{response: validSummary}
	cfg := config.Summarization{
		Model: "openai/gpt-4o-mini",
		Presets: map[string]config.Preset{
			"default": {Description: "general", SystemPrompt: "general"},
			"standup": {Description: "daily standup", SystemPrompt: "standup", Model: "anthropic/claude"},
		},
	}

	s := New(cfg, func(provider, _ string) (llm.Client, error) {
		if provider == "anthropic" {
			return writer, nil
		}
		return router, nil
	})

	out, err := s.Summarize(context.Background(), Request{Lines: []string{"yesterday I fixed the build"}})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if out.Template != "standup" {
		t.Fatalf("expected routed standup preset, got %q", out.Template)
	}
	if router.calls != 1 || writer.calls != 1 {
		t.Fatalf("expected one router and one writer call, got %d and %d", router.calls, writer.calls)
	}
}

func TestSummarizeProviderErrorIsNotRetried(t *testing.T) {
	client := &mockLLMClient{response: validSummary, err: errors.New("insufficient quota"), failures: 1}
	s := newTestSummarizer(t, singlePresetConfig(), client)

	_, err := s.Summarize(context.Background(), Request{Lines: []string{"hello"}})
	if err == nil || !strings.Contains(err.Error(), "insufficient quota") {
		t.Fatalf("expected provider error, got %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected a single llm call, got %d", client.calls)
	}

	if _, err := s.Summarize(context.Background(), Request{Lines: []string{"hello"}}); err != nil {
		t.Fatalf("expected the next run to succeed, got %v", err)
	}
}

func TestSummarizeRecoversTruncatedOutput(t *testing.T) {
	client := &mockLLMClient{response: "```json\n{\"summary\": \"Short.\", \"topics\": [\"A\", \"B\"], \"decisions\": [{\"text\": \"Do it\"}, {\"text\": \"Do th"}
	s := newTestSummarizer(t, singlePresetConfig(), client)

	out, err := s.Summarize(context.Background(), Request{Lines: []string{"hello"}})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if out.Summary != "Short." || len(out.Topics) != 2 || len(out.Decisions) != 1 {
		t.Fatalf("unexpected recovered summary %+v", out)
	}
}

func TestSummarizeMalformedOutput(t *testing.T) {
	client := &mockLLMClient{response: "I could not summarize this meeting."}
	s := newTestSummarizer(t, singlePresetConfig(), client)

	_, err := s.Summarize(context.Background(), Request{Lines: []string{"hello"}})
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected malformed output not to be retried, got %d calls", client.calls)
	}
}

func TestSummarizeInvalidModel(t *testing.T) {
	cfg := singlePresetConfig()
	cfg.Model = "gpt-4o"
	s := newTestSummarizer(t, cfg, &mockLLMClient{response: validSummary})

	if _, err := s.Summarize(context.Background(), Request{Lines: []string{"hello"}}); err == nil {
		t.Fatal("expected invalid model error")
	}
}

func TestPresetsSorted(t *testing.T) {
	cfg := config.Summarization{Presets: map[string]config.Preset{"zeta": {}, "alpha": {}}}
	s := New(cfg, nil)
	got := s.Presets()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Fatalf("expected sorted preset names, got %v", got)
	}
}
