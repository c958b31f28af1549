package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sjawhar/ghost-minutes/internal/config"
	"github.com/sjawhar/ghost-minutes/internal/llm"
	"github.com/sjawhar/ghost-minutes/internal/suggest"
)

func TestExtractReturnsCandidates(t *testing.T) {
	client := &mockLLMClient{response: `{"topics":["Budget review"],"decisions":[{"text":"Freeze hiring","confidence":0.8}],"actions":[{"text":"Send report","assignee":"Bob","due_date":"Friday"}]}`}
	e := NewExtractor(config.Summarization{Model: "openai/gpt-4o-mini"}, func(_, _ string) (llm.Client, error) {
		return client, nil
	})

	existing := suggest.Suggestions{Topics: []suggest.Topic{suggest.Label("Roadmap")}}
	out, err := e.Extract(context.Background(), []string{"Let's review the budget.", "Bob sends the report Friday."}, existing)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(out.Topics) != 1 || out.Topics[0].Title != "Budget review" {
		t.Fatalf("unexpected topics %+v", out.Topics)
	}
	if len(out.Decisions) != 1 || out.Decisions[0].Confidence == nil || *out.Decisions[0].Confidence != 0.8 {
		t.Fatalf("unexpected decisions %+v", out.Decisions)
	}
	if len(out.Actions) != 1 || out.Actions[0].DueDate != "Friday" {
		t.Fatalf("unexpected actions %+v", out.Actions)
	}

	user := client.userContent()
	if !strings.Contains(user, `Already noted:`) || !strings.Contains(user, `"Roadmap"`) {
		t.Fatalf("expected existing suggestions in prompt, got %q", user)
	}
	if !strings.HasSuffix(user, "Let's review the budget.\nBob sends the report Friday.") {
		t.Fatalf("expected window at end of prompt, got %q", user)
	}
	if !client.lastRequest.JSON {
		t.Fatal("expected JSON mode")
	}
}

func TestExtractEmptyWindow(t *testing.T) {
	client := &mockLLMClient{}
	e := NewExtractor(config.Summarization{Model: "openai/gpt-4o-mini"}, func(_, _ string) (llm.Client, error) {
		return client, nil
	})

	out, err := e.Extract(context.Background(), nil, suggest.Suggestions{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !out.Empty() || client.calls != 0 {
		t.Fatalf("expected no call and no suggestions, got %+v after %d calls", out, client.calls)
	}
}

func TestExtractProviderError(t *testing.T) {
	client := &mockLLMClient{err: errors.New("rate limited"), failures: 1}
	e := NewExtractor(config.Summarization{Model: "openai/gpt-4o-mini"}, func(_, _ string) (llm.Client, error) {
		return client, nil
	})

	_, err := e.Extract(context.Background(), []string{"hello"}, suggest.Suggestions{})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestExtractMalformed(t *testing.T) {
	client := &mockLLMClient{response: "nothing new"}
	e := NewExtractor(config.Summarization{Model: "openai/gpt-4o-mini"}, func(_, _ string) (llm.Client, error) {
		return client, nil
	})

	_, err := e.Extract(context.Background(), []string{"hello"}, suggest.Suggestions{})
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
}
