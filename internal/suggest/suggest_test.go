package suggest

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Budget", "budget ", 1},
		{"", "", 1},
		{"abc", "", 0},
		{"kitten", "sitting", 1 - 3.0/7.0},
		{"Réunion", "reunion", 1 - 1.0/7.0},
	}

	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); fmt.Sprintf("%.6f", got) != fmt.Sprintf("%.6f", tt.want) {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMergeTopicExample(t *testing.T) {
	got := Merge(Suggestions{}, Suggestions{Topics: []Topic{Label("Back office"), Label("Création back office application")}})

	if len(got.Topics) != 1 {
		t.Fatalf("expected 1 topic, got %+v", got.Topics)
	}
	if got.Topics[0].Title != "Création back office application" {
		t.Fatalf("expected the longer topic to win, got %q", got.Topics[0].Title)
	}
}

func TestMergeTopicKeepsPosition(t *testing.T) {
	existing := Suggestions{Topics: []Topic{Label("Hiring"), Label("Roadmap"), Label("Budget")}}
	incoming := Suggestions{Topics: []Topic{Detailed("Roadmap for Q3", "Milestones"), Label("Security review")}}

	got := Merge(existing, incoming)

	want := []string{"Hiring", "Roadmap for Q3", "Budget", "Security review"}
	if len(got.Topics) != len(want) {
		t.Fatalf("expected %d topics, got %+v", len(want), got.Topics)
	}
	for i, title := range want {
		if got.Topics[i].Title != title {
			t.Errorf("topic %d: expected %q, got %q", i, title, got.Topics[i].Title)
		}
	}
	if !got.Topics[1].IsDetailed() || got.Topics[1].Summary != "Milestones" {
		t.Fatalf("expected detailed replacement, got %+v", got.Topics[1])
	}
}

func TestMergeDecisionFirstSeenKept(t *testing.T) {
	conf := 0.9
	existing := Suggestions{Decisions: []Decision{{Text: "Ship the beta on Friday", Confidence: &conf}}}
	incoming := Suggestions{Decisions: []Decision{{Text: "Ship the beta on Friday."}, {Text: "Freeze the API"}}}

	got := Merge(existing, incoming)

	if len(got.Decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %+v", got.Decisions)
	}
	if got.Decisions[0].Text != "Ship the beta on Friday" || got.Decisions[0].Confidence == nil {
		t.Fatalf("expected first-seen decision kept, got %+v", got.Decisions[0])
	}
}

func TestMergeActionReplacementExample(t *testing.T) {
	existing := Suggestions{Actions: []Action{{Text: "Julien prépare le deck"}}}
	incoming := Suggestions{Actions: []Action{{Text: "Julien prépare le deck avant lundi", Assignee: "Julien"}}}

	got := Merge(existing, incoming)

	if len(got.Actions) != 1 {
		t.Fatalf("expected 1 action, got %+v", got.Actions)
	}
	if got.Actions[0].Assignee != "Julien" || got.Actions[0].Text != "Julien prépare le deck avant lundi" {
		t.Fatalf("expected assignee-bearing action, got %+v", got.Actions[0])
	}

	again := Merge(got, Suggestions{Actions: []Action{{Text: "Julien prépare le deck"}}})
	if !reflect.DeepEqual(again, got) {
		t.Fatalf("less informative duplicate must not replace: %+v", again.Actions)
	}
}

func TestMergeActionDueDateReplaces(t *testing.T) {
	existing := Suggestions{Actions: []Action{{Text: "Send the contract to legal", Assignee: "Ana"}}}
	incoming := Suggestions{Actions: []Action{{Text: "Send contract to legal", DueDate: "2026-11-02"}}}

	got := Merge(existing, incoming)

	if len(got.Actions) != 1 || got.Actions[0].DueDate != "2026-11-02" {
		t.Fatalf("expected due-date action to replace, got %+v", got.Actions)
	}
}

func sampleSuggestions() Suggestions {
	return Suggestions{
		Topics: []Topic{
			Label("Back office"),
			Label("Création back office application"),
			Detailed("Recrutement", "Deux postes ouverts"),
			Label("Budget 2027"),
		},
		Decisions: []Decision{
			{Text: "Adopter Postgres"},
			{Text: "Adopter Postgres."},
			{Text: "Reporter la migration"},
		},
		Actions: []Action{
			{Text: "Julien prépare le deck"},
			{Text: "Julien prépare le deck avant lundi", Assignee: "Julien"},
			{Text: "Marie contacte le fournisseur", DueDate: "vendredi"},
		},
	}
}

func TestMergeIdempotent(t *testing.T) {
	s := sampleSuggestions()

	once := Merge(s, s)
	twice := Merge(s, once)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge is not idempotent:\n once: %+v\ntwice: %+v", once, twice)
	}
	if len(once.Topics) != 3 || len(once.Decisions) != 2 || len(once.Actions) != 2 {
		t.Fatalf("unexpected merged sizes: %+v", once)
	}
}

func TestMergeChainedReplacementStaysDuplicateFree(t *testing.T) {
	s := Suggestions{
		Topics: []Topic{Label("abcd"), Label("xbcdefg"), Label("abcdef")},
		Actions: []Action{
			{Text: "Prepare deck"},
			{Text: "Deck notes"},
			{Text: "Prepare deck notes", Assignee: "Ana"},
		},
	}

	once := Merge(s, s)
	for i := range once.Topics {
		for j := i + 1; j < len(once.Topics); j++ {
			if sameTopic(once.Topics[i].Title, once.Topics[j].Title) {
				t.Fatalf("duplicate topics at %d and %d: %+v", i, j, once.Topics)
			}
		}
	}
	if once.Topics[0].Title != "xbcdefg" {
		t.Fatalf("expected the longest title in the first position, got %+v", once.Topics)
	}
	if len(once.Actions) != 1 || once.Actions[0].Assignee != "Ana" {
		t.Fatalf("expected one action with the assignee, got %+v", once.Actions)
	}

	if twice := Merge(s, once); !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge is not idempotent:\n once: %+v\ntwice: %+v", once, twice)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	existing := Suggestions{Topics: []Topic{Label("Roadmap")}}
	incoming := Suggestions{Topics: []Topic{Label("Roadmap for Q3")}}

	_ = Merge(existing, incoming)

	if existing.Topics[0].Title != "Roadmap" {
		t.Fatalf("existing mutated: %+v", existing.Topics)
	}
}

func TestTruncateCaps(t *testing.T) {
	var s Suggestions
	for i := 0; i < 20; i++ {
		s.Topics = append(s.Topics, Label(fmt.Sprintf("topic %d", i)))
		s.Decisions = append(s.Decisions, Decision{Text: fmt.Sprintf("decision %d", i)})
		s.Actions = append(s.Actions, Action{Text: fmt.Sprintf("action %d", i)})
	}

	got := Truncate(s, DefaultCaps())

	if len(got.Topics) != 8 || len(got.Decisions) != 10 || len(got.Actions) != 15 {
		t.Fatalf("caps not enforced: %d/%d/%d", len(got.Topics), len(got.Decisions), len(got.Actions))
	}
	if got.Topics[0].Title != "topic 0" || got.Actions[14].Text != "action 14" {
		t.Fatalf("expected the tail to be dropped, got %+v / %+v", got.Topics[0], got.Actions[14])
	}

	small := Suggestions{Topics: []Topic{Label("only")}}
	if got := Truncate(small, DefaultCaps()); len(got.Topics) != 1 {
		t.Fatalf("expected small set untouched, got %+v", got)
	}
}

func TestTopicJSON(t *testing.T) {
	raw := []byte(`{"topics":["Budget",{"title":"Roadmap","summary":"Q3 plan"}],"decisions":[],"actions":[{"text":"Ship","assignee":"Ana"}]}`)

	var s Suggestions
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(s.Topics) != 2 || s.Topics[0].IsDetailed() || !s.Topics[1].IsDetailed() || s.Topics[1].Summary != "Q3 plan" {
		t.Fatalf("unexpected topics: %+v", s.Topics)
	}

	out, err := json.Marshal(s.Topics)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `["Budget",{"title":"Roadmap","summary":"Q3 plan"}]` {
		t.Fatalf("topics did not keep their form: %s", out)
	}
}

func TestTopicJSONRejectsInvalid(t *testing.T) {
	for _, raw := range []string{`42`, `{"summary":"no title"}`, `[]`} {
		var topic Topic
		if err := json.Unmarshal([]byte(raw), &topic); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}
