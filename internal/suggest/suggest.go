package suggest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Topic is either a plain label or a titled summary. Older records store
// topics as bare strings, newer ones as {"title","summary"} objects, and
// both decode into the same type.
type Topic struct {
	Title   string
	Summary string

	detailed bool
}

func Label(title string) Topic {
	return Topic{Title: title}
}

func Detailed(title, summary string) Topic {
	return Topic{Title: title, Summary: summary, detailed: true}
}

func (t Topic) IsDetailed() bool { return t.detailed }

func (t Topic) String() string { return t.Title }

type detailedTopic struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func (t Topic) MarshalJSON() ([]byte, error) {
	if t.detailed {
		return json.Marshal(detailedTopic{Title: t.Title, Summary: t.Summary})
	}
	return json.Marshal(t.Title)
}

func (t *Topic) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty topic")
	}

	switch data[0] {
	case 'n':
		if string(data) == "null" {
			return nil
		}
	case '"':
		var title string
		if err := json.Unmarshal(data, &title); err != nil {
			return err
		}
		*t = Label(title)
		return nil
	case '{':
		var d detailedTopic
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		if strings.TrimSpace(d.Title) == "" {
			return errors.New("topic object without title")
		}
		*t = Detailed(d.Title, d.Summary)
		return nil
	}
	return fmt.Errorf("topic must be a string or an object, got %s", data)
}

type Decision struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type Action struct {
	Text       string   `json:"text"`
	Assignee   string   `json:"assignee,omitempty"`
	DueDate    string   `json:"due_date,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type Suggestions struct {
	Topics    []Topic    `json:"topics"`
	Decisions []Decision `json:"decisions"`
	Actions   []Action   `json:"actions"`
}

func (s Suggestions) Empty() bool {
	return len(s.Topics) == 0 && len(s.Decisions) == 0 && len(s.Actions) == 0
}

// Caps bound each category after deduplication.
type Caps struct {
	Topics    int `yaml:"topics"`
	Decisions int `yaml:"decisions"`
	Actions   int `yaml:"actions"`
}

func DefaultCaps() Caps {
	return Caps{Topics: 8, Decisions: 10, Actions: 15}
}

// Truncate keeps the first entries of each category up to its cap. A
// non-positive cap leaves the category untouched.
func Truncate(s Suggestions, caps Caps) Suggestions {
	return Suggestions{
		Topics:    head(s.Topics, caps.Topics),
		Decisions: head(s.Decisions, caps.Decisions),
		Actions:   head(s.Actions, caps.Actions),
	}
}

func head[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[:n:n]
}
