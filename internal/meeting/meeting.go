package meeting

import (
	"time"

	"github.com/sjawhar/ghost-minutes/internal/suggest"
	"github.com/sjawhar/ghost-minutes/internal/transcribe"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether the pipeline takes no further automatic action.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Summary is the structured output of the summarization provider.
type Summary struct {
	Summary         string             `json:"summary"`
	Topics          []suggest.Topic    `json:"topics"`
	Decisions       []suggest.Decision `json:"decisions"`
	Actions         []suggest.Action   `json:"actions"`
	OpenQuestions   []string           `json:"open_questions"`
	DetailedSummary string             `json:"detailed_summary,omitempty"`
	EnhancedNotes   string             `json:"enhancedNotes,omitempty"`
	Template        string             `json:"template,omitempty"`
}

type Meeting struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	OwnerEmail  string               `json:"owner_email,omitempty"`
	Status      Status               `json:"status"`
	AudioRef    string               `json:"audio_ref,omitempty"`
	Language    string               `json:"language,omitempty"`
	Notes       string               `json:"notes,omitempty"`
	Template    string               `json:"template,omitempty"`
	Segments    []transcribe.Segment `json:"transcript_segments"`
	Suggestions suggest.Suggestions  `json:"suggestions"`
	Summary     *Summary             `json:"summary,omitempty"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	EndedAt     *time.Time           `json:"ended_at,omitempty"`
}

// Transcript is the ordered text of the stored segments.
func (m Meeting) Transcript() []string {
	return transcribe.Lines(m.Segments)
}
