package server

import (
	"time"

	"github.com/sjawhar/ghost-minutes/internal/meeting"
	"github.com/sjawhar/ghost-minutes/internal/suggest"
	"github.com/sjawhar/ghost-minutes/internal/transcribe"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type MeetingStatusEvent struct {
	Event
	MeetingID string         `json:"meeting_id"`
	Status    meeting.Status `json:"status"`
	Message   string         `json:"message,omitempty"`
}

type SegmentsAddedEvent struct {
	Event
	MeetingID string               `json:"meeting_id"`
	Segments  []transcribe.Segment `json:"segments"`
}

type SuggestionsUpdatedEvent struct {
	Event
	MeetingID   string              `json:"meeting_id"`
	Suggestions suggest.Suggestions `json:"suggestions"`
}

type SummaryReadyEvent struct {
	Event
	MeetingID string `json:"meeting_id"`
	Summary   string `json:"summary"`
	Template  string `json:"template,omitempty"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
