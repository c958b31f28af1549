package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/ghost-minutes/internal/meeting"
	"github.com/sjawhar/ghost-minutes/internal/notify"
	"github.com/sjawhar/ghost-minutes/internal/suggest"
	"github.com/sjawhar/ghost-minutes/internal/transcribe"
)

// Hub fans events out to websocket subscribers. Slow subscribers miss
// messages rather than block the pipeline.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	now     func() time.Time
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{}), now: time.Now}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) StatusChanged(meetingID string, status meeting.Status, message string) {
	h.broadcastEvent(MeetingStatusEvent{
		Event:     newEvent("meeting_status", h.now()),
		MeetingID: meetingID,
		Status:    status,
		Message:   message,
	})
}

func (h *Hub) SegmentsAdded(meetingID string, segments []transcribe.Segment) {
	h.broadcastEvent(SegmentsAddedEvent{
		Event:     newEvent("segments_added", h.now()),
		MeetingID: meetingID,
		Segments:  segments,
	})
}

func (h *Hub) SuggestionsUpdated(meetingID string, s suggest.Suggestions) {
	h.broadcastEvent(SuggestionsUpdatedEvent{
		Event:       newEvent("suggestions_updated", h.now()),
		MeetingID:   meetingID,
		Suggestions: s,
	})
}

// SummaryReady lets the hub sit among the completion notifiers.
func (h *Hub) SummaryReady(_ context.Context, n notify.Notification) error {
	event := SummaryReadyEvent{
		Event:     newEvent("summary_ready", h.now()),
		MeetingID: n.MeetingID,
	}
	if s := n.Meeting.Summary; s != nil {
		event.Summary = s.Summary
		event.Template = s.Template
	}
	h.broadcastEvent(event)
	return nil
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("event marshal failed", "error", err)
		return
	}
	h.Broadcast(payload)
}
