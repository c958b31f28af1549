package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/sjawhar/ghost-minutes/internal/audiosrc"
	"github.com/sjawhar/ghost-minutes/internal/meeting"
	"github.com/sjawhar/ghost-minutes/internal/pipeline"
	"github.com/sjawhar/ghost-minutes/internal/storage"
	"github.com/sjawhar/ghost-minutes/internal/suggest"
	"github.com/sjawhar/ghost-minutes/internal/transcribe"
)

var meetingIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const maxRequestBytes = 4 << 20

type MeetingStore interface {
	GetMeeting(ctx context.Context, id string) (meeting.Meeting, error)
	ListMeetings(ctx context.Context, limit int) ([]meeting.Meeting, error)
	SaveNotes(ctx context.Context, id, notes string) error
}

type Processor interface {
	Create(ctx context.Context, req pipeline.NewMeeting, opts pipeline.RunOptions) (meeting.Meeting, *pipeline.Task, error)
	AppendSegments(ctx context.Context, id string, segments []transcribe.Segment) error
	AnalyzeLive(ctx context.Context, id string) (suggest.Suggestions, error)
	End(ctx context.Context, id string, opts pipeline.RunOptions) (*pipeline.Task, error)
	Regenerate(ctx context.Context, id string, opts pipeline.RunOptions) (*pipeline.Task, error)
	Retry(ctx context.Context, id string, opts pipeline.RunOptions) (*pipeline.Task, error)
	Tasks() []pipeline.TaskInfo
}

type createMeetingRequest struct {
	ID         string               `json:"id"`
	Title      string               `json:"title"`
	OwnerEmail string               `json:"owner_email"`
	AudioRef   string               `json:"audio_ref"`
	Language   string               `json:"language"`
	Notes      string               `json:"notes"`
	Template   string               `json:"template"`
	Segments   []transcribe.Segment `json:"segments"`
}

type appendSegmentsRequest struct {
	Segments []transcribe.Segment `json:"segments"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type regenerateRequest struct {
	Force bool `json:"force"`
}

type acceptedResponse struct {
	Status    meeting.Status `json:"status"`
	MeetingID string         `json:"meeting_id"`
	TaskID    string         `json:"task_id"`
}

type triggerFunc func(p Processor, ctx context.Context, id string, opts pipeline.RunOptions) (*pipeline.Task, error)

func registerAPIRoutes(mux *http.ServeMux, deps Deps) {
	store, proc := deps.Store, deps.Processor

	mux.HandleFunc("POST /api/meetings", func(w http.ResponseWriter, r *http.Request) {
		if proc == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "processing not configured")
			return
		}
		var req createMeetingRequest
		if !decodeBody(w, r, &req, false) {
			return
		}
		if req.ID != "" && !validMeetingID(req.ID) {
			writeJSONError(w, http.StatusBadRequest, "invalid meeting id")
			return
		}
		if req.AudioRef != "" && len(req.Segments) > 0 {
			writeJSONError(w, http.StatusBadRequest, "segments and audio_ref are exclusive")
			return
		}

		opts := runOptions(r)
		m, task, err := proc.Create(r.Context(), pipeline.NewMeeting{
			ID:         req.ID,
			Title:      req.Title,
			OwnerEmail: req.OwnerEmail,
			AudioRef:   req.AudioRef,
			Language:   req.Language,
			Notes:      req.Notes,
			Template:   req.Template,
		}, opts)
		if err != nil {
			writeProcessingError(w, "create meeting", err)
			return
		}
		if len(req.Segments) > 0 {
			if err := proc.AppendSegments(r.Context(), m.ID, req.Segments); err != nil {
				writeProcessingError(w, "append segments", err)
				return
			}
		}

		if task != nil && !opts.Wait {
			writeJSON(w, http.StatusAccepted, acceptedResponse{Status: meeting.StatusProcessing, MeetingID: m.ID, TaskID: task.ID})
			return
		}
		writeMeeting(w, r, store, m.ID, http.StatusCreated)
	})

	mux.HandleFunc("GET /api/meetings", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeJSONError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		meetings, err := store.ListMeetings(r.Context(), limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list meetings: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, meetings)
	})

	mux.HandleFunc("GET /api/meetings/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathMeetingID(w, r)
		if !ok {
			return
		}
		writeMeeting(w, r, store, id, http.StatusOK)
	})

	mux.HandleFunc("GET /api/meetings/{id}/blocks", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathMeetingID(w, r)
		if !ok {
			return
		}
		m, err := store.GetMeeting(r.Context(), id)
		if err != nil {
			writeProcessingError(w, "get meeting", err)
			return
		}
		blocks := transcribe.Group(m.Segments, deps.Grouping)
		if blocks == nil {
			blocks = []transcribe.Block{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"meeting_id": id, "blocks": blocks})
	})

	mux.HandleFunc("PUT /api/meetings/{id}/notes", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathMeetingID(w, r)
		if !ok {
			return
		}
		var req notesRequest
		if !decodeBody(w, r, &req, false) {
			return
		}
		if err := store.SaveNotes(r.Context(), id, req.Notes); err != nil {
			writeProcessingError(w, "save notes", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/meetings/{id}/segments", func(w http.ResponseWriter, r *http.Request) {
		if proc == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "processing not configured")
			return
		}
		id, ok := pathMeetingID(w, r)
		if !ok {
			return
		}
		var req appendSegmentsRequest
		if !decodeBody(w, r, &req, false) {
			return
		}
		if len(req.Segments) == 0 {
			writeJSONError(w, http.StatusBadRequest, "no segments")
			return
		}
		if err := proc.AppendSegments(r.Context(), id, req.Segments); err != nil {
			writeProcessingError(w, "append segments", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/meetings/{id}/analyze", func(w http.ResponseWriter, r *http.Request) {
		if proc == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "processing not configured")
			return
		}
		id, ok := pathMeetingID(w, r)
		if !ok {
			return
		}
		s, err := proc.AnalyzeLive(r.Context(), id)
		if err != nil {
			writeProcessingError(w, "analyze meeting", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	})

	registerTrigger(mux, "end", deps, Processor.End)
	registerTrigger(mux, "retry", deps, Processor.Retry)
	registerTrigger(mux, "regenerate", deps, Processor.Regenerate)

	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		tasks := []pipeline.TaskInfo{}
		if proc != nil {
			tasks = proc.Tasks()
		}
		writeJSON(w, http.StatusOK, tasks)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if deps.Hooks.Warnings != nil {
			warnings = deps.Hooks.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"processing": proc != nil, "warnings": warnings})
	})

	mux.HandleFunc("GET /api/templates", func(w http.ResponseWriter, r *http.Request) {
		templates := map[string]string{}
		if deps.Hooks.Templates != nil {
			templates = deps.Hooks.Templates()
		}
		writeJSON(w, http.StatusOK, templates)
	})
}

// registerTrigger wires one processing trigger. The regenerate body may
// carry {"force": true}; the other triggers take no body.
func registerTrigger(mux *http.ServeMux, name string, deps Deps, trigger triggerFunc) {
	mux.HandleFunc("POST /api/meetings/{id}/"+name, func(w http.ResponseWriter, r *http.Request) {
		if deps.Processor == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "processing not configured")
			return
		}
		id, ok := pathMeetingID(w, r)
		if !ok {
			return
		}

		opts := runOptions(r)
		if name == "regenerate" {
			var req regenerateRequest
			if !decodeBody(w, r, &req, true) {
				return
			}
			opts.Force = opts.Force || req.Force
		}

		task, err := trigger(deps.Processor, r.Context(), id, opts)
		if err != nil {
			writeProcessingError(w, name+" meeting", err)
			return
		}
		if !opts.Wait {
			writeJSON(w, http.StatusAccepted, acceptedResponse{Status: meeting.StatusProcessing, MeetingID: id, TaskID: task.ID})
			return
		}
		writeMeeting(w, r, deps.Store, id, http.StatusOK)
	})
}

func runOptions(r *http.Request) pipeline.RunOptions {
	q := r.URL.Query()
	wait, _ := strconv.ParseBool(q.Get("wait"))
	force, _ := strconv.ParseBool(q.Get("force"))
	return pipeline.RunOptions{Wait: wait, Force: force}
}

func pathMeetingID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !validMeetingID(id) {
		writeJSONError(w, http.StatusBadRequest, "invalid meeting id")
		return "", false
	}
	return id, true
}

func validMeetingID(id string) bool {
	return meetingIDPattern.MatchString(id)
}

// decodeBody reads a JSON body into v. With optional set, an empty body is
// accepted.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	return false
}

func writeMeeting(w http.ResponseWriter, r *http.Request, store MeetingStore, id string, status int) {
	m, err := store.GetMeeting(r.Context(), id)
	if err != nil {
		writeProcessingError(w, "get meeting", err)
		return
	}
	writeJSON(w, status, m)
}

func writeProcessingError(w http.ResponseWriter, op string, err error) {
	writeJSONError(w, statusForError(err), fmt.Sprintf("%s: %v", op, err))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, audiosrc.ErrForbidden),
		errors.Is(err, audiosrc.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrAlreadyProcessing),
		errors.Is(err, pipeline.ErrAlreadyCompleted),
		errors.Is(err, pipeline.ErrInvalidTransition),
		errors.Is(err, pipeline.ErrNotActive),
		errors.Is(err, storage.ErrStatusConflict):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrNoTranscriber), storage.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
