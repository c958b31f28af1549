// Package pipeline drives a meeting from recording to finished minutes.
// The persisted status is the only coordination signal: every entry into
// processing is a compare-and-set on the stored record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sjawhar/ghost-minutes/internal/audiosrc"
	"github.com/sjawhar/ghost-minutes/internal/meeting"
	"github.com/sjawhar/ghost-minutes/internal/notify"
	"github.com/sjawhar/ghost-minutes/internal/suggest"
	"github.com/sjawhar/ghost-minutes/internal/summary"
	"github.com/sjawhar/ghost-minutes/internal/transcribe"
)

type Store interface {
	CreateMeeting(ctx context.Context, m meeting.Meeting) error
	GetMeeting(ctx context.Context, id string) (meeting.Meeting, error)
	AppendSegments(ctx context.Context, id string, segments []transcribe.Segment) error
	ReplaceSegments(ctx context.Context, id string, segments []transcribe.Segment) error
	SaveSuggestions(ctx context.Context, id string, s suggest.Suggestions) error
	TransitionStatus(ctx context.Context, id string, to meeting.Status, from ...meeting.Status) error
	Complete(ctx context.Context, id string, s meeting.Summary) error
	Fail(ctx context.Context, id string, message string) error
}

type AudioSource interface {
	Check(ref string) error
	Fetch(ctx context.Context, ref string) (audiosrc.Audio, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, filename, language string, progress transcribe.Progress) ([]transcribe.Segment, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, req summary.Request) (meeting.Summary, error)
}

type Extractor interface {
	Extract(ctx context.Context, window []string, existing suggest.Suggestions) (suggest.Suggestions, error)
}

// Events receives progress for live clients. Implementations must not block.
type Events interface {
	StatusChanged(meetingID string, status meeting.Status, message string)
	SegmentsAdded(meetingID string, segments []transcribe.Segment)
	SuggestionsUpdated(meetingID string, s suggest.Suggestions)
}

type Deps struct {
	Store       Store
	Audio       AudioSource
	Transcriber Transcriber
	Summarizer  Summarizer
	Extractor   Extractor
	Events      Events
	Notifier    notify.Notifier
}

type Options struct {
	Caps            suggest.Caps
	LiveWindow      int
	PersistAttempts int
	PersistDelay    time.Duration
	Workers         int
	NotifyTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Caps == (suggest.Caps{}) {
		o.Caps = suggest.DefaultCaps()
	}
	if o.LiveWindow <= 0 {
		o.LiveWindow = 40
	}
	if o.PersistAttempts <= 0 {
		o.PersistAttempts = 3
	}
	if o.PersistDelay <= 0 {
		o.PersistDelay = 200 * time.Millisecond
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 2 * time.Minute
	}
	return o
}

// RunOptions tune a processing trigger. Wait blocks until the task has
// resolved. Force lets Regenerate re-run a completed meeting.
type RunOptions struct {
	Wait  bool
	Force bool
}

type NewMeeting struct {
	ID         string
	Title      string
	OwnerEmail string
	AudioRef   string
	Language   string
	Notes      string
	Template   string
}

const (
	KindProcess    = "process"
	KindRegenerate = "regenerate"
	KindRetry      = "retry"
)

type Processor struct {
	deps  Deps
	opts  Options
	queue *Queue
	now   func() time.Time
	live  meetingLocks

	notifications sync.WaitGroup
}

func New(deps Deps, opts Options) *Processor {
	opts = opts.withDefaults()
	return &Processor{
		deps:  deps,
		opts:  opts,
		queue: NewQueue(opts.Workers),
		now:   time.Now,
	}
}

// Tasks lists background tasks, newest first.
func (p *Processor) Tasks() []TaskInfo {
	return p.queue.Tasks()
}

// Wait blocks until queued tasks and pending notifications are done.
func (p *Processor) Wait() {
	p.queue.Wait()
	p.notifications.Wait()
}

// Create stores a new meeting. Without an audio reference it starts active
// and collects live segments; with one it goes straight to processing.
func (p *Processor) Create(ctx context.Context, req NewMeeting, opts RunOptions) (meeting.Meeting, *Task, error) {
	now := p.now().UTC()
	m := meeting.Meeting{
		ID:         strings.TrimSpace(req.ID),
		Title:      strings.TrimSpace(req.Title),
		OwnerEmail: strings.TrimSpace(req.OwnerEmail),
		Status:     meeting.StatusActive,
		AudioRef:   strings.TrimSpace(req.AudioRef),
		Language:   req.Language,
		Notes:      req.Notes,
		Template:   req.Template,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.AudioRef != "" {
		if p.deps.Audio == nil {
			return meeting.Meeting{}, nil, ErrNoTranscriber
		}
		if err := p.deps.Audio.Check(m.AudioRef); err != nil {
			return meeting.Meeting{}, nil, err
		}
		m.Status = meeting.StatusProcessing
	}

	err := p.persist(ctx, "create meeting", m.ID, func(ctx context.Context) error {
		return p.deps.Store.CreateMeeting(ctx, m)
	})
	if err != nil {
		return meeting.Meeting{}, nil, err
	}
	slog.Info("meeting created", "meeting_id", m.ID, "status", m.Status)
	p.statusChanged(m.ID, m.Status, "")

	if m.Status != meeting.StatusProcessing {
		return m, nil, nil
	}
	return m, p.submit(KindProcess, m.ID, opts), nil
}

// AppendSegments adds live transcript segments to an active meeting.
func (p *Processor) AppendSegments(ctx context.Context, id string, segments []transcribe.Segment) error {
	m, err := p.deps.Store.GetMeeting(ctx, id)
	if err != nil {
		return err
	}
	if m.Status != meeting.StatusActive {
		return fmt.Errorf("meeting %s is %s: %w", id, m.Status, ErrNotActive)
	}

	err = p.persist(ctx, "append segments", id, func(ctx context.Context) error {
		return p.deps.Store.AppendSegments(ctx, id, segments)
	})
	if err != nil {
		return err
	}
	if p.deps.Events != nil {
		p.deps.Events.SegmentsAdded(id, segments)
	}
	return nil
}

// AnalyzeLive runs one incremental suggestion pass over the latest
// transcript lines and stores the deduplicated, capped result.
func (p *Processor) AnalyzeLive(ctx context.Context, id string) (suggest.Suggestions, error) {
	m, err := p.deps.Store.GetMeeting(ctx, id)
	if err != nil {
		return suggest.Suggestions{}, err
	}
	if m.Status != meeting.StatusActive {
		return suggest.Suggestions{}, fmt.Errorf("meeting %s is %s: %w", id, m.Status, ErrNotActive)
	}

	lines := m.Transcript()
	if len(lines) == 0 {
		return m.Suggestions, nil
	}
	if len(lines) > p.opts.LiveWindow {
		lines = lines[len(lines)-p.opts.LiveWindow:]
	}

	candidates, err := p.deps.Extractor.Extract(ctx, lines, m.Suggestions)
	if err != nil {
		return suggest.Suggestions{}, fmt.Errorf("analyze meeting %s: %w", id, err)
	}

	// Merge into the latest stored suggestions, one pass per meeting at a time.
	unlock := p.live.lock(id)
	defer unlock()

	m, err = p.deps.Store.GetMeeting(ctx, id)
	if err != nil {
		return suggest.Suggestions{}, err
	}
	if m.Status != meeting.StatusActive {
		return suggest.Suggestions{}, fmt.Errorf("meeting %s is %s: %w", id, m.Status, ErrNotActive)
	}

	merged := suggest.Truncate(suggest.Merge(m.Suggestions, candidates), p.opts.Caps)
	err = p.persist(ctx, "save suggestions", id, func(ctx context.Context) error {
		return p.deps.Store.SaveSuggestions(ctx, id, merged)
	})
	if err != nil {
		return suggest.Suggestions{}, err
	}
	if p.deps.Events != nil {
		p.deps.Events.SuggestionsUpdated(id, merged)
	}
	return merged, nil
}

// End closes a live meeting and processes it.
func (p *Processor) End(ctx context.Context, id string, opts RunOptions) (*Task, error) {
	if err := p.enter(ctx, id, nil, meeting.StatusActive); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %w", ErrNotActive, err)
		}
		return nil, err
	}
	return p.submit(KindProcess, id, opts), nil
}

// Regenerate re-runs processing. A completed meeting is left alone unless
// opts.Force is set.
func (p *Processor) Regenerate(ctx context.Context, id string, opts RunOptions) (*Task, error) {
	from := []meeting.Status{meeting.StatusActive, meeting.StatusError}
	if opts.Force {
		from = append(from, meeting.StatusCompleted)
	}
	if err := p.enter(ctx, id, ErrAlreadyCompleted, from...); err != nil {
		return nil, err
	}
	return p.submit(KindRegenerate, id, opts), nil
}

// Retry restarts a meeting that ended in error.
func (p *Processor) Retry(ctx context.Context, id string, opts RunOptions) (*Task, error) {
	if err := p.enter(ctx, id, nil, meeting.StatusError); err != nil {
		return nil, err
	}
	return p.submit(KindRetry, id, opts), nil
}

func (p *Processor) enter(ctx context.Context, id string, onCompleted error, from ...meeting.Status) error {
	err := p.persist(ctx, "enter processing", id, func(ctx context.Context) error {
		return p.deps.Store.TransitionStatus(ctx, id, meeting.StatusProcessing, from...)
	})
	if err != nil {
		return conflictError(err, onCompleted)
	}
	p.statusChanged(id, meeting.StatusProcessing, "")
	return nil
}

func (p *Processor) submit(kind, id string, opts RunOptions) *Task {
	task := p.queue.Submit(kind, id, func(ctx context.Context) error {
		return p.process(ctx, id)
	})
	if opts.Wait {
		<-task.Done()
	}
	return task
}

// process takes a meeting in processing to completed or error. It always
// leaves a terminal status behind, panics included.
func (p *Processor) process(ctx context.Context, id string) (err error) {
	var partial bool
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processing panicked: %v", r)
		}
		if err != nil {
			if partial {
				p.discardPartial(id)
			}
			p.fail(id, err)
		}
	}()

	m, err := p.deps.Store.GetMeeting(ctx, id)
	if err != nil {
		return fmt.Errorf("load meeting: %w", err)
	}

	segments := m.Segments
	if len(transcribe.Lines(segments)) == 0 && m.AudioRef != "" {
		segments, err = p.transcribe(ctx, m, &partial)
		if err != nil {
			return err
		}
	}

	lines := transcribe.Lines(segments)
	if len(lines) == 0 {
		return ErrNoTranscript
	}

	result, err := p.deps.Summarizer.Summarize(ctx, summary.Request{
		Lines:       lines,
		Suggestions: m.Suggestions,
		Notes:       m.Notes,
		Template:    m.Template,
	})
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	err = p.persist(ctx, "complete meeting", id, func(ctx context.Context) error {
		return p.deps.Store.Complete(ctx, id, result)
	})
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}

	slog.Info("meeting completed", "meeting_id", id, "template", result.Template)
	p.statusChanged(id, meeting.StatusCompleted, "")

	m.Status = meeting.StatusCompleted
	m.Segments = segments
	m.Summary = &result
	p.notifyReady(m)
	return nil
}

// transcribe sets *partial while unmerged progress segments are the stored
// transcript, so a failed run can drop them.
func (p *Processor) transcribe(ctx context.Context, m meeting.Meeting, partial *bool) ([]transcribe.Segment, error) {
	if p.deps.Transcriber == nil {
		return nil, ErrNoTranscriber
	}
	audio, err := p.deps.Audio.Fetch(ctx, m.AudioRef)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}

	progress := func(segments []transcribe.Segment) {
		*partial = true
		err := p.persist(ctx, "store partial transcript", m.ID, func(ctx context.Context) error {
			return p.deps.Store.ReplaceSegments(ctx, m.ID, segments)
		})
		if err != nil {
			slog.Warn("pipeline: partial transcript not stored", "meeting_id", m.ID, "error", err)
			return
		}
		if p.deps.Events != nil {
			p.deps.Events.SegmentsAdded(m.ID, segments)
		}
	}

	segments, err := p.deps.Transcriber.Transcribe(ctx, audio.Data, audio.Filename, m.Language, progress)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	err = p.persist(ctx, "store transcript", m.ID, func(ctx context.Context) error {
		return p.deps.Store.ReplaceSegments(ctx, m.ID, segments)
	})
	if err != nil {
		return nil, fmt.Errorf("store transcript: %w", err)
	}
	*partial = false
	slog.Info("meeting transcribed", "meeting_id", m.ID, "segments", len(segments))
	return segments, nil
}

// discardPartial clears a transcript left by an unfinished transcription so
// a retry transcribes the audio again.
func (p *Processor) discardPartial(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := p.persist(ctx, "discard partial transcript", id, func(ctx context.Context) error {
		return p.deps.Store.ReplaceSegments(ctx, id, nil)
	})
	if err != nil {
		slog.Error("pipeline: partial transcript not discarded", "meeting_id", id, "error", err)
	}
}

func (p *Processor) fail(id string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := cause.Error()
	slog.Error("meeting processing failed", "meeting_id", id, "error", cause)
	err := p.persist(ctx, "fail meeting", id, func(ctx context.Context) error {
		return p.deps.Store.Fail(ctx, id, msg)
	})
	if err != nil {
		slog.Error("pipeline: could not record failure", "meeting_id", id, "error", err)
		return
	}
	p.statusChanged(id, meeting.StatusError, msg)
}

func (p *Processor) statusChanged(id string, status meeting.Status, msg string) {
	if p.deps.Events != nil {
		p.deps.Events.StatusChanged(id, status, msg)
	}
}

// notifyReady is fire-and-forget: failures are logged and never touch the
// meeting status.
func (p *Processor) notifyReady(m meeting.Meeting) {
	if p.deps.Notifier == nil {
		return
	}
	n := notify.Notification{MeetingID: m.ID, OwnerEmail: m.OwnerEmail, Meeting: m}

	p.notifications.Add(1)
	go func() {
		defer p.notifications.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("summary notification panicked", "meeting_id", m.ID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.opts.NotifyTimeout)
		defer cancel()
		if err := p.deps.Notifier.SummaryReady(ctx, n); err != nil {
			slog.Warn("summary notification failed", "meeting_id", m.ID, "error", err)
		}
	}()
}

// meetingLocks hands out one mutex per meeting id and forgets it once no
// caller holds or waits for it.
type meetingLocks struct {
	mu    sync.Mutex
	locks map[string]*meetingLock
}

type meetingLock struct {
	sync.Mutex
	refs int
}

func (l *meetingLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*meetingLock)
	}
	ml, ok := l.locks[id]
	if !ok {
		ml = &meetingLock{}
		l.locks[id] = ml
	}
	ml.refs++
	l.mu.Unlock()

	ml.Lock()
	return func() {
		ml.Unlock()
		l.mu.Lock()
		ml.refs--
		if ml.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
