package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// maxTaskHistory bounds how many finished tasks Tasks reports.
const maxTaskHistory = 200

// Task is a handle on one background job.
type Task struct {
	ID        string
	Kind      string
	MeetingID string

	mu         sync.Mutex
	state      TaskState
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	err        error
	done       chan struct{}
}

// TaskInfo is a point-in-time copy of a Task.
type TaskInfo struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	MeetingID  string     `json:"meeting_id"`
	State      TaskState  `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) Info() TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	info := TaskInfo{
		ID:        t.ID,
		Kind:      t.Kind,
		MeetingID: t.MeetingID,
		State:     t.state,
		CreatedAt: t.createdAt,
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		info.StartedAt = &started
	}
	if !t.finishedAt.IsZero() {
		finished := t.finishedAt
		info.FinishedAt = &finished
	}
	if t.err != nil {
		info.Error = t.err.Error()
	}
	return info
}

func (t *Task) setRunning(now time.Time) {
	t.mu.Lock()
	t.state = TaskRunning
	t.startedAt = now
	t.mu.Unlock()
}

func (t *Task) finish(now time.Time, err error) {
	t.mu.Lock()
	t.finishedAt = now
	t.err = err
	t.state = TaskSucceeded
	if err != nil {
		t.state = TaskFailed
	}
	t.mu.Unlock()
	close(t.done)
}

// Queue runs tasks in the background with bounded concurrency. Tasks are
// detached from the submitting request and are never cancelled.
type Queue struct {
	sem *semaphore.Weighted
	now func() time.Time

	mu    sync.Mutex
	tasks []*Task
	wg    sync.WaitGroup
}

func NewQueue(workers int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{sem: semaphore.NewWeighted(int64(workers)), now: time.Now}
}

func (q *Queue) Submit(kind, meetingID string, fn func(ctx context.Context) error) *Task {
	task := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		MeetingID: meetingID,
		state:     TaskQueued,
		createdAt: q.now().UTC(),
		done:      make(chan struct{}),
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.prune()
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ctx := context.Background()
		if err := q.sem.Acquire(ctx, 1); err != nil {
			task.finish(q.now().UTC(), err)
			return
		}
		defer q.sem.Release(1)

		task.setRunning(q.now().UTC())
		slog.Debug("task started", "task_id", task.ID, "kind", kind, "meeting_id", meetingID)
		err := runTask(ctx, fn)
		task.finish(q.now().UTC(), err)
		if err != nil {
			slog.Warn("task failed", "task_id", task.ID, "kind", kind, "meeting_id", meetingID, "error", err)
			return
		}
		slog.Info("task finished", "task_id", task.ID, "kind", kind, "meeting_id", meetingID)
	}()
	return task
}

func runTask(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// prune drops the oldest finished tasks beyond the history bound. Callers
// hold q.mu.
func (q *Queue) prune() {
	excess := len(q.tasks) - maxTaskHistory
	if excess <= 0 {
		return
	}
	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if excess > 0 && isFinished(t) {
			excess--
			continue
		}
		kept = append(kept, t)
	}
	q.tasks = kept
}

func isFinished(t *Task) bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Tasks lists known tasks, newest first.
func (q *Queue) Tasks() []TaskInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]TaskInfo, 0, len(q.tasks))
	for i := len(q.tasks) - 1; i >= 0; i-- {
		out = append(out, q.tasks[i].Info())
	}
	return out
}

// Wait blocks until every submitted task has finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}
