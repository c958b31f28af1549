package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sjawhar/ghost-minutes/internal/storage"
)

// linearBackoff waits delay, 2*delay, ... and stops after attempts calls.
func linearBackoff(attempts int, delay time.Duration) retry.Backoff {
	n := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		if n >= attempts {
			return 0, true
		}
		return time.Duration(n) * delay, false
	})
}

// persist runs a store write, retrying transient failures only.
func (p *Processor) persist(ctx context.Context, op, meetingID string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, linearBackoff(p.opts.PersistAttempts, p.opts.PersistDelay), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !storage.IsTransient(err) {
			return err
		}
		slog.Warn("pipeline: transient store error", "op", op, "meeting_id", meetingID, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}
