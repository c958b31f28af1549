// Package notify delivers "summary ready" events to interested parties.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sjawhar/ghost-minutes/internal/meeting"
	"github.com/sjawhar/ghost-minutes/internal/storage"
)

type Notification struct {
	MeetingID  string
	OwnerEmail string
	Meeting    meeting.Meeting
}

type Notifier interface {
	SummaryReady(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) SummaryReady(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.SummaryReady(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Archive writes the finished minutes to the local archive directory.
type Archive struct {
	writer *storage.Writer
}

func NewArchive(w *storage.Writer) *Archive {
	return &Archive{writer: w}
}

func (a *Archive) SummaryReady(_ context.Context, n Notification) error {
	if _, err := a.writer.Write(n.Meeting); err != nil {
		return fmt.Errorf("archive meeting %s: %w", n.MeetingID, err)
	}
	return nil
}
