package pipeline

import (
	"errors"
	"fmt"

	"github.com/sjawhar/ghost-minutes/internal/meeting"
	"github.com/sjawhar/ghost-minutes/internal/storage"
)

var (
	ErrAlreadyProcessing = errors.New("meeting is already being processed")
	ErrAlreadyCompleted  = errors.New("meeting summary already completed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotActive         = errors.New("meeting is not active")
	ErrNoTranscript      = errors.New("no transcript available")
	ErrNoTranscriber     = errors.New("transcription is not configured")
)

// conflictError translates a lost status CAS into the error the caller of
// an operation expects.
func conflictError(err error, onCompleted error) error {
	var conflict *storage.StatusConflictError
	if !errors.As(err, &conflict) {
		return err
	}
	switch conflict.Current {
	case meeting.StatusProcessing:
		return fmt.Errorf("meeting %s: %w", conflict.ID, ErrAlreadyProcessing)
	case meeting.StatusCompleted:
		if onCompleted != nil {
			return fmt.Errorf("meeting %s: %w", conflict.ID, onCompleted)
		}
	}
	return fmt.Errorf("meeting %s cannot go from %s to %s: %w", conflict.ID, conflict.Current, conflict.Want, ErrInvalidTransition)
}
