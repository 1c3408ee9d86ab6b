package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrPrecondition     = errors.New("precondition failed")
	ErrInvalidState     = errors.New("invalid state")
	ErrProviderFailure  = errors.New("provider failure")
	ErrInvalidResponse  = errors.New("invalid provider response")
	ErrTaskCancelled    = errors.New("task cancelled")
	ErrUnsupportedFrame = errors.New("unsupported frame reference")

	// ErrTaskFinished is returned when a write would move a terminal task to
	// another status. Only ResetForRetry leaves a terminal state.
	ErrTaskFinished = fmt.Errorf("%w: task already finished", ErrInvalidState)
)
