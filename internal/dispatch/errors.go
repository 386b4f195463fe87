package dispatch

import "errors"

var (
	// ErrNotDraft is returned when dispatch is requested for a campaign
	// that is not a draft.
	ErrNotDraft = errors.New("campaign is not in draft status")

	// ErrInProgress is returned when another dispatch of the same campaign
	// holds the lock.
	ErrInProgress = errors.New("campaign dispatch already in progress")

	// ErrShuttingDown is returned for dispatches requested after Shutdown.
	ErrShuttingDown = errors.New("dispatch engine is shutting down")
)
