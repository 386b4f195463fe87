package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotEditable       = errors.New("campaign cannot be edited while sending or after it was sent")
	ErrNotDeletable      = errors.New("campaign cannot be deleted while sending")
	ErrInvalidInput      = errors.New("invalid campaign input")
)
