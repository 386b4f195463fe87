package recipient

import "errors"

// Sentinel errors for recipient resolution.
var (
	ErrNoEligibleRecipients = errors.New("no active recipients to send to")
	ErrNotFound             = errors.New("recipient not found")
)
