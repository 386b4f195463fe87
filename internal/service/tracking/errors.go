package tracking

import "errors"

var (
	// ErrRecordNotFound means no record exists for the (token, recipient) pair.
	ErrRecordNotFound = errors.New("tracking record not found")

	// ErrMissingDestination is returned for a click without a target URL.
	ErrMissingDestination = errors.New("click destination url is required")

	// ErrMissingRecipient is returned when the recipient id is absent.
	ErrMissingRecipient = errors.New("recipient id is required")
)
