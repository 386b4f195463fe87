package sending

import "errors"

var (
	// ErrNotFound means the owner has no stored transport settings.
	ErrNotFound = errors.New("transport settings not found")

	// ErrTransportNotConfigured means the resolved settings cannot open a
	// session (missing host, credentials or sender).
	ErrTransportNotConfigured = errors.New("mail transport is not configured")
)
