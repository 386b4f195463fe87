// Package tracking serves the public open, click and unsubscribe endpoints
// embedded in outgoing mail, and moves engagement events to the ledger either
// in-process or through an SQS queue.
package tracking
