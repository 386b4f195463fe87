package tracking

import (
	"context"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
)

// Repository persists tracking records. Implementations must be safe for
// concurrent use; each Record* method is atomic with the campaign counter
// update it gates.
type Repository interface {
	// QueueRecipients creates or resets one record per recipient to queued.
	// Engagement already recorded on an existing record is preserved.
	QueueRecipients(ctx context.Context, campaignID, token string, recipients []domain.Recipient) error

	// MarkSent records a successful delivery. It never regresses a record
	// that already shows engagement.
	MarkSent(ctx context.Context, token, recipientID string, at time.Time) error

	// MarkFailed records a transport failure with its detail.
	MarkFailed(ctx context.Context, token, recipientID, reason string, at time.Time) error

	// RecordOpen increments the record's open counter. Returns
	// ErrRecordNotFound when the pair has no record.
	RecordOpen(ctx context.Context, token, recipientID string, meta domain.ClientMeta, at time.Time) (domain.EngagementResult, error)

	// RecordClick increments the click counter and appends to the click log.
	RecordClick(ctx context.Context, token, recipientID, url string, meta domain.ClientMeta, at time.Time) (domain.EngagementResult, error)

	// RecordUnsubscribe moves the record to unsubscribed. FirstTime is set
	// only on the call that performed the transition.
	RecordUnsubscribe(ctx context.Context, token, recipientID string, at time.Time) (domain.EngagementResult, error)

	// ListByToken returns every record for a dispatch token with its click log.
	ListByToken(ctx context.Context, token string) ([]domain.TrackingRecord, error)

	// OwnerTotals counts the owner's delivered records and those with any
	// open or click.
	OwnerTotals(ctx context.Context, ownerID string) (sent, opened int, err error)
}
