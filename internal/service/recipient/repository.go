package recipient

import (
	"context"

	"github.com/ignite/bulkmail/internal/domain"
)

// Repository defines read access to the owner's recipients plus the one
// write this core performs on them (unsubscribe).
type Repository interface {
	// ListActive returns active recipients of ownerID in a stable order
	// (created_at, id). A non-empty groupIDs narrows the result to members
	// of any of those groups.
	ListActive(ctx context.Context, ownerID string, groupIDs []string) ([]domain.Recipient, error)

	// MarkUnsubscribed flips a recipient's membership status.
	MarkUnsubscribed(ctx context.Context, id string) error

	// CountByOwner returns how many recipients ownerID has in any status.
	CountByOwner(ctx context.Context, ownerID string) (int, error)
}
