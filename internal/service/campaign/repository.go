package campaign

import (
	"context"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a campaign owned by ownerID. Returns ErrNotFound otherwise.
	Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error)

	// GetByToken looks a campaign up by its dispatch token.
	GetByToken(ctx context.Context, token string) (*domain.Campaign, error)

	// List returns the owner's campaigns ordered by created_at DESC.
	List(ctx context.Context, ownerID string, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update applies non-nil fields to a draft or paused campaign.
	// Returns ErrNotEditable when the stored status forbids edits.
	Update(ctx context.Context, ownerID, id string, u UpdateFields) error

	// Delete removes a campaign that is not sending.
	Delete(ctx context.Context, ownerID, id string) error

	// BeginSending moves a draft campaign to sending and stores the
	// recipient total. Returns ErrInvalidTransition if it was not a draft.
	BeginSending(ctx context.Context, id string, total int) error

	// RecordProgress stores running counters and stamps last_progress_at.
	RecordProgress(ctx context.Context, id string, sent, failed int) error

	// Finish moves a sending campaign to sent with final counters.
	Finish(ctx context.Context, id string, sent, failed int, at time.Time) error

	// Revert rolls a sending campaign back to draft.
	Revert(ctx context.Context, id string) error

	// ListStale returns sending campaigns without progress since before.
	ListStale(ctx context.Context, before time.Time) ([]domain.Campaign, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name        *string
	Subject     *string
	HTMLContent *string
	TextContent *string
	Attachments *[]domain.Attachment
}

// IsEmpty reports whether no field is set.
func (u UpdateFields) IsEmpty() bool {
	return u.Name == nil && u.Subject == nil && u.HTMLContent == nil && u.TextContent == nil && u.Attachments == nil
}
