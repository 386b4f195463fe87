package sending

import (
	"context"

	"github.com/ignite/bulkmail/internal/domain"
)

// Repository reads per-owner transport settings.
type Repository interface {
	// Get returns ErrNotFound when the owner has no stored settings.
	Get(ctx context.Context, ownerID string) (*domain.TransportSettings, error)
}
