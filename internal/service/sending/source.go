package sending

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/bulkmail/internal/domain"
)

// Source resolves transport settings for an owner. It is safe for
// concurrent use.
type Source struct {
	repo     Repository
	fallback domain.TransportSettings
}

// NewSource creates a source. repo may be nil, in which case every owner
// uses fallback.
func NewSource(repo Repository, fallback domain.TransportSettings) *Source {
	return &Source{repo: repo, fallback: fallback}
}

// For returns the owner's settings, or the fallback when none are stored.
// Settings that cannot open a session yield ErrTransportNotConfigured.
func (s *Source) For(ctx context.Context, ownerID string) (domain.TransportSettings, error) {
	settings := s.fallback
	if s.repo != nil {
		stored, err := s.repo.Get(ctx, ownerID)
		switch {
		case err == nil:
			settings = *stored
		case errors.Is(err, ErrNotFound):
		default:
			return domain.TransportSettings{}, fmt.Errorf("load transport settings: %w", err)
		}
	}
	settings.OwnerID = ownerID
	if settings.Kind == "" {
		settings.Kind = domain.TransportSMTP
	}
	if !settings.Configured() {
		return settings, ErrTransportNotConfigured
	}
	return settings, nil
}
