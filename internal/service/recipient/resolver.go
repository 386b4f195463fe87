package recipient

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/bulkmail/internal/domain"
)

// Resolver returns the recipients a dispatch run should target.
type Resolver struct {
	repo Repository
}

// NewResolver creates a resolver backed by repo.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the owner's active recipients, optionally limited to the
// given groups, deduplicated by id and in repository order. An empty result
// is ErrNoEligibleRecipients.
func (r *Resolver) Resolve(ctx context.Context, ownerID string, groupIDs []string) ([]domain.Recipient, error) {
	groups := normalizeGroups(groupIDs)
	list, err := r.repo.ListActive(ctx, ownerID, groups)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}

	seen := make(map[string]struct{}, len(list))
	out := make([]domain.Recipient, 0, len(list))
	for _, rc := range list {
		if rc.Status != domain.RecipientActive {
			continue
		}
		if _, dup := seen[rc.ID]; dup {
			continue
		}
		seen[rc.ID] = struct{}{}
		out = append(out, rc)
	}
	if len(out) == 0 {
		return nil, ErrNoEligibleRecipients
	}
	return out, nil
}

// Unsubscribe marks a recipient as unsubscribed so later runs skip it.
func (r *Resolver) Unsubscribe(ctx context.Context, id string) error {
	return r.repo.MarkUnsubscribed(ctx, id)
}

func normalizeGroups(ids []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
