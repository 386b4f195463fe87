package campaign

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/ignite/bulkmail/internal/domain"
)

// Service implements campaign management. All public methods are safe for
// concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single campaign owned by ownerID.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, ownerID, id)
}

// GetByToken returns the campaign with the given dispatch token if ownerID
// owns it. Campaigns of other owners are reported as not found.
func (s *Service) GetByToken(ctx context.Context, ownerID, token string) (*domain.Campaign, error) {
	c, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, ownerID string, f ListFilter) ([]domain.Campaign, int, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, ownerID, f)
}

// Create validates and persists a new campaign in draft status with a fresh
// dispatch token.
func (s *Service) Create(ctx context.Context, ownerID string, input CreateInput) (*domain.Campaign, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.HTMLContent) == "" {
		return nil, fmt.Errorf("%w: htmlContent is required", ErrInvalidInput)
	}
	if err := validateAttachments(input.Attachments); err != nil {
		return nil, err
	}

	c := &domain.Campaign{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Token:       uuid.NewString(),
		Name:        strings.TrimSpace(input.Name),
		Subject:     input.Subject,
		HTMLContent: input.HTMLContent,
		TextContent: input.TextContent,
		Attachments: input.Attachments,
		Status:      domain.CampaignDraft,
	}
	if c.Attachments == nil {
		c.Attachments = []domain.Attachment{}
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	log.Printf("[campaign.Service] Created campaign %s (token %s)", c.ID, c.Token)
	return c, nil
}

// Update modifies content of a campaign that has not started sending.
func (s *Service) Update(ctx context.Context, ownerID, id string, u UpdateFields) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !c.IsEditable() {
		return nil, ErrNotEditable
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	if u.Subject != nil && strings.TrimSpace(*u.Subject) == "" {
		return nil, fmt.Errorf("%w: subject cannot be empty", ErrInvalidInput)
	}
	if u.Attachments != nil {
		if err := validateAttachments(*u.Attachments); err != nil {
			return nil, err
		}
	}
	if u.IsEmpty() {
		return c, nil
	}
	if err := s.repo.Update(ctx, ownerID, id, u); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ownerID, id)
}

// Delete removes a campaign unless it is currently sending.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	c, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if !c.IsDeletable() {
		return ErrNotDeletable
	}
	return s.repo.Delete(ctx, ownerID, id)
}

func validateAttachments(atts []domain.Attachment) error {
	if len(atts) > domain.MaxAttachments {
		return fmt.Errorf("%w: at most %d attachments", ErrInvalidInput, domain.MaxAttachments)
	}
	for i, a := range atts {
		if a.Filename == "" || a.StorageRef == "" {
			return fmt.Errorf("%w: attachment %d needs filename and path", ErrInvalidInput, i)
		}
	}
	return nil
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name        string              `json:"name"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
	TextContent string              `json:"textContent"`
	Attachments []domain.Attachment `json:"attachments"`
}
