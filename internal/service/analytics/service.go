package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/service/campaign"
)

// CampaignReader reads campaigns scoped to their owner.
type CampaignReader interface {
	GetByToken(ctx context.Context, ownerID, token string) (*domain.Campaign, error)
	List(ctx context.Context, ownerID string, f campaign.ListFilter) ([]domain.Campaign, int, error)
}

// RecordSource lists tracking records for a dispatch token.
type RecordSource interface {
	Records(ctx context.Context, token string) ([]domain.TrackingRecord, error)
}

// OwnerTotals reports delivery totals across an owner's campaigns.
type OwnerTotals interface {
	OwnerTotals(ctx context.Context, ownerID string) (sent, opened int, err error)
}

// RecipientCounter counts an owner's recipients.
type RecipientCounter interface {
	CountByOwner(ctx context.Context, ownerID string) (int, error)
}

// CampaignHeader identifies the campaign a report belongs to.
type CampaignHeader struct {
	Name    string                `json:"name"`
	Subject string                `json:"subject"`
	Status  domain.CampaignStatus `json:"status"`
	SentAt  *time.Time            `json:"sentAt,omitempty"`
}

// Report is the analytics response for one campaign.
type Report struct {
	Campaign CampaignHeader `json:"campaign"`
	Summary
}

// OwnerStats is the dashboard summary for one owner.
type OwnerStats struct {
	TotalRecipients int     `json:"totalLeads"`
	TotalCampaigns  int     `json:"totalCampaigns"`
	EmailsSent      int     `json:"emailsSent"`
	OpenRate        float64 `json:"openRate"`
}

// Service answers analytics reads. It is safe for concurrent use.
type Service struct {
	campaigns  CampaignReader
	records    RecordSource
	totals     OwnerTotals
	recipients RecipientCounter
}

// NewService creates an analytics service.
func NewService(campaigns CampaignReader, records RecordSource, totals OwnerTotals, recipients RecipientCounter) *Service {
	return &Service{campaigns: campaigns, records: records, totals: totals, recipients: recipients}
}

// CampaignReport summarizes the campaign behind token. A campaign owned by
// someone else surfaces as campaign.ErrNotFound.
func (s *Service) CampaignReport(ctx context.Context, ownerID, token string) (*Report, error) {
	c, err := s.campaigns.GetByToken(ctx, ownerID, token)
	if err != nil {
		return nil, err
	}
	records, err := s.records.Records(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load tracking records: %w", err)
	}
	return &Report{
		Campaign: CampaignHeader{Name: c.Name, Subject: c.Subject, Status: c.Status, SentAt: c.SentAt},
		Summary:  Summarize(records, c.TotalRecipients),
	}, nil
}

// OwnerSummary returns the owner's dashboard totals.
func (s *Service) OwnerSummary(ctx context.Context, ownerID string) (*OwnerStats, error) {
	recipients, err := s.recipients.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count recipients: %w", err)
	}
	_, campaigns, err := s.campaigns.List(ctx, ownerID, campaign.ListFilter{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("count campaigns: %w", err)
	}
	sent, opened, err := s.totals.OwnerTotals(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &OwnerStats{
		TotalRecipients: recipients,
		TotalCampaigns:  campaigns,
		EmailsSent:      sent,
		OpenRate:        percent(opened, sent),
	}, nil
}
