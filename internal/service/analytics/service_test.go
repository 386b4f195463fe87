package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/service/analytics"
	"github.com/ignite/bulkmail/internal/service/campaign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCampaigns struct{ c domain.Campaign }

func (f fakeCampaigns) GetByToken(_ context.Context, ownerID, token string) (*domain.Campaign, error) {
	if token != f.c.Token || ownerID != f.c.OwnerID {
		return nil, campaign.ErrNotFound
	}
	c := f.c
	return &c, nil
}

func (f fakeCampaigns) List(_ context.Context, ownerID string, _ campaign.ListFilter) ([]domain.Campaign, int, error) {
	if ownerID != f.c.OwnerID {
		return nil, 0, nil
	}
	return []domain.Campaign{f.c}, 3, nil
}

type fakeRecords []domain.TrackingRecord

func (f fakeRecords) Records(context.Context, string) ([]domain.TrackingRecord, error) { return f, nil }

type fakeTotals struct {
	sent, opened int
	err          error
}

func (f fakeTotals) OwnerTotals(context.Context, string) (int, int, error) {
	return f.sent, f.opened, f.err
}

type fakeCounter int

func (f fakeCounter) CountByOwner(context.Context, string) (int, error) { return int(f), nil }

func TestCampaignReport(t *testing.T) {
	sentAt := time.Now()
	c := domain.Campaign{OwnerID: "owner-1", Token: "tok", Name: "Launch", Subject: "Hi", Status: domain.CampaignSent, SentAt: &sentAt, TotalRecipients: 2}
	svc := analytics.NewService(fakeCampaigns{c}, fakeRecords{
		{Status: domain.TrackingOpened, OpenedAt: &sentAt},
		{Status: domain.TrackingSent},
	}, fakeTotals{}, fakeCounter(0))

	r, err := svc.CampaignReport(context.Background(), "owner-1", "tok")
	require.NoError(t, err)
	assert.Equal(t, "Launch", r.Campaign.Name)
	assert.Equal(t, domain.CampaignSent, r.Campaign.Status)
	assert.Equal(t, 2, r.Totals.Delivered)
	assert.Equal(t, 50.0, r.Rates.OpenRate)
	assert.Len(t, r.Timeline, 1)

	_, err = svc.CampaignReport(context.Background(), "owner-2", "tok")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestOwnerSummary(t *testing.T) {
	c := domain.Campaign{OwnerID: "owner-1", Token: "tok"}
	svc := analytics.NewService(fakeCampaigns{c}, fakeRecords{}, fakeTotals{sent: 8, opened: 3}, fakeCounter(20))

	stats, err := svc.OwnerSummary(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, analytics.OwnerStats{TotalRecipients: 20, TotalCampaigns: 3, EmailsSent: 8, OpenRate: 37.5}, *stats)

	svc = analytics.NewService(fakeCampaigns{c}, fakeRecords{}, fakeTotals{err: errors.New("boom")}, fakeCounter(0))
	_, err = svc.OwnerSummary(context.Background(), "owner-1")
	assert.Error(t, err)
}
