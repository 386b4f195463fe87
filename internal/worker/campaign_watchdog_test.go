package worker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	"github.com/ignite/bulkmail/internal/service/campaign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staleStore struct {
	stale    []domain.Campaign
	listErr  error
	before   time.Time
	reverted []string
	finished map[string]bool
}

func (s *staleStore) ListStale(_ context.Context, before time.Time) ([]domain.Campaign, error) {
	s.before = before
	return s.stale, s.listErr
}

func (s *staleStore) Revert(_ context.Context, id string) error {
	if s.finished[id] {
		return campaign.ErrInvalidTransition
	}
	s.reverted = append(s.reverted, id)
	return nil
}

func TestCampaignWatchdog_RecoverStale(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-40 * time.Minute)
	store := &staleStore{
		stale: []domain.Campaign{
			{ID: "c1", Status: domain.CampaignSending, LastProgressAt: &last, SentCount: 10, TotalRecipients: 50},
			{ID: "c2", Status: domain.CampaignSending},
		},
		finished: map[string]bool{"c2": true},
	}
	w := NewCampaignWatchdog(store, time.Minute, 15*time.Minute)
	w.now = func() time.Time { return now }

	n, err := w.RecoverStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"c1"}, store.reverted)
	assert.Equal(t, now.Add(-15*time.Minute), store.before)
}

func TestCampaignWatchdog_ListError(t *testing.T) {
	w := NewCampaignWatchdog(&staleStore{listErr: errors.New("db down")}, 0, 0)
	assert.Equal(t, DefaultWatchdogInterval, w.interval)
	assert.Equal(t, DefaultStaleAfter, w.staleAfter)

	_, err := w.RecoverStale(context.Background())
	assert.Error(t, err)
}

func TestCampaignWatchdog_StartStopsOnCancel(t *testing.T) {
	w := NewCampaignWatchdog(&staleStore{}, 10*time.Millisecond, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop")
	}
}

func TestCampaignWatchdog_LogsSkippedRevertWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })

	store := &staleStore{
		stale:    []domain.Campaign{{ID: "c9", Status: domain.CampaignSending}},
		finished: map[string]bool{"c9": true},
	}
	w := NewCampaignWatchdog(store, time.Minute, time.Minute)

	n, err := w.RecoverStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, buf.String(), `"component":"watchdog"`)
	assert.Contains(t, buf.String(), `"msg":"watchdog revert skipped"`)
	assert.Contains(t, buf.String(), `"campaign_id":"c9"`)
}
