package worker

import (
	"context"
	"log"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	"github.com/ignite/bulkmail/internal/pkg/metrics"
)

// =============================================================================
// CAMPAIGN WATCHDOG: Rolls Back Campaigns Stuck In 'sending'
// =============================================================================
// A dispatch run stamps last_progress_at after every recipient. If the
// process running it dies, the campaign stays in 'sending' forever and can
// no longer be dispatched. This worker finds such campaigns and reverts
// them to 'draft'. Their tracking records keep whatever state the dead run
// reached; a new dispatch resets them to 'queued'.

const (
	// DefaultWatchdogInterval is how often we scan for stale campaigns.
	DefaultWatchdogInterval = time.Minute

	// DefaultStaleAfter is how long a sending campaign may go without
	// progress before it is considered abandoned.
	DefaultStaleAfter = 15 * time.Minute
)

// StaleCampaignStore is the campaign persistence the watchdog needs.
type StaleCampaignStore interface {
	ListStale(ctx context.Context, before time.Time) ([]domain.Campaign, error)
	Revert(ctx context.Context, id string) error
}

// CampaignWatchdog periodically reverts abandoned sending campaigns.
type CampaignWatchdog struct {
	store      StaleCampaignStore
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	lg         *logger.Logger
}

// NewCampaignWatchdog creates a watchdog. Non-positive durations use the
// defaults.
func NewCampaignWatchdog(store StaleCampaignStore, interval, staleAfter time.Duration) *CampaignWatchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &CampaignWatchdog{
		store:      store,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		lg:         logger.Component("watchdog"),
	}
}

// Start runs the scan loop. It blocks until ctx is cancelled.
func (w *CampaignWatchdog) Start(ctx context.Context) {
	log.Printf("[CampaignWatchdog] Starting (interval=%s, stale_after=%s)", w.interval, w.staleAfter)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[CampaignWatchdog] Stopping")
			return
		case <-ticker.C:
			if _, err := w.RecoverStale(ctx); err != nil {
				w.lg.Error("watchdog scan failed", "error", err)
			}
		}
	}
}

// RecoverStale reverts every stale campaign once and returns how many were
// rolled back.
func (w *CampaignWatchdog) RecoverStale(ctx context.Context) (int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stale, err := w.store.ListStale(queryCtx, w.now().Add(-w.staleAfter))
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, c := range stale {
		if err := w.store.Revert(queryCtx, c.ID); err != nil {
			// The run may have finished between list and revert.
			w.lg.Warn("watchdog revert skipped", "campaign_id", c.ID, "error", err)
			continue
		}
		reverted++
		metrics.WatchdogReverted.Inc()
		last := "never"
		if c.LastProgressAt != nil {
			last = c.LastProgressAt.Format(time.RFC3339)
		}
		log.Printf("[CampaignWatchdog] Reverted stale campaign %s to draft (%d/%d sent, last progress %s)",
			c.ID, c.SentCount, c.TotalRecipients, last)
	}
	return reverted, nil
}
