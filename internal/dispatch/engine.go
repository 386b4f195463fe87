package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ignite/bulkmail/internal/compose"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/distlock"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	"github.com/ignite/bulkmail/internal/pkg/metrics"
	"github.com/ignite/bulkmail/internal/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultThrottle is the delay between consecutive sends.
const DefaultThrottle = 3 * time.Second

// CampaignStore is the campaign persistence the engine drives.
type CampaignStore interface {
	Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error)
	BeginSending(ctx context.Context, id string, total int) error
	RecordProgress(ctx context.Context, id string, sent, failed int) error
	Finish(ctx context.Context, id string, sent, failed int, at time.Time) error
	Revert(ctx context.Context, id string) error
}

// RecipientResolver returns the eligible recipients for a run.
type RecipientResolver interface {
	Resolve(ctx context.Context, ownerID string, groupIDs []string) ([]domain.Recipient, error)
}

// Ledger records per-recipient delivery outcomes.
type Ledger interface {
	Queue(ctx context.Context, camp *domain.Campaign, recipients []domain.Recipient) error
	MarkSent(ctx context.Context, token, recipientID string) error
	MarkFailed(ctx context.Context, token, recipientID, reason string) error
}

// SettingsSource resolves an owner's transport settings.
type SettingsSource interface {
	For(ctx context.Context, ownerID string) (domain.TransportSettings, error)
}

// AttachmentLoader reads stored attachment bytes.
type AttachmentLoader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// Request asks for one campaign to be dispatched.
type Request struct {
	OwnerID    string   `json:"-"`
	CampaignID string   `json:"campaignId"`
	GroupIDs   []string `json:"groupIds"`
}

// Result acknowledges an accepted dispatch.
type Result struct {
	TotalRecipients int    `json:"totalRecipients"`
	CampaignToken   string `json:"campaignToken"`
}

// Config holds engine tuning.
type Config struct {
	Throttle time.Duration
	// LockTTL is the hold renewed on expiring locks once the audience is
	// resolved. Zero skips renewal.
	LockTTL time.Duration
}

// Engine dispatches campaigns. Runs for different campaigns proceed
// concurrently; each run owns its transport session.
type Engine struct {
	campaigns   CampaignStore
	recipients  RecipientResolver
	ledger      Ledger
	settings    SettingsSource
	dialer      esp.Dialer
	attachments AttachmentLoader
	composer    *compose.Composer
	locker      distlock.Locker

	throttle time.Duration
	lockTTL  time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	active   map[string]struct{}
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Campaigns   CampaignStore
	Recipients  RecipientResolver
	Ledger      Ledger
	Settings    SettingsSource
	Dialer      esp.Dialer
	Attachments AttachmentLoader
	Composer    *compose.Composer
	Locker      distlock.Locker
}

// NewEngine creates an engine. A nil Locker falls back to an in-process
// lock table; a nil Attachments loader rejects campaigns with attachments.
func NewEngine(d Deps, cfg Config) *Engine {
	if cfg.Throttle < 0 {
		cfg.Throttle = 0
	}
	if d.Locker == nil {
		d.Locker = distlock.NewLocalLocker()
	}
	return &Engine{
		campaigns:   d.Campaigns,
		recipients:  d.Recipients,
		ledger:      d.Ledger,
		settings:    d.Settings,
		dialer:      d.Dialer,
		attachments: d.Attachments,
		composer:    d.Composer,
		locker:      d.Locker,
		throttle:    cfg.Throttle,
		lockTTL:     cfg.LockTTL,
		now:         time.Now,
		sleep:       sleepCtx,
		stop:        make(chan struct{}),
		active:      make(map[string]struct{}),
	}
}

// Dispatch validates and accepts a run, then returns while the send loop
// continues in the background. Validation failures leave all state
// untouched.
func (e *Engine) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if e.stopping() {
		return nil, ErrShuttingDown
	}
	lock := e.locker.Lock("dispatch:" + req.CampaignID)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !ok {
		return nil, ErrInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release dispatch lock", "campaign_id", req.CampaignID, "error", err)
		}
	}()

	camp, err := e.campaigns.Get(ctx, req.OwnerID, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if camp.Status != domain.CampaignDraft {
		return nil, fmt.Errorf("%w (status %s)", ErrNotDraft, camp.Status)
	}
	settings, err := e.settings.For(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	recipients, err := e.recipients.Resolve(ctx, req.OwnerID, req.GroupIDs)
	if err != nil {
		return nil, err
	}
	if err := e.extendLock(ctx, lock); err != nil {
		return nil, err
	}

	if err := e.ledger.Queue(ctx, camp, recipients); err != nil {
		return nil, fmt.Errorf("queue tracking records: %w", err)
	}
	if err := e.campaigns.BeginSending(ctx, camp.ID, len(recipients)); err != nil {
		return nil, fmt.Errorf("begin sending: %w", err)
	}
	camp.Status = domain.CampaignSending
	camp.TotalRecipients = len(recipients)

	log.Printf("[dispatch.Engine] Accepted campaign %s: %d recipients via %s", camp.ID, len(recipients), settings.Kind)

	e.wg.Add(1)
	e.track(camp.ID)
	go e.run(context.WithoutCancel(ctx), camp, recipients, settings)

	return &Result{TotalRecipients: len(recipients), CampaignToken: camp.Token}, nil
}

// extendLock renews an expiring dispatch lock. Losing the lock means another
// caller may already be dispatching this campaign.
func (e *Engine) extendLock(ctx context.Context, lock distlock.DistLock) error {
	ext, ok := lock.(distlock.Extender)
	if !ok || e.lockTTL <= 0 {
		return nil
	}
	if err := ext.Extend(ctx, e.lockTTL); err != nil {
		if errors.Is(err, distlock.ErrNotHeld) {
			return ErrInProgress
		}
		return fmt.Errorf("extend dispatch lock: %w", err)
	}
	return nil
}

// Wait blocks until every background run has finished.
func (e *Engine) Wait() { e.wg.Wait() }

// Shutdown stops accepting dispatches and tells in-flight runs to stop at
// the next recipient boundary; a stopped run reverts its campaign to draft.
// It waits until the runs have wound down or ctx ends, and returns the ids
// of campaigns whose runs were still going at that point.
func (e *Engine) Shutdown(ctx context.Context) []string {
	e.stopOnce.Do(func() { close(e.stop) })

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		abandoned := e.activeRuns()
		for _, id := range abandoned {
			logger.Warn("dispatch run abandoned at shutdown", "campaign_id", id)
		}
		return abandoned
	}
}

func (e *Engine) stopping() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

func (e *Engine) track(campaignID string) {
	e.mu.Lock()
	e.active[campaignID] = struct{}{}
	e.mu.Unlock()
}

func (e *Engine) untrack(campaignID string) {
	e.mu.Lock()
	delete(e.active, campaignID)
	e.mu.Unlock()
}

func (e *Engine) activeRuns() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TestConnection opens and closes a session with the owner's settings.
func (e *Engine) TestConnection(ctx context.Context, ownerID string) error {
	settings, err := e.settings.For(ctx, ownerID)
	if err != nil {
		return err
	}
	sess, err := e.dialer.Open(ctx, settings)
	if err != nil {
		return err
	}
	return sess.Close()
}

// run is the background phase. Any failure before the loop, or a panic
// inside it, rolls the campaign back to draft.
func (e *Engine) run(ctx context.Context, camp *domain.Campaign, recipients []domain.Recipient, settings domain.TransportSettings) {
	defer e.wg.Done()
	defer e.untrack(camp.ID)
	metrics.DispatchInFlight.Inc()
	defer metrics.DispatchInFlight.Dec()

	ctx, span := telemetry.Tracer().Start(ctx, "dispatch.run")
	span.SetAttributes(
		attribute.String("campaign.id", camp.ID),
		attribute.Int("campaign.recipients", len(recipients)),
		attribute.String("transport.kind", string(settings.Kind)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch loop panicked", "campaign_id", camp.ID, "panic", fmt.Sprint(r))
			span.SetStatus(codes.Error, "panic")
			e.revert(ctx, camp.ID, "panic")
		}
	}()

	atts, err := e.loadAttachments(ctx, camp.Attachments)
	if err != nil {
		logger.Error("dispatch setup failed", "campaign_id", camp.ID, "error", err)
		span.RecordError(err)
		e.revert(ctx, camp.ID, "setup_failed")
		return
	}

	sess, err := e.dialer.Open(ctx, settings)
	if err != nil {
		logger.Error("transport session failed", "campaign_id", camp.ID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "session setup failed")
		e.revert(ctx, camp.ID, "setup_failed")
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Debug("close transport session", "campaign_id", camp.ID, "error", err)
		}
	}()

	// Throttle sleeps end early on shutdown.
	sleepCtx, cancelSleep := context.WithCancel(ctx)
	defer cancelSleep()
	go func() {
		select {
		case <-e.stop:
			cancelSleep()
		case <-sleepCtx.Done():
		}
	}()

	sent, failed := 0, 0
	for i, r := range recipients {
		if e.stopping() {
			log.Printf("[dispatch.Engine] Campaign %s interrupted at shutdown after %d of %d recipients", camp.ID, i, len(recipients))
			span.SetStatus(codes.Error, "interrupted")
			e.revert(ctx, camp.ID, "interrupted")
			return
		}
		if e.deliver(ctx, sess, camp, r, atts, settings) {
			sent++
		} else {
			failed++
		}
		if err := e.campaigns.RecordProgress(ctx, camp.ID, sent, failed); err != nil {
			logger.Warn("record progress", "campaign_id", camp.ID, "error", err)
		}
		if i < len(recipients)-1 && e.throttle > 0 {
			e.sleep(sleepCtx, e.throttle)
		}
	}

	if err := e.campaigns.Finish(ctx, camp.ID, sent, failed, e.now().UTC()); err != nil {
		logger.Error("finish campaign", "campaign_id", camp.ID, "error", err)
		span.RecordError(err)
		e.revert(ctx, camp.ID, "finish_failed")
		return
	}
	span.SetAttributes(attribute.Int("campaign.sent", sent), attribute.Int("campaign.failed", failed))
	metrics.DispatchRuns.WithLabelValues("sent").Inc()
	log.Printf("[dispatch.Engine] Campaign %s finished: %d sent, %d failed", camp.ID, sent, failed)
}

// deliver sends to one recipient and records the outcome. It reports
// whether the send succeeded; failures never stop the run.
func (e *Engine) deliver(ctx context.Context, sess esp.Session, camp *domain.Campaign, r domain.Recipient, atts []domain.MessageAttachment, settings domain.TransportSettings) bool {
	msg := e.composer.Compose(camp, r)
	email := &domain.EmailMessage{
		To:          r.Email,
		ToName:      r.Name,
		FromName:    settings.FromName,
		FromEmail:   settings.Sender(),
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
		TextContent: msg.Text,
		Headers:     msg.Headers,
		Attachments: atts,
		Tags:        map[string]string{"campaign_token": camp.Token},
	}

	start := time.Now()
	_, err := sess.Send(ctx, email)
	metrics.DispatchSendDuration.WithLabelValues(string(settings.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.DispatchSends.WithLabelValues(string(settings.Kind), "failed").Inc()
		logger.Warn("send failed", "campaign_id", camp.ID, "to", r.Email, "error", err)
		if merr := e.ledger.MarkFailed(ctx, camp.Token, r.ID, err.Error()); merr != nil {
			logger.Error("mark failed", "campaign_id", camp.ID, "recipient_id", r.ID, "error", merr)
		}
		return false
	}

	metrics.DispatchSends.WithLabelValues(string(settings.Kind), "sent").Inc()
	if merr := e.ledger.MarkSent(ctx, camp.Token, r.ID); merr != nil {
		logger.Error("mark sent", "campaign_id", camp.ID, "recipient_id", r.ID, "error", merr)
	}
	return true
}

func (e *Engine) loadAttachments(ctx context.Context, list []domain.Attachment) ([]domain.MessageAttachment, error) {
	if len(list) == 0 {
		return nil, nil
	}
	if e.attachments == nil {
		return nil, fmt.Errorf("no attachment store configured")
	}
	out := make([]domain.MessageAttachment, 0, len(list))
	for _, a := range list {
		data, err := e.attachments.Load(ctx, a.StorageRef)
		if err != nil {
			return nil, fmt.Errorf("load attachment %s: %w", a.Filename, err)
		}
		out = append(out, domain.MessageAttachment{Filename: a.Filename, ContentType: a.ContentType, Data: data})
	}
	return out, nil
}

func (e *Engine) revert(ctx context.Context, campaignID, reason string) {
	metrics.DispatchRuns.WithLabelValues(reason).Inc()
	if err := e.campaigns.Revert(ctx, campaignID); err != nil {
		logger.Error("revert campaign to draft", "campaign_id", campaignID, "error", err)
		return
	}
	log.Printf("[dispatch.Engine] Campaign %s reverted to draft (%s)", campaignID, reason)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
