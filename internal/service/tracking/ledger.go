package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	"github.com/ignite/bulkmail/internal/pkg/metrics"
)

// Unsubscriber flips a recipient's membership status.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, recipientID string) error
}

// Ledger is the entry point for writes to tracking records, used by both
// the dispatch engine and the public tracking endpoints.
type Ledger struct {
	repo       Repository
	recipients Unsubscriber
	now        func() time.Time
}

// NewLedger creates a ledger. recipients may be nil, in which case
// unsubscribes only touch the tracking record.
func NewLedger(repo Repository, recipients Unsubscriber) *Ledger {
	return &Ledger{repo: repo, recipients: recipients, now: time.Now}
}

// WithClock overrides the time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Queue creates or resets a queued record for every recipient.
func (l *Ledger) Queue(ctx context.Context, camp *domain.Campaign, recipients []domain.Recipient) error {
	if len(recipients) == 0 {
		return nil
	}
	return l.repo.QueueRecipients(ctx, camp.ID, camp.Token, recipients)
}

// MarkSent records a delivered message.
func (l *Ledger) MarkSent(ctx context.Context, token, recipientID string) error {
	return l.repo.MarkSent(ctx, token, recipientID, l.now().UTC())
}

// MarkFailed records a per-recipient transport failure.
func (l *Ledger) MarkFailed(ctx context.Context, token, recipientID, reason string) error {
	return l.repo.MarkFailed(ctx, token, recipientID, reason, l.now().UTC())
}

// RecordOpen records one open. Duplicate opens only raise the record's own
// counter; the first one also counts toward the campaign.
func (l *Ledger) RecordOpen(ctx context.Context, token, recipientID string, meta domain.ClientMeta) (domain.EngagementResult, error) {
	if err := checkKey(token, recipientID); err != nil {
		l.observe(domain.EventOpen, err, false)
		return domain.EngagementResult{}, err
	}
	res, err := l.repo.RecordOpen(ctx, token, recipientID, meta, l.observedAt(meta))
	l.observe(domain.EventOpen, err, res.FirstTime)
	if err != nil {
		return res, fmt.Errorf("record open: %w", err)
	}
	return res, nil
}

// RecordClick records one click on destination.
func (l *Ledger) RecordClick(ctx context.Context, token, recipientID, destination string, meta domain.ClientMeta) (domain.EngagementResult, error) {
	if strings.TrimSpace(destination) == "" {
		l.observe(domain.EventClick, ErrMissingDestination, false)
		return domain.EngagementResult{}, ErrMissingDestination
	}
	if err := checkKey(token, recipientID); err != nil {
		l.observe(domain.EventClick, err, false)
		return domain.EngagementResult{}, err
	}
	res, err := l.repo.RecordClick(ctx, token, recipientID, destination, meta, l.observedAt(meta))
	l.observe(domain.EventClick, err, res.FirstTime)
	if err != nil {
		return res, fmt.Errorf("record click: %w", err)
	}
	return res, nil
}

// RecordUnsubscribe marks the record unsubscribed and removes the recipient
// from future runs. Repeated calls succeed without recounting.
func (l *Ledger) RecordUnsubscribe(ctx context.Context, token, recipientID string) (domain.EngagementResult, error) {
	if err := checkKey(token, recipientID); err != nil {
		l.observe(domain.EventUnsubscribe, err, false)
		return domain.EngagementResult{}, err
	}
	res, err := l.repo.RecordUnsubscribe(ctx, token, recipientID, l.now().UTC())
	if err != nil {
		l.observe(domain.EventUnsubscribe, err, false)
		return res, fmt.Errorf("record unsubscribe: %w", err)
	}
	if l.recipients != nil {
		if err := l.recipients.Unsubscribe(ctx, recipientID); err != nil {
			l.observe(domain.EventUnsubscribe, err, false)
			return res, fmt.Errorf("unsubscribe recipient: %w", err)
		}
	}
	l.observe(domain.EventUnsubscribe, nil, res.FirstTime)
	logger.Info("recipient unsubscribed", "token", token, "recipient_id", recipientID, "first", res.FirstTime)
	return res, nil
}

// Records returns every record for token.
func (l *Ledger) Records(ctx context.Context, token string) ([]domain.TrackingRecord, error) {
	return l.repo.ListByToken(ctx, token)
}

// checkKey rejects keys that cannot name a stored record. Recipient ids
// are UUIDs, so anything else is treated as an unknown record.
func checkKey(token, recipientID string) error {
	if strings.TrimSpace(recipientID) == "" {
		return ErrMissingRecipient
	}
	if token == "" {
		return ErrRecordNotFound
	}
	if _, err := uuid.Parse(recipientID); err != nil {
		return ErrRecordNotFound
	}
	return nil
}

func (l *Ledger) observedAt(meta domain.ClientMeta) time.Time {
	if !meta.At.IsZero() {
		return meta.At.UTC()
	}
	return l.now().UTC()
}

func (l *Ledger) observe(event domain.TrackingEventType, err error, first bool) {
	result := "repeat"
	switch {
	case errors.Is(err, ErrRecordNotFound):
		result = "not_found"
	case errors.Is(err, ErrMissingDestination), errors.Is(err, ErrMissingRecipient):
		result = "invalid"
	case err != nil:
		result = "error"
	case first:
		result = "first"
	}
	metrics.TrackingEvents.WithLabelValues(string(event), result).Inc()
}
