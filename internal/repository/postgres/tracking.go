package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/service/tracking"
)

// TrackingRepo implements tracking.Repository against PostgreSQL.
//
// Engagement writes run the record update and the gated campaign counter
// update in one transaction. The record row lock taken by the UPDATE
// serializes concurrent duplicates, so exactly one of them observes a
// counter of 1.
type TrackingRepo struct{ db *sql.DB }

// NewTrackingRepo creates a Postgres-backed tracking repository.
func NewTrackingRepo(db *sql.DB) *TrackingRepo { return &TrackingRepo{db: db} }

func (r *TrackingRepo) QueueRecipients(ctx context.Context, campaignID, token string, recipients []domain.Recipient) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin queue: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO email_tracking
			(id, campaign_id, campaign_token, recipient_id, email, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'queued', NOW(), NOW())
		ON CONFLICT (campaign_token, recipient_id) DO UPDATE SET
			email = EXCLUDED.email,
			status = CASE
				WHEN email_tracking.unsubscribed_at IS NOT NULL THEN 'unsubscribed'
				WHEN email_tracking.click_count > 0 THEN 'clicked'
				WHEN email_tracking.open_count > 0 THEN 'opened'
				ELSE 'queued' END,
			sent_at = NULL, failed_at = NULL, failure_reason = '',
			updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("prepare queue: %w", err)
	}
	defer stmt.Close()

	for _, rc := range recipients {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), campaignID, token, rc.ID, rc.Email); err != nil {
			return fmt.Errorf("queue recipient %s: %w", rc.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit queue: %w", err)
	}
	return nil
}

func (r *TrackingRepo) MarkSent(ctx context.Context, token, recipientID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_tracking SET
			status = CASE WHEN status IN ('queued', 'failed') THEN 'sent' ELSE status END,
			sent_at = COALESCE(sent_at, $3),
			updated_at = NOW()
		WHERE campaign_token = $1 AND recipient_id = $2
	`, token, recipientID, at)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tracking.ErrRecordNotFound
	}
	return nil
}

func (r *TrackingRepo) MarkFailed(ctx context.Context, token, recipientID, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_tracking SET
			status = CASE WHEN status = 'queued' THEN 'failed' ELSE status END,
			failed_at = COALESCE(failed_at, $4),
			failure_reason = $3,
			updated_at = NOW()
		WHERE campaign_token = $1 AND recipient_id = $2
	`, token, recipientID, reason, at)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tracking.ErrRecordNotFound
	}
	return nil
}

func (r *TrackingRepo) RecordOpen(ctx context.Context, token, recipientID string, meta domain.ClientMeta, at time.Time) (domain.EngagementResult, error) {
	var res domain.EngagementResult
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE email_tracking SET
				open_count = open_count + 1,
				status = CASE WHEN status = 'clicked' THEN 'clicked' ELSE 'opened' END,
				opened_at = COALESCE(opened_at, $3),
				ip_address = $4, user_agent = $5,
				updated_at = NOW()
			WHERE campaign_token = $1 AND recipient_id = $2
			RETURNING open_count
		`, token, recipientID, at, meta.IPAddress, meta.UserAgent).Scan(&res.Count)
		if err == sql.ErrNoRows {
			return tracking.ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("update open: %w", err)
		}
		if res.Count != 1 {
			return nil
		}
		res.FirstTime = true
		return bumpCampaign(ctx, tx, token, "open_count")
	})
	return res, err
}

func (r *TrackingRepo) RecordClick(ctx context.Context, token, recipientID, url string, meta domain.ClientMeta, at time.Time) (domain.EngagementResult, error) {
	var res domain.EngagementResult
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var trackingID string
		err := tx.QueryRowContext(ctx, `
			UPDATE email_tracking SET
				click_count = click_count + 1,
				status = 'clicked',
				clicked_at = COALESCE(clicked_at, $3),
				ip_address = $4, user_agent = $5,
				updated_at = NOW()
			WHERE campaign_token = $1 AND recipient_id = $2
			RETURNING id, click_count
		`, token, recipientID, at, meta.IPAddress, meta.UserAgent).Scan(&trackingID, &res.Count)
		if err == sql.ErrNoRows {
			return tracking.ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("update click: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tracking_clicks (tracking_id, url, clicked_at, ip_address, user_agent)
			VALUES ($1, $2, $3, $4, $5)
		`, trackingID, url, at, meta.IPAddress, meta.UserAgent); err != nil {
			return fmt.Errorf("log click: %w", err)
		}
		if res.Count != 1 {
			return nil
		}
		res.FirstTime = true
		return bumpCampaign(ctx, tx, token, "click_count")
	})
	return res, err
}

func (r *TrackingRepo) RecordUnsubscribe(ctx context.Context, token, recipientID string, at time.Time) (domain.EngagementResult, error) {
	res := domain.EngagementResult{Count: 1}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `
			UPDATE email_tracking SET
				status = 'unsubscribed', unsubscribed_at = $3, updated_at = NOW()
			WHERE campaign_token = $1 AND recipient_id = $2 AND unsubscribed_at IS NULL
			RETURNING id
		`, token, recipientID, at).Scan(&id)
		if err == sql.ErrNoRows {
			var exists bool
			if err := tx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM email_tracking WHERE campaign_token = $1 AND recipient_id = $2)
			`, token, recipientID).Scan(&exists); err != nil {
				return fmt.Errorf("check record: %w", err)
			}
			if !exists {
				return tracking.ErrRecordNotFound
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("update unsubscribe: %w", err)
		}
		res.FirstTime = true
		return bumpCampaign(ctx, tx, token, "unsubscribe_count")
	})
	return res, err
}

// bumpCampaign increments one whitelisted aggregate column.
func bumpCampaign(ctx context.Context, tx *sql.Tx, token, column string) error {
	switch column {
	case "open_count", "click_count", "unsubscribe_count":
	default:
		return fmt.Errorf("unknown campaign counter %q", column)
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET `+column+` = `+column+` + 1, updated_at = NOW() WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("bump campaign %s: %w", column, err)
	}
	return nil
}

func (r *TrackingRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *TrackingRepo) ListByToken(ctx context.Context, token string) ([]domain.TrackingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, campaign_token, recipient_id, email, status,
		       sent_at, delivered_at, opened_at, clicked_at, bounced_at, spam_reported_at,
		       unsubscribed_at, failed_at, failure_reason, ip_address, user_agent,
		       open_count, click_count, created_at, updated_at
		FROM email_tracking
		WHERE campaign_token = $1
		ORDER BY created_at, id
	`, token)
	if err != nil {
		return nil, fmt.Errorf("list tracking: %w", err)
	}
	defer rows.Close()

	var out []domain.TrackingRecord
	index := map[string]int{}
	for rows.Next() {
		var (
			t                                     domain.TrackingRecord
			sent, delivered, opened, clicked      sql.NullTime
			bounced, spam, unsubscribed, failedAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.CampaignToken, &t.RecipientID, &t.Email, &t.Status,
			&sent, &delivered, &opened, &clicked, &bounced, &spam,
			&unsubscribed, &failedAt, &t.FailureReason, &t.IPAddress, &t.UserAgent,
			&t.OpenCount, &t.ClickCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tracking: %w", err)
		}
		t.SentAt, t.DeliveredAt = timePtr(sent), timePtr(delivered)
		t.OpenedAt, t.ClickedAt = timePtr(opened), timePtr(clicked)
		t.BouncedAt, t.SpamReportedAt = timePtr(bounced), timePtr(spam)
		t.UnsubscribedAt, t.FailedAt = timePtr(unsubscribed), timePtr(failedAt)
		index[t.ID] = len(out)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tracking: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	clicks, err := r.db.QueryContext(ctx, `
		SELECT c.tracking_id, c.url, c.clicked_at, c.ip_address, c.user_agent
		FROM tracking_clicks c
		JOIN email_tracking t ON t.id = c.tracking_id
		WHERE t.campaign_token = $1
		ORDER BY c.clicked_at, c.id
	`, token)
	if err != nil {
		return nil, fmt.Errorf("list clicks: %w", err)
	}
	defer clicks.Close()
	for clicks.Next() {
		var (
			trackingID string
			ev         domain.ClickEvent
		)
		if err := clicks.Scan(&trackingID, &ev.URL, &ev.ClickedAt, &ev.IPAddress, &ev.UserAgent); err != nil {
			return nil, fmt.Errorf("scan click: %w", err)
		}
		if i, ok := index[trackingID]; ok {
			out[i].Clicks = append(out[i].Clicks, ev)
		}
	}
	return out, clicks.Err()
}

func (r *TrackingRepo) OwnerTotals(ctx context.Context, ownerID string) (sent, opened int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE t.sent_at IS NOT NULL),
			COUNT(*) FILTER (WHERE t.opened_at IS NOT NULL OR t.clicked_at IS NOT NULL)
		FROM email_tracking t
		JOIN campaigns c ON c.id = t.campaign_id
		WHERE c.owner_id = $1
	`, ownerID).Scan(&sent, &opened)
	if err != nil {
		return 0, 0, fmt.Errorf("owner totals: %w", err)
	}
	return sent, opened, nil
}
