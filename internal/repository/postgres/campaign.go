package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/service/campaign"
)

const campaignColumns = `
	id, owner_id, token, name, subject, html_content, text_content, attachments,
	status, total_recipients, sent_count, failed_count, open_count, click_count,
	bounce_count, spam_count, unsubscribe_count, sent_at, last_progress_at,
	created_at, updated_at`

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	var (
		c           domain.Campaign
		attachments []byte
		sentAt      sql.NullTime
		progressAt  sql.NullTime
	)
	if err := row.Scan(
		&c.ID, &c.OwnerID, &c.Token, &c.Name, &c.Subject, &c.HTMLContent, &c.TextContent, &attachments,
		&c.Status, &c.TotalRecipients, &c.SentCount, &c.FailedCount, &c.OpenCount, &c.ClickCount,
		&c.BounceCount, &c.SpamCount, &c.UnsubscribeCount, &sentAt, &progressAt,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &c.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	c.SentAt = timePtr(sentAt)
	c.LastProgressAt = timePtr(progressAt)
	return &c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) GetByToken(ctx context.Context, token string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE token = $1`, token))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign by token: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, ownerID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE owner_id = $1`
	args := []any{ownerID}
	if f.Status != "" {
		where += ` AND status = $2`
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	return out, total, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	attachments, err := encodeAttachments(c.Attachments)
	if err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO campaigns
			(id, owner_id, token, name, subject, html_content, text_content, attachments,
			 status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`, c.ID, c.OwnerID, c.Token, c.Name, c.Subject, c.HTMLContent, c.TextContent, attachments, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Update(ctx context.Context, ownerID, id string, u campaign.UpdateFields) error {
	var sets []string
	var args []any
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Subject != nil {
		add("subject", *u.Subject)
	}
	if u.HTMLContent != nil {
		add("html_content", *u.HTMLContent)
	}
	if u.TextContent != nil {
		add("text_content", *u.TextContent)
	}
	if u.Attachments != nil {
		raw, err := encodeAttachments(*u.Attachments)
		if err != nil {
			return err
		}
		add("attachments", raw)
	}
	if len(sets) == 0 {
		return nil
	}

	q := fmt.Sprintf(`UPDATE campaigns SET %s, updated_at = NOW()
		WHERE id = $%d AND owner_id = $%d AND status IN ('draft', 'paused')`,
		strings.Join(sets, ", "), len(args)+1, len(args)+2)
	args = append(args, id, ownerID)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.explainMiss(ctx, ownerID, id, campaign.ErrNotEditable)
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaigns WHERE id = $1 AND owner_id = $2 AND status <> 'sending'
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.explainMiss(ctx, ownerID, id, campaign.ErrNotDeletable)
	}
	return nil
}

// explainMiss distinguishes a missing campaign from one whose status
// blocked a conditional write.
func (r *CampaignRepo) explainMiss(ctx context.Context, ownerID, id string, blocked error) error {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM campaigns WHERE id = $1 AND owner_id = $2`, id, ownerID).Scan(&status)
	if err == sql.ErrNoRows {
		return campaign.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	return blocked
}

func (r *CampaignRepo) BeginSending(ctx context.Context, id string, total int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sending', total_recipients = $2, sent_count = 0, failed_count = 0,
		    last_progress_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'draft'
	`, id, total)
	if err != nil {
		return fmt.Errorf("begin sending: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrInvalidTransition
	}
	return nil
}

func (r *CampaignRepo) RecordProgress(ctx context.Context, id string, sent, failed int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET sent_count = $2, failed_count = $3, last_progress_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`, id, sent, failed)
	if err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Finish(ctx context.Context, id string, sent, failed int, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sent', sent_count = $2, failed_count = $3, sent_at = $4,
		    last_progress_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`, id, sent, failed, at)
	if err != nil {
		return fmt.Errorf("finish campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrInvalidTransition
	}
	return nil
}

func (r *CampaignRepo) Revert(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = 'draft', updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`, id)
	if err != nil {
		return fmt.Errorf("revert campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrInvalidTransition
	}
	return nil
}

func (r *CampaignRepo) ListStale(ctx context.Context, before time.Time) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns
		WHERE status = 'sending' AND COALESCE(last_progress_at, updated_at) < $1
		ORDER BY updated_at`, before)
	if err != nil {
		return nil, fmt.Errorf("list stale campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func encodeAttachments(a []domain.Attachment) ([]byte, error) {
	if a == nil {
		a = []domain.Attachment{}
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}
	return raw, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
