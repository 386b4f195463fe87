package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/service/recipient"
	"github.com/lib/pq"
)

// RecipientRepo implements recipient.Repository against PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

// ListActive returns active recipients in insertion order. A recipient is
// in a group either through its primary group_id or a membership row.
func (r *RecipientRepo) ListActive(ctx context.Context, ownerID string, groupIDs []string) ([]domain.Recipient, error) {
	q := `
		SELECT r.id, r.owner_id, r.group_id, r.email, r.name, r.company_name, r.status, r.created_at
		FROM recipients r
		WHERE r.owner_id = $1 AND r.status = 'active'`
	args := []any{ownerID}
	if len(groupIDs) > 0 {
		q += `
		  AND (r.group_id = ANY($2::uuid[]) OR EXISTS (
		      SELECT 1 FROM recipient_group_members m
		      WHERE m.recipient_id = r.id AND m.group_id = ANY($2::uuid[])))`
		args = append(args, pq.Array(groupIDs))
	}
	q += ` ORDER BY r.created_at, r.id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var (
			rec     domain.Recipient
			groupID sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &groupID, &rec.Email, &rec.Name,
			&rec.CompanyName, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if groupID.Valid {
			g := groupID.String
			rec.GroupID = &g
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *RecipientRepo) MarkUnsubscribed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recipients SET status = 'unsubscribed', updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("unsubscribe recipient: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recipient.ErrNotFound
	}
	return nil
}

func (r *RecipientRepo) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recipients WHERE owner_id = $1`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}
