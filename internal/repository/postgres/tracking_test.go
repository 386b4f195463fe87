package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/service/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var meta = domain.ClientMeta{IPAddress: "203.0.113.7", UserAgent: "Mozilla/5.0"}

func TestTrackingRepo_QueueRecipients(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewTrackingRepo(db)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`ON CONFLICT \(campaign_token, recipient_id\) DO UPDATE`)
	prep.ExpectExec().WithArgs(sqlmock.AnyArg(), "c1", "tok", "r1", "a@example.com").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(sqlmock.AnyArg(), "c1", "tok", "r2", "b@example.com").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.QueueRecipients(context.Background(), "c1", "tok", []domain.Recipient{
		{ID: "r1", Email: "a@example.com"},
		{ID: "r2", Email: "b@example.com"},
	})
	require.NoError(t, err)
}

func TestTrackingRepo_MarkSentUnknown(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewTrackingRepo(db)

	mock.ExpectExec(`UPDATE email_tracking SET`).
		WithArgs("tok", "r1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkSent(context.Background(), "tok", "r1", time.Now())
	assert.ErrorIs(t, err, tracking.ErrRecordNotFound)
}

func TestTrackingRepo_RecordOpenGatesCampaignCounter(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewTrackingRepo(db)
	ctx := context.Background()
	at := time.Now()

	// First open bumps the campaign aggregate in the same transaction.
	mock.ExpectBegin()
	mock.ExpectQuery(`RETURNING open_count`).
		WithArgs("tok", "r1", at, meta.IPAddress, meta.UserAgent).
		WillReturnRows(sqlmock.NewRows([]string{"open_count"}).AddRow(1))
	mock.ExpectExec(`UPDATE campaigns SET open_count = open_count \+ 1`).
		WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.RecordOpen(ctx, "tok", "r1", meta, at)
	require.NoError(t, err)
	assert.Equal(t, domain.EngagementResult{Count: 1, FirstTime: true}, res)

	// A repeat only touches the record.
	mock.ExpectBegin()
	mock.ExpectQuery(`RETURNING open_count`).
		WillReturnRows(sqlmock.NewRows([]string{"open_count"}).AddRow(2))
	mock.ExpectCommit()

	res, err = repo.RecordOpen(ctx, "tok", "r1", meta, at)
	require.NoError(t, err)
	assert.Equal(t, domain.EngagementResult{Count: 2}, res)
}

func TestTrackingRepo_RecordOpenMissingRecord(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewTrackingRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`RETURNING open_count`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.RecordOpen(context.Background(), "tok", "ghost", meta, time.Now())
	assert.ErrorIs(t, err, tracking.ErrRecordNotFound)
}

func TestTrackingRepo_RecordClick(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewTrackingRepo(db)
	at := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`RETURNING id, click_count`).
		WithArgs("tok", "r1", at, meta.IPAddress, meta.UserAgent).
		WillReturnRows(sqlmock.NewRows([]string{"id", "click_count"}).AddRow("t1", 1))
	mock.ExpectExec(`INSERT INTO tracking_clicks`).
		WithArgs("t1", "https://example.com/pricing", at, meta.IPAddress, meta.UserAgent).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE campaigns SET click_count = click_count \+ 1`).
		WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.RecordClick(context.Background(), "tok", "r1", "https://example.com/pricing", meta, at)
	require.NoError(t, err)
	assert.True(t, res.FirstTime)
}

func TestTrackingRepo_RecordClickRollsBackOnLogFailure(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewTrackingRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`RETURNING id, click_count`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "click_count"}).AddRow("t1", 1))
	mock.ExpectExec(`INSERT INTO tracking_clicks`).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := repo.RecordClick(context.Background(), "tok", "r1", "https://example.com", meta, time.Now())
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestTrackingRepo_RecordUnsubscribe(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewTrackingRepo(db)
	ctx := context.Background()
	at := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`AND unsubscribed_at IS NULL\s+RETURNING id`).
		WithArgs("tok", "r1", at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))
	mock.ExpectExec(`UPDATE campaigns SET unsubscribe_count = unsubscribe_count \+ 1`).
		WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.RecordUnsubscribe(ctx, "tok", "r1", at)
	require.NoError(t, err)
	assert.True(t, res.FirstTime)

	t.Run("repeat does not recount", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`RETURNING id`).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("tok", "r1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectCommit()

		res, err := repo.RecordUnsubscribe(ctx, "tok", "r1", at)
		require.NoError(t, err)
		assert.False(t, res.FirstTime)
	})

	t.Run("unknown pair", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`RETURNING id`).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		_, err := repo.RecordUnsubscribe(ctx, "tok", "ghost", at)
		assert.ErrorIs(t, err, tracking.ErrRecordNotFound)
	})
}

func TestTrackingRepo_ListByToken(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewTrackingRepo(db)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	opened := now.Add(time.Hour)

	cols := []string{"id", "campaign_id", "campaign_token", "recipient_id", "email", "status",
		"sent_at", "delivered_at", "opened_at", "clicked_at", "bounced_at", "spam_reported_at",
		"unsubscribed_at", "failed_at", "failure_reason", "ip_address", "user_agent",
		"open_count", "click_count", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM email_tracking\s+WHERE campaign_token = \$1`).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t1", "c1", "tok", "r1", "a@example.com", "clicked",
				now, nil, opened, opened, nil, nil, nil, nil, "", "203.0.113.7", "ua", 2, 1, now, now).
			AddRow("t2", "c1", "tok", "r2", "b@example.com", "failed",
				nil, nil, nil, nil, nil, nil, nil, now, "550 no such user", "", "", 0, 0, now, now))
	mock.ExpectQuery(`FROM tracking_clicks c`).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"tracking_id", "url", "clicked_at", "ip_address", "user_agent"}).
			AddRow("t1", "https://example.com/a", opened, "203.0.113.7", "ua"))

	recs, err := repo.ListByToken(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.TrackingClicked, recs[0].Status)
	require.Len(t, recs[0].Clicks, 1)
	assert.Equal(t, "https://example.com/a", recs[0].Clicks[0].URL)
	assert.Nil(t, recs[1].SentAt)
	assert.Equal(t, "550 no such user", recs[1].FailureReason)
}

func TestTrackingRepo_OwnerTotals(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewTrackingRepo(db)

	mock.ExpectQuery(`FILTER \(WHERE t.sent_at IS NOT NULL\)`).
		WithArgs("owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"sent", "opened"}).AddRow(40, 9))

	sent, opened, err := repo.OwnerTotals(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 40, sent)
	assert.Equal(t, 9, opened)
}
