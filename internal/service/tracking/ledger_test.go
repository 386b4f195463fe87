package tracking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/service/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory tracking repository for unit testing. It keeps
// the per-campaign aggregates next to the records so gating can be checked.
type memRepo struct {
	mu        sync.Mutex
	records   map[string]*domain.TrackingRecord
	aggregate map[string]*domain.Campaign
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[string]*domain.TrackingRecord{}, aggregate: map[string]*domain.Campaign{}}
}

func key(token, rid string) string { return token + "/" + rid }

func (m *memRepo) QueueRecipients(_ context.Context, campaignID, token string, rs []domain.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.aggregate[token]; !ok {
		m.aggregate[token] = &domain.Campaign{ID: campaignID, Token: token}
	}
	for _, r := range rs {
		if rec, ok := m.records[key(token, r.ID)]; ok {
			rec.Email = r.Email
			switch {
			case rec.UnsubscribedAt != nil:
				rec.Status = domain.TrackingUnsubscribed
			case rec.ClickCount > 0:
				rec.Status = domain.TrackingClicked
			case rec.OpenCount > 0:
				rec.Status = domain.TrackingOpened
			default:
				rec.Status = domain.TrackingQueued
			}
			rec.SentAt, rec.FailedAt, rec.FailureReason = nil, nil, ""
			continue
		}
		m.records[key(token, r.ID)] = &domain.TrackingRecord{
			ID: uuid.NewString(), CampaignID: campaignID, CampaignToken: token,
			RecipientID: r.ID, Email: r.Email, Status: domain.TrackingQueued,
		}
	}
	return nil
}

func (m *memRepo) MarkSent(_ context.Context, token, rid string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(token, rid)]
	if !ok {
		return tracking.ErrRecordNotFound
	}
	if rec.Status == domain.TrackingQueued || rec.Status == domain.TrackingFailed {
		rec.Status = domain.TrackingSent
	}
	if rec.SentAt == nil {
		rec.SentAt = &at
	}
	return nil
}

func (m *memRepo) MarkFailed(_ context.Context, token, rid, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(token, rid)]
	if !ok {
		return tracking.ErrRecordNotFound
	}
	if rec.Status == domain.TrackingQueued {
		rec.Status = domain.TrackingFailed
	}
	rec.FailedAt, rec.FailureReason = &at, reason
	return nil
}

func (m *memRepo) RecordOpen(_ context.Context, token, rid string, meta domain.ClientMeta, at time.Time) (domain.EngagementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(token, rid)]
	if !ok {
		return domain.EngagementResult{}, tracking.ErrRecordNotFound
	}
	rec.OpenCount++
	if rec.Status != domain.TrackingClicked {
		rec.Status = domain.TrackingOpened
	}
	if rec.OpenedAt == nil {
		rec.OpenedAt = &at
	}
	rec.IPAddress, rec.UserAgent = meta.IPAddress, meta.UserAgent
	first := rec.OpenCount == 1
	if first {
		m.aggregate[token].OpenCount++
	}
	return domain.EngagementResult{Count: rec.OpenCount, FirstTime: first}, nil
}

func (m *memRepo) RecordClick(_ context.Context, token, rid, url string, meta domain.ClientMeta, at time.Time) (domain.EngagementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(token, rid)]
	if !ok {
		return domain.EngagementResult{}, tracking.ErrRecordNotFound
	}
	rec.ClickCount++
	rec.Status = domain.TrackingClicked
	if rec.ClickedAt == nil {
		rec.ClickedAt = &at
	}
	rec.Clicks = append(rec.Clicks, domain.ClickEvent{URL: url, ClickedAt: at, IPAddress: meta.IPAddress, UserAgent: meta.UserAgent})
	first := rec.ClickCount == 1
	if first {
		m.aggregate[token].ClickCount++
	}
	return domain.EngagementResult{Count: rec.ClickCount, FirstTime: first}, nil
}

func (m *memRepo) RecordUnsubscribe(_ context.Context, token, rid string, at time.Time) (domain.EngagementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(token, rid)]
	if !ok {
		return domain.EngagementResult{}, tracking.ErrRecordNotFound
	}
	if rec.UnsubscribedAt != nil {
		return domain.EngagementResult{Count: 1}, nil
	}
	rec.Status, rec.UnsubscribedAt = domain.TrackingUnsubscribed, &at
	m.aggregate[token].UnsubscribeCount++
	return domain.EngagementResult{Count: 1, FirstTime: true}, nil
}

func (m *memRepo) ListByToken(_ context.Context, token string) ([]domain.TrackingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TrackingRecord
	for _, r := range m.records {
		if r.CampaignToken == token {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) OwnerTotals(context.Context, string) (int, int, error) { return 0, 0, nil }

func (m *memRepo) record(token, rid string) domain.TrackingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[key(token, rid)]
}

type fakeUnsubscriber struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeUnsubscriber) Unsubscribe(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return f.err
}

func setup(t *testing.T) (*tracking.Ledger, *memRepo, *fakeUnsubscriber, *domain.Campaign, string) {
	t.Helper()
	repo := newMemRepo()
	unsub := &fakeUnsubscriber{}
	ledger := tracking.NewLedger(repo, unsub)
	camp := &domain.Campaign{ID: uuid.NewString(), Token: uuid.NewString()}
	rid := uuid.NewString()
	require.NoError(t, ledger.Queue(context.Background(), camp, []domain.Recipient{{ID: rid, Email: "ada@example.com"}}))
	return ledger, repo, unsub, camp, rid
}

func TestRecordOpen_DuplicatesCountOnce(t *testing.T) {
	ledger, repo, _, camp, rid := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.RecordOpen(ctx, camp.Token, rid, domain.ClientMeta{IPAddress: "203.0.113.9"})
			assert.NoError(t, err)
			if res.FirstTime {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	rec := repo.record(camp.Token, rid)
	assert.Equal(t, 10, rec.OpenCount)
	assert.Equal(t, domain.TrackingOpened, rec.Status)
	assert.NotNil(t, rec.OpenedAt)
	assert.Equal(t, 1, firsts)
	assert.Equal(t, 1, repo.aggregate[camp.Token].OpenCount)
}

func TestRecordOpen_BeforeSentDoesNotRegress(t *testing.T) {
	ledger, repo, _, camp, rid := setup(t)
	ctx := context.Background()

	_, err := ledger.RecordOpen(ctx, camp.Token, rid, domain.ClientMeta{})
	require.NoError(t, err)
	require.NoError(t, ledger.MarkSent(ctx, camp.Token, rid))

	rec := repo.record(camp.Token, rid)
	assert.Equal(t, domain.TrackingOpened, rec.Status)
	assert.NotNil(t, rec.SentAt)
}

func TestRecordOpen_UnknownPair(t *testing.T) {
	ledger, _, _, camp, _ := setup(t)
	ctx := context.Background()

	_, err := ledger.RecordOpen(ctx, camp.Token, uuid.NewString(), domain.ClientMeta{})
	assert.ErrorIs(t, err, tracking.ErrRecordNotFound)

	_, err = ledger.RecordOpen(ctx, camp.Token, "not-a-uuid", domain.ClientMeta{})
	assert.ErrorIs(t, err, tracking.ErrRecordNotFound)

	_, err = ledger.RecordOpen(ctx, camp.Token, "", domain.ClientMeta{})
	assert.ErrorIs(t, err, tracking.ErrMissingRecipient)
}

func TestRecordClick(t *testing.T) {
	ledger, repo, _, camp, rid := setup(t)
	ctx := context.Background()

	t.Run("missing destination mutates nothing", func(t *testing.T) {
		_, err := ledger.RecordClick(ctx, camp.Token, rid, "  ", domain.ClientMeta{})
		assert.ErrorIs(t, err, tracking.ErrMissingDestination)
		rec := repo.record(camp.Token, rid)
		assert.Zero(t, rec.ClickCount)
		assert.Equal(t, domain.TrackingQueued, rec.Status)
	})

	t.Run("every click is logged, aggregate counts once", func(t *testing.T) {
		for _, u := range []string{"https://a.example/", "https://b.example/", "https://a.example/"} {
			_, err := ledger.RecordClick(ctx, camp.Token, rid, u, domain.ClientMeta{UserAgent: "ua"})
			require.NoError(t, err)
		}
		rec := repo.record(camp.Token, rid)
		assert.Equal(t, 3, rec.ClickCount)
		assert.Len(t, rec.Clicks, 3)
		assert.Equal(t, domain.TrackingClicked, rec.Status)
		assert.Equal(t, 1, repo.aggregate[camp.Token].ClickCount)
	})

	t.Run("open after click keeps clicked", func(t *testing.T) {
		_, err := ledger.RecordOpen(ctx, camp.Token, rid, domain.ClientMeta{})
		require.NoError(t, err)
		assert.Equal(t, domain.TrackingClicked, repo.record(camp.Token, rid).Status)
	})
}

func TestRecordUnsubscribe(t *testing.T) {
	ledger, repo, unsub, camp, rid := setup(t)
	ctx := context.Background()

	res, err := ledger.RecordUnsubscribe(ctx, camp.Token, rid)
	require.NoError(t, err)
	assert.True(t, res.FirstTime)

	res, err = ledger.RecordUnsubscribe(ctx, camp.Token, rid)
	require.NoError(t, err)
	assert.False(t, res.FirstTime)

	assert.Equal(t, 1, repo.aggregate[camp.Token].UnsubscribeCount)
	assert.Equal(t, domain.TrackingUnsubscribed, repo.record(camp.Token, rid).Status)
	assert.Equal(t, []string{rid, rid}, unsub.calls)

	_, err = ledger.RecordUnsubscribe(ctx, camp.Token, uuid.NewString())
	assert.ErrorIs(t, err, tracking.ErrRecordNotFound)
	assert.Len(t, unsub.calls, 2)
}

func TestRecordUnsubscribe_RecipientFailure(t *testing.T) {
	ledger, _, unsub, camp, rid := setup(t)
	unsub.err = errors.New("db down")

	_, err := ledger.RecordUnsubscribe(context.Background(), camp.Token, rid)
	assert.Error(t, err)
}

func TestMarkFailedKeepsReason(t *testing.T) {
	ledger, repo, _, camp, rid := setup(t)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ledger.WithClock(func() time.Time { return fixed })

	require.NoError(t, ledger.MarkFailed(context.Background(), camp.Token, rid, "550 mailbox unavailable"))
	rec := repo.record(camp.Token, rid)
	assert.Equal(t, domain.TrackingFailed, rec.Status)
	assert.Equal(t, "550 mailbox unavailable", rec.FailureReason)
	assert.Equal(t, fixed, *rec.FailedAt)
}

func TestQueue_RequeueKeepsEngagement(t *testing.T) {
	ledger, repo, _, camp, rid := setup(t)
	ctx := context.Background()
	other := uuid.NewString()
	require.NoError(t, ledger.Queue(ctx, camp, []domain.Recipient{{ID: other, Email: "bob@example.com"}}))

	require.NoError(t, ledger.MarkSent(ctx, camp.Token, rid))
	_, err := ledger.RecordOpen(ctx, camp.Token, rid, domain.ClientMeta{})
	require.NoError(t, err)
	require.NoError(t, ledger.MarkFailed(ctx, camp.Token, other, "timeout"))

	require.NoError(t, ledger.Queue(ctx, camp, []domain.Recipient{
		{ID: rid, Email: "ada@example.com"},
		{ID: other, Email: "bob@example.com"},
	}))

	opened := repo.record(camp.Token, rid)
	assert.Equal(t, domain.TrackingOpened, opened.Status)
	assert.Equal(t, 1, opened.OpenCount)
	assert.NotNil(t, opened.OpenedAt)
	assert.Nil(t, opened.SentAt)

	failed := repo.record(camp.Token, other)
	assert.Equal(t, domain.TrackingQueued, failed.Status)
	assert.Nil(t, failed.FailedAt)
	assert.Empty(t, failed.FailureReason)

	res, err := ledger.RecordOpen(ctx, camp.Token, rid, domain.ClientMeta{})
	require.NoError(t, err)
	assert.False(t, res.FirstTime)
	assert.Equal(t, 1, repo.aggregate[camp.Token].OpenCount)
}
