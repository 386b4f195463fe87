package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ignite/bulkmail/internal/auth"
	"github.com/ignite/bulkmail/internal/dispatch"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/pkg/httputil"
	"github.com/ignite/bulkmail/internal/service/analytics"
	"github.com/ignite/bulkmail/internal/service/campaign"
	"github.com/ignite/bulkmail/internal/service/recipient"
	"github.com/ignite/bulkmail/internal/service/sending"
)

// CampaignService is the campaign management used by the API.
type CampaignService interface {
	Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error)
	GetByToken(ctx context.Context, ownerID, token string) (*domain.Campaign, error)
	List(ctx context.Context, ownerID string, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Create(ctx context.Context, ownerID string, input campaign.CreateInput) (*domain.Campaign, error)
	Update(ctx context.Context, ownerID, id string, u campaign.UpdateFields) (*domain.Campaign, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// Dispatcher starts campaign runs and probes transports.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
	TestConnection(ctx context.Context, ownerID string) error
}

// AnalyticsService answers report reads.
type AnalyticsService interface {
	CampaignReport(ctx context.Context, ownerID, token string) (*analytics.Report, error)
	OwnerSummary(ctx context.Context, ownerID string) (*analytics.OwnerStats, error)
}

// AttachmentStore persists uploaded attachment bytes.
type AttachmentStore interface {
	Put(ctx context.Context, ownerID, filename, contentType string, data []byte) (string, error)
}

// Handlers contains the authenticated API handlers
type Handlers struct {
	campaigns   CampaignService
	dispatcher  Dispatcher
	analytics   AnalyticsService
	attachments AttachmentStore
}

// NewHandlers creates a new Handlers instance. attachments may be nil, in
// which case uploads are rejected.
func NewHandlers(campaigns CampaignService, dispatcher Dispatcher, analytics AnalyticsService, attachments AttachmentStore) *Handlers {
	return &Handlers{
		campaigns:   campaigns,
		dispatcher:  dispatcher,
		analytics:   analytics,
		attachments: attachments,
	}
}

// owner returns the authenticated owner, writing a 401 when there is none.
func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
	}
	return id, ok
}

// writeServiceError maps service sentinels onto HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.NotFound(w, "Campaign not found")
	case errors.Is(err, campaign.ErrInvalidInput):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, campaign.ErrNotEditable),
		errors.Is(err, campaign.ErrNotDeletable),
		errors.Is(err, campaign.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, dispatch.ErrNotDraft):
		httputil.Conflict(w, "Campaign is already sending or has been sent.")
	case errors.Is(err, dispatch.ErrInProgress):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, dispatch.ErrShuttingDown):
		httputil.Error(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	case errors.Is(err, recipient.ErrNoEligibleRecipients):
		httputil.BadRequest(w, "No active leads to send to.")
	case errors.Is(err, sending.ErrTransportNotConfigured):
		httputil.BadRequest(w, "SMTP settings are not configured.")
	default:
		httputil.InternalError(w, err)
	}
}
