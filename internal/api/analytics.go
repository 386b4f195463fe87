package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/bulkmail/internal/pkg/httputil"
)

// HandleCampaignAnalytics returns totals, rates and the engagement timeline
// for a dispatch token
func (h *Handlers) HandleCampaignAnalytics(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	report, err := h.analytics.CampaignReport(r.Context(), ownerID, chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, report)
}

// HandleStatsSummary returns the owner's dashboard totals
func (h *Handlers) HandleStatsSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	stats, err := h.analytics.OwnerSummary(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, stats)
}
