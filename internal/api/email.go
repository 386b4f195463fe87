package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/bulkmail/internal/dispatch"
	"github.com/ignite/bulkmail/internal/pkg/httputil"
	"github.com/ignite/bulkmail/internal/service/sending"
)

// HandleSendCampaign validates a dispatch request and starts the run. The
// response is written as soon as the run is accepted.
func (h *Handlers) HandleSendCampaign(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	var req dispatch.Request
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CampaignID) == "" {
		httputil.BadRequest(w, "campaignId is required")
		return
	}
	req.OwnerID = ownerID

	res, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"message":         "Campaign sending initiated.",
		"totalRecipients": res.TotalRecipients,
		"campaignToken":   res.CampaignToken,
	})
}

// HandleCampaignStatus reports status and counters by dispatch token
func (h *Handlers) HandleCampaignStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	c, err := h.campaigns.GetByToken(r.Context(), ownerID, chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"status": map[string]interface{}{
			"campaignToken":    c.Token,
			"name":             c.Name,
			"status":           c.Status,
			"totalRecipients":  c.TotalRecipients,
			"sentCount":        c.SentCount,
			"failedCount":      c.FailedCount,
			"openCount":        c.OpenCount,
			"clickCount":       c.ClickCount,
			"unsubscribeCount": c.UnsubscribeCount,
			"sentAt":           c.SentAt,
		},
	})
}

// HandleTestConnection opens and closes a transport session with the
// caller's settings
func (h *Handlers) HandleTestConnection(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	err := h.dispatcher.TestConnection(r.Context(), ownerID)
	switch {
	case err == nil:
		httputil.OK(w, map[string]interface{}{"success": true, "message": "Connection successful!"})
	case errors.Is(err, sending.ErrTransportNotConfigured):
		httputil.BadRequest(w, "SMTP settings are incomplete.")
	default:
		httputil.ErrorDetails(w, http.StatusBadRequest, "connection_failed", "Connection failed.", err.Error())
	}
}
