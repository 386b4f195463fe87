package api

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/pkg/httputil"
	"github.com/ignite/bulkmail/internal/service/campaign"
)

const maxAttachmentBytes = 10 << 20

// campaignListItem is a campaign without its content, for list views.
type campaignListItem struct {
	ID               string                `json:"id"`
	CampaignToken    string                `json:"campaignToken"`
	Name             string                `json:"name"`
	Subject          string                `json:"subject"`
	Status           domain.CampaignStatus `json:"status"`
	TotalRecipients  int                   `json:"totalRecipients"`
	SentCount        int                   `json:"sentCount"`
	FailedCount      int                   `json:"failedCount"`
	OpenCount        int                   `json:"openCount"`
	ClickCount       int                   `json:"clickCount"`
	UnsubscribeCount int                   `json:"unsubscribeCount"`
	SentAt           *time.Time            `json:"sentAt,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
}

type updateCampaignRequest struct {
	Name        *string              `json:"name"`
	Subject     *string              `json:"subject"`
	HTMLContent *string              `json:"htmlContent"`
	TextContent *string              `json:"textContent"`
	Attachments *[]domain.Attachment `json:"attachments"`
}

// HandleListCampaigns lists the owner's campaigns, newest first
func (h *Handlers) HandleListCampaigns(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	pag := ParsePagination(r, 10, 200)

	list, total, err := h.campaigns.List(r.Context(), ownerID, campaign.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  pag.Limit,
		Offset: pag.Offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]campaignListItem, 0, len(list))
	for _, c := range list {
		items = append(items, campaignListItem{
			ID:               c.ID,
			CampaignToken:    c.Token,
			Name:             c.Name,
			Subject:          c.Subject,
			Status:           c.Status,
			TotalRecipients:  c.TotalRecipients,
			SentCount:        c.SentCount,
			FailedCount:      c.FailedCount,
			OpenCount:        c.OpenCount,
			ClickCount:       c.ClickCount,
			UnsubscribeCount: c.UnsubscribeCount,
			SentAt:           c.SentAt,
			CreatedAt:        c.CreatedAt,
		})
	}

	httputil.OK(w, map[string]interface{}{
		"campaigns":  items,
		"pagination": pag.Meta(len(items), total),
	})
}

// HandleCreateCampaign creates a draft campaign
func (h *Handlers) HandleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	var input campaign.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}

	c, err := h.campaigns.Create(r.Context(), ownerID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, map[string]interface{}{
		"message":  "Campaign created successfully",
		"campaign": c,
	})
}

// HandleGetCampaign returns one campaign with its content
func (h *Handlers) HandleGetCampaign(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	c, err := h.campaigns.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"campaign": c})
}

// HandleUpdateCampaign changes the content of a campaign that has not been sent
func (h *Handlers) HandleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	var req updateCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	c, err := h.campaigns.Update(r.Context(), ownerID, chi.URLParam(r, "id"), campaign.UpdateFields{
		Name:        req.Name,
		Subject:     req.Subject,
		HTMLContent: req.HTMLContent,
		TextContent: req.TextContent,
		Attachments: req.Attachments,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"message":  "Campaign updated successfully",
		"campaign": c,
	})
}

// HandleDeleteCampaign removes a campaign that is not sending
func (h *Handlers) HandleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	if err := h.campaigns.Delete(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"message": "Campaign deleted successfully"})
}

// HandleUploadAttachment stores a multipart "file" and appends it to the campaign
func (h *Handlers) HandleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	if h.attachments == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "unavailable", "attachment storage is not configured")
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	c, err := h.campaigns.Get(ctx, ownerID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !c.IsEditable() {
		writeServiceError(w, campaign.ErrNotEditable)
		return
	}
	if len(c.Attachments) >= domain.MaxAttachments {
		httputil.BadRequest(w, fmt.Sprintf("at most %d attachments per campaign", domain.MaxAttachments))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentBytes+1))
	if err != nil {
		httputil.BadRequest(w, "could not read upload")
		return
	}
	if len(data) > maxAttachmentBytes {
		httputil.BadRequest(w, "attachment exceeds 10MB")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	ref, err := h.attachments.Put(ctx, ownerID, header.Filename, contentType, data)
	if err != nil {
		httputil.InternalError(w, fmt.Errorf("store attachment: %w", err))
		return
	}

	atts := append(append([]domain.Attachment{}, c.Attachments...), domain.Attachment{
		Filename:    header.Filename,
		StorageRef:  ref,
		ContentType: contentType,
	})
	updated, err := h.campaigns.Update(ctx, ownerID, id, campaign.UpdateFields{Attachments: &atts})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	log.Printf("[api] Stored attachment %q for campaign %s", header.Filename, id)
	httputil.Created(w, map[string]interface{}{"campaign": updated})
}
