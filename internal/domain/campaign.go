package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
	CampaignPaused  CampaignStatus = "paused"
)

// MaxAttachments caps the attachments stored on one campaign.
const MaxAttachments = 5

// Valid reports whether s is a known status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignSending, CampaignSent, CampaignPaused:
		return true
	}
	return false
}

// CanTransition reports whether a campaign may move from one status to another.
// Only draft→sending, sending→sent and the sending→draft rollback are allowed.
func CanTransition(from, to CampaignStatus) bool {
	switch from {
	case CampaignDraft:
		return to == CampaignSending
	case CampaignSending:
		return to == CampaignSent || to == CampaignDraft
	}
	return false
}

// Attachment is a file carried by every message of a campaign.
// StorageRef is resolved by the attachment store ("s3://bucket/key" or a local path).
type Attachment struct {
	Filename    string `json:"filename"`
	StorageRef  string `json:"path"`
	ContentType string `json:"contentType"`
}

// Campaign represents an email campaign with its content and delivery counters.
// The counters are a cache of what the tracking records for Token add up to.
type Campaign struct {
	ID          string         `json:"id" db:"id"`
	OwnerID     string         `json:"ownerId" db:"owner_id"`
	Token       string         `json:"campaignToken" db:"token"`
	Name        string         `json:"name" db:"name"`
	Subject     string         `json:"subject" db:"subject"`
	HTMLContent string         `json:"htmlContent" db:"html_content"`
	TextContent string         `json:"textContent,omitempty" db:"text_content"`
	Attachments []Attachment   `json:"attachments" db:"attachments"`
	Status      CampaignStatus `json:"status" db:"status"`

	TotalRecipients  int `json:"totalRecipients" db:"total_recipients"`
	SentCount        int `json:"sentCount" db:"sent_count"`
	FailedCount      int `json:"failedCount" db:"failed_count"`
	OpenCount        int `json:"openCount" db:"open_count"`
	ClickCount       int `json:"clickCount" db:"click_count"`
	BounceCount      int `json:"bounceCount" db:"bounce_count"`
	SpamCount        int `json:"spamCount" db:"spam_count"`
	UnsubscribeCount int `json:"unsubscribeCount" db:"unsubscribe_count"`

	SentAt         *time.Time `json:"sentAt,omitempty" db:"sent_at"`
	LastProgressAt *time.Time `json:"lastProgressAt,omitempty" db:"last_progress_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}

// IsEditable reports whether content may still change.
func (c *Campaign) IsEditable() bool {
	return c.Status != CampaignSending && c.Status != CampaignSent
}

// IsDeletable reports whether the campaign may be removed.
func (c *Campaign) IsDeletable() bool {
	return c.Status != CampaignSending
}
