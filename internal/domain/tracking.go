package domain

import "time"

// TrackingStatus is the delivery/engagement state of one tracking record.
// It is a progression rather than a total order: clicked implies opened.
type TrackingStatus string

const (
	TrackingQueued       TrackingStatus = "queued"
	TrackingSent         TrackingStatus = "sent"
	TrackingDelivered    TrackingStatus = "delivered"
	TrackingOpened       TrackingStatus = "opened"
	TrackingClicked      TrackingStatus = "clicked"
	TrackingBounced      TrackingStatus = "bounced"
	TrackingSpam         TrackingStatus = "spam"
	TrackingUnsubscribed TrackingStatus = "unsubscribed"
	TrackingFailed       TrackingStatus = "failed"
)

// TrackingEventType names engagement events in timelines and metrics.
type TrackingEventType string

const (
	EventOpen        TrackingEventType = "open"
	EventClick       TrackingEventType = "click"
	EventUnsubscribe TrackingEventType = "unsubscribe"
)

// ClientMeta describes who fetched a tracking URL. At is the time the
// request was observed; zero means now.
type ClientMeta struct {
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	At        time.Time `json:"-"`
}

// ClickEvent is one entry of a record's click log.
type ClickEvent struct {
	URL       string    `json:"url"`
	ClickedAt time.Time `json:"clickedAt"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// TrackingRecord is the per (dispatch token, recipient) delivery and
// engagement record. The pair is unique.
type TrackingRecord struct {
	ID            string         `json:"id" db:"id"`
	CampaignID    string         `json:"campaignId" db:"campaign_id"`
	CampaignToken string         `json:"campaignToken" db:"campaign_token"`
	RecipientID   string         `json:"leadId" db:"recipient_id"`
	Email         string         `json:"email" db:"email"`
	Status        TrackingStatus `json:"status" db:"status"`

	SentAt         *time.Time `json:"sentAt,omitempty" db:"sent_at"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty" db:"delivered_at"`
	OpenedAt       *time.Time `json:"openedAt,omitempty" db:"opened_at"`
	ClickedAt      *time.Time `json:"clickedAt,omitempty" db:"clicked_at"`
	BouncedAt      *time.Time `json:"bouncedAt,omitempty" db:"bounced_at"`
	SpamReportedAt *time.Time `json:"spamReportedAt,omitempty" db:"spam_reported_at"`
	UnsubscribedAt *time.Time `json:"unsubscribedAt,omitempty" db:"unsubscribed_at"`
	FailedAt       *time.Time `json:"failedAt,omitempty" db:"failed_at"`
	FailureReason  string     `json:"failureReason,omitempty" db:"failure_reason"`

	IPAddress string       `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent string       `json:"userAgent,omitempty" db:"user_agent"`
	Clicks    []ClickEvent `json:"clickedLinks"`

	OpenCount  int `json:"openCount" db:"open_count"`
	ClickCount int `json:"clickCount" db:"click_count"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// EngagementResult reports the outcome of a gated engagement update.
// FirstTime is true when this event moved the record's counter from 0 to 1
// and therefore bumped the campaign aggregate.
type EngagementResult struct {
	Count     int
	FirstTime bool
}
