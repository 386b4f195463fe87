package domain

import "time"

// RecipientStatus is a recipient's membership status.
type RecipientStatus string

const (
	RecipientActive       RecipientStatus = "active"
	RecipientUnsubscribed RecipientStatus = "unsubscribed"
	RecipientBounced      RecipientStatus = "bounced"
)

// Recipient is a contact owned by a campaign owner. Only active recipients
// are eligible for a dispatch run.
type Recipient struct {
	ID          string          `json:"id" db:"id"`
	OwnerID     string          `json:"ownerId" db:"owner_id"`
	GroupID     *string         `json:"leadListId,omitempty" db:"group_id"`
	Email       string          `json:"email" db:"email"`
	Name        string          `json:"name" db:"name"`
	CompanyName string          `json:"companyName,omitempty" db:"company_name"`
	Status      RecipientStatus `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}
