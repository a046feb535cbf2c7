package trading

import (
	"time"
)

// Submission outcomes
const (
	SubmissionPending  = "pending"
	SubmissionAccepted = "accepted"
	SubmissionRejected = "rejected"
)

// OrderSubmission is the audit record of one order sent to the exchange.
// IdempotencyKey replays the stored response for repeated submissions and is
// unique per user until the sweeper releases it.
type OrderSubmission struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          string    `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_order_submissions_user_key" json:"user_id"`
	IdempotencyKey  *string   `gorm:"type:varchar(128);uniqueIndex:idx_order_submissions_user_key" json:"idempotency_key,omitempty"`
	ExchangeOrderID string    `gorm:"type:varchar(64);index" json:"exchange_order_id,omitempty"`
	ClientID        string    `gorm:"type:varchar(64)" json:"client_id,omitempty"`
	Symbol          string    `gorm:"type:varchar(32);not null" json:"symbol"`
	Side            string    `gorm:"type:varchar(8);not null" json:"side"`
	OrderType       string    `gorm:"type:varchar(16);not null" json:"type"`
	Size            string    `gorm:"type:varchar(64);not null" json:"size"`
	Price           string    `gorm:"type:varchar(64)" json:"price,omitempty"`
	Signed          bool      `json:"signed"`
	Outcome         string    `gorm:"type:varchar(16);not null" json:"outcome"`
	Error           string    `gorm:"type:text" json:"error,omitempty"`
	Response        string    `gorm:"type:text" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"-"`
}

func Models() []interface{} {
	return []interface{}{&OrderSubmission{}}
}
