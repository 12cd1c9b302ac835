package models

import "time"

// Contribution is one monetary inflow into a purse. Rows are append-only:
// a contribution is never edited or deleted, only counter-acted by a Refund.
type Contribution struct {
	ID                string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ConfigID          string     `json:"config_id" gorm:"not null;index;type:uuid"`
	SourceType        SourceType `json:"source_type" gorm:"not null;type:varchar(20)"`
	EventAllocationID *string    `json:"event_allocation_id,omitempty" gorm:"type:uuid;index"`
	UserID            string     `json:"user_id" gorm:"not null;index;type:uuid"`
	GrossAmount       float64    `json:"gross_amount" gorm:"not null;type:decimal(10,2)"`
	PurseAmount       float64    `json:"purse_amount" gorm:"not null;type:decimal(10,2)"`
	SquarePaymentID   string     `json:"square_payment_id" gorm:"not null"`
	CreatedAt         time.Time  `json:"created_at" gorm:"default:now()"`
}

// Refund reverses exactly one contribution. The unique constraint on
// ContributionID is what makes "refund at most once" hold under concurrency.
type Refund struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ConfigID       string    `json:"config_id" gorm:"not null;index;type:uuid"`
	ContributionID string    `json:"contribution_id" gorm:"not null;uniqueIndex;type:uuid"`
	RefundAmount   float64   `json:"refund_amount" gorm:"not null;type:decimal(10,2)"`
	SquareRefundID string    `json:"square_refund_id" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"default:now()"`
}
