package models

import "time"

// PurseConfig holds the prize purse settings for a meet. At most one
// non-deleted config exists per meet. Once IsFinalized flips true the config
// and everything under it becomes read-only.
type PurseConfig struct {
	ID                   string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	MeetID               string     `json:"meet_id" gorm:"not null;uniqueIndex;type:uuid"`
	PPVTicketPrice       float64    `json:"ppv_ticket_price" gorm:"not null;type:decimal(10,2)"`
	PPVPurseMode         PurseMode  `json:"ppv_purse_mode" gorm:"not null;type:varchar(20);default:'static'"`
	PPVPurseStaticAmount *float64   `json:"ppv_purse_static_amount,omitempty" gorm:"type:decimal(10,2)"`
	PPVPursePercentage   *float64   `json:"ppv_purse_percentage,omitempty" gorm:"type:decimal(5,2)"`
	PlacesPaid           int        `json:"places_paid" gorm:"not null;default:3"`
	ContributionsOpenAt  *time.Time `json:"contributions_open_at,omitempty"`
	ContributionsCloseAt *time.Time `json:"contributions_close_at,omitempty"`
	IsActive             bool       `json:"is_active" gorm:"default:true"`
	IsFinalized          bool       `json:"is_finalized" gorm:"default:false"`
	Version              int        `json:"version" gorm:"default:1"`
	CreatedAt            time.Time  `json:"created_at" gorm:"default:now()"`
	UpdatedAt            time.Time  `json:"updated_at" gorm:"default:now()"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty" gorm:"index"`
}

// ContributionsOpen reports whether the contribution window is open at t.
// A nil bound leaves that side of the window open-ended.
func (c *PurseConfig) ContributionsOpen(t time.Time) bool {
	if c.ContributionsOpenAt != nil && t.Before(*c.ContributionsOpenAt) {
		return false
	}
	if c.ContributionsCloseAt != nil && t.After(*c.ContributionsCloseAt) {
		return false
	}
	return true
}

// TicketPurseAmount returns the slice of a PPV ticket purchase that funds
// the purse under the configured funding mode.
func (c *PurseConfig) TicketPurseAmount() float64 {
	if c.PPVPurseMode == PurseModeStatic {
		if c.PPVPurseStaticAmount == nil {
			return 0
		}
		return *c.PPVPurseStaticAmount
	}
	if c.PPVPursePercentage == nil {
		return 0
	}
	return c.PPVTicketPrice * *c.PPVPursePercentage / 100
}
