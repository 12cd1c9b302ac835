package models

import "time"

// SeedMoney is a fixed base amount injected into one scope of the purse.
// Scope is determined by which allocation reference is set: both nil means
// meet level, event only means event level, place set means place level.
type SeedMoney struct {
	ID                string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ConfigID          string    `json:"config_id" gorm:"not null;index;type:uuid"`
	Amount            float64   `json:"amount" gorm:"not null;type:decimal(10,2)"`
	Note              *string   `json:"note,omitempty"`
	EventAllocationID *string   `json:"event_allocation_id,omitempty" gorm:"type:uuid;index"`
	PlaceAllocationID *string   `json:"place_allocation_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt         time.Time `json:"created_at" gorm:"default:now()"`
}

// Scope returns the snapshot scope this seed money belongs to.
func (s *SeedMoney) Scope() ScopeType {
	if s.PlaceAllocationID != nil {
		return ScopePlace
	}
	if s.EventAllocationID != nil {
		return ScopeEvent
	}
	return ScopeMeet
}
