package models

import "time"

// Snapshot is a cached, derived total for one scope of a purse. It is never
// authoritative: the ledger plus allocation rules can rebuild every row.
type Snapshot struct {
	ID                string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ConfigID          string    `json:"config_id" gorm:"not null;index;type:uuid"`
	ScopeType         ScopeType `json:"scope_type" gorm:"not null;type:varchar(10)"`
	EventAllocationID *string   `json:"event_allocation_id,omitempty" gorm:"type:uuid;index"`
	PlaceAllocationID *string   `json:"place_allocation_id,omitempty" gorm:"type:uuid;index"`
	CachedTotal       float64   `json:"cached_total" gorm:"not null;type:decimal(10,2);default:0"`
	ContributionCount int       `json:"contribution_count" gorm:"not null;default:0"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"default:now()"`
}
