package models

import "time"

// EventAllocation assigns a slice of the meet-level purse pool to one event.
// For a consistent config the MeetPct values across a config sum to 100.
type EventAllocation struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ConfigID  string    `json:"config_id" gorm:"not null;index;type:uuid"`
	EventID   string    `json:"event_id" gorm:"not null;index;type:uuid"`
	MeetPct   float64   `json:"meet_pct" gorm:"not null;type:decimal(5,2)"`
	CreatedAt time.Time `json:"created_at" gorm:"default:now()"`

	Event  *Event             `json:"event,omitempty" gorm:"foreignKey:EventID;references:ID"`
	Places []*PlaceAllocation `json:"places,omitempty" gorm:"foreignKey:EventAllocationID;references:ID"`
}

// PlaceAllocation assigns a slice of an event's pool to one paid place.
// For a consistent event allocation the EventPct values sum to 100.
type PlaceAllocation struct {
	ID                string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	EventAllocationID string    `json:"event_allocation_id" gorm:"not null;index;type:uuid"`
	Place             int       `json:"place" gorm:"not null"`
	EventPct          float64   `json:"event_pct" gorm:"not null;type:decimal(5,2)"`
	CreatedAt         time.Time `json:"created_at" gorm:"default:now()"`
}
