package models

import "time"

// Meet represents a track & field meet covered on the site.
type Meet struct {
	ID          string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Name        string     `json:"name" gorm:"not null"`
	Location    string     `json:"location,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	IsPublished bool       `json:"is_published" gorm:"default:false"`
	CreatedAt   time.Time  `json:"created_at" gorm:"default:now()"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"default:now()"`

	Events []*Event `json:"events,omitempty" gorm:"foreignKey:MeetID;references:ID"`
}

// Event represents a single event within a meet (100m, long jump, ...).
type Event struct {
	ID        string      `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	MeetID    string      `json:"meet_id" gorm:"not null;index;type:uuid"`
	Name      string      `json:"name" gorm:"not null"`
	Gender    EventGender `json:"gender" gorm:"type:varchar(10);default:'mixed'"`
	SortOrder int         `json:"sort_order" gorm:"default:0"`
	CreatedAt time.Time   `json:"created_at" gorm:"default:now()"`

	Meet *Meet `json:"meet,omitempty" gorm:"foreignKey:MeetID;references:ID"`
}
