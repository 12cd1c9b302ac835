package models

import "time"

// MeetAccess grants a user viewing rights to a meet's PPV broadcast. Access
// is revoked by stamping RevokedAt, never by deleting the row.
type MeetAccess struct {
	ID              string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID          string     `json:"user_id" gorm:"not null;index;type:uuid"`
	MeetID          string     `json:"meet_id" gorm:"not null;index;type:uuid"`
	AccessType      AccessType `json:"access_type" gorm:"not null;type:varchar(10);default:'ppv'"`
	SquarePaymentID string     `json:"square_payment_id" gorm:"not null"`
	GrantedAt       time.Time  `json:"granted_at" gorm:"default:now()"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the grant is currently usable.
func (a *MeetAccess) Active() bool {
	return a.RevokedAt == nil
}
