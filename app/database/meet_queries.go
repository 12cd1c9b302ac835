package database

import (
	"database/sql"

	"tracklnd/app/models"
)

// ListMeets retrieves meets, optionally restricted to published ones.
func ListMeets(db *sql.DB, publishedOnly bool) ([]*models.Meet, error) {
	query := `SELECT id, name, location, starts_at, is_published, created_at, updated_at
			  FROM meets`
	if publishedOnly {
		query += ` WHERE is_published = true`
	}
	query += ` ORDER BY starts_at DESC NULLS LAST, created_at DESC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meets []*models.Meet
	for rows.Next() {
		m := &models.Meet{}
		var location sql.NullString
		err := rows.Scan(&m.ID, &m.Name, &location, &m.StartsAt, &m.IsPublished, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			continue
		}
		m.Location = location.String
		meets = append(meets, m)
	}
	return meets, rows.Err()
}

// GetMeetByID retrieves a meet together with its events.
func GetMeetByID(db *sql.DB, meetID string) (*models.Meet, error) {
	m := &models.Meet{}
	var location sql.NullString
	query := `SELECT id, name, location, starts_at, is_published, created_at, updated_at
			  FROM meets WHERE id = $1`
	err := db.QueryRow(query, meetID).Scan(
		&m.ID, &m.Name, &location, &m.StartsAt, &m.IsPublished, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Location = location.String

	events, err := ListEventsForMeet(db, meetID)
	if err != nil {
		return nil, err
	}
	m.Events = events
	return m, nil
}

// ListEventsForMeet retrieves all events belonging to a meet.
func ListEventsForMeet(db *sql.DB, meetID string) ([]*models.Event, error) {
	query := `SELECT id, meet_id, name, gender, sort_order, created_at
			  FROM events WHERE meet_id = $1 ORDER BY sort_order, created_at`

	rows, err := db.Query(query, meetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e := &models.Event{}
		err := rows.Scan(&e.ID, &e.MeetID, &e.Name, &e.Gender, &e.SortOrder, &e.CreatedAt)
		if err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CreateMeet inserts a meet and returns it with generated fields filled in.
func CreateMeet(db *sql.DB, m *models.Meet) error {
	query := `INSERT INTO meets (name, location, starts_at, is_published)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id, created_at, updated_at`
	return db.QueryRow(query, m.Name, m.Location, m.StartsAt, m.IsPublished).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

// UpdateMeet updates the editable meet fields.
func UpdateMeet(db *sql.DB, m *models.Meet) error {
	query := `UPDATE meets SET name = $2, location = $3, starts_at = $4,
			  is_published = $5, updated_at = NOW() WHERE id = $1`
	result, err := db.Exec(query, m.ID, m.Name, m.Location, m.StartsAt, m.IsPublished)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateEvent inserts an event under a meet.
func CreateEvent(db *sql.DB, e *models.Event) error {
	query := `INSERT INTO events (meet_id, name, gender, sort_order)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id, created_at`
	return db.QueryRow(query, e.MeetID, e.Name, e.Gender, e.SortOrder).
		Scan(&e.ID, &e.CreatedAt)
}

// GetMeetAccess returns the user's access grant for a meet, or nil if none
// exists.
func GetMeetAccess(db *sql.DB, userID, meetID string) (*models.MeetAccess, error) {
	a := &models.MeetAccess{}
	query := `SELECT id, user_id, meet_id, access_type, square_payment_id, granted_at, revoked_at
			  FROM user_meet_access WHERE user_id = $1 AND meet_id = $2`
	err := db.QueryRow(query, userID, meetID).Scan(
		&a.ID, &a.UserID, &a.MeetID, &a.AccessType, &a.SquarePaymentID, &a.GrantedAt, &a.RevokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}
