package database

import (
	"database/sql"
	"fmt"
	"math"

	"tracklnd/app/models"
	"tracklnd/app/purse"

	"github.com/lib/pq"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx so loaders can run
// standalone or inside a transaction.
type Queryer interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

const purseConfigColumns = `id, meet_id, ppv_ticket_price, ppv_purse_mode,
	ppv_purse_static_amount, ppv_purse_percentage, places_paid,
	contributions_open_at, contributions_close_at, is_active, is_finalized,
	version, created_at, updated_at`

func scanPurseConfig(row *sql.Row) (*models.PurseConfig, error) {
	cfg := &models.PurseConfig{}
	err := row.Scan(
		&cfg.ID, &cfg.MeetID, &cfg.PPVTicketPrice, &cfg.PPVPurseMode,
		&cfg.PPVPurseStaticAmount, &cfg.PPVPursePercentage, &cfg.PlacesPaid,
		&cfg.ContributionsOpenAt, &cfg.ContributionsCloseAt, &cfg.IsActive,
		&cfg.IsFinalized, &cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetPurseConfig retrieves a live purse config by ID.
func GetPurseConfig(q Queryer, configID string) (*models.PurseConfig, error) {
	query := `SELECT ` + purseConfigColumns + ` FROM prize_purse_configs
			  WHERE id = $1 AND deleted_at IS NULL`
	return scanPurseConfig(q.QueryRow(query, configID))
}

// GetPurseConfigForUpdate retrieves a config inside a transaction with a
// row lock, for the finalize and mutation critical sections.
func GetPurseConfigForUpdate(tx *sql.Tx, configID string) (*models.PurseConfig, error) {
	query := `SELECT ` + purseConfigColumns + ` FROM prize_purse_configs
			  WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	return scanPurseConfig(tx.QueryRow(query, configID))
}

// GetPurseConfigByMeet retrieves the live config for a meet, if any.
func GetPurseConfigByMeet(q Queryer, meetID string) (*models.PurseConfig, error) {
	query := `SELECT ` + purseConfigColumns + ` FROM prize_purse_configs
			  WHERE meet_id = $1 AND deleted_at IS NULL`
	return scanPurseConfig(q.QueryRow(query, meetID))
}

// CreatePurseConfig inserts a new config for a meet. The partial unique
// index on meet_id rejects a second live config.
func CreatePurseConfig(db *sql.DB, cfg *models.PurseConfig) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO prize_purse_configs
			  (meet_id, ppv_ticket_price, ppv_purse_mode, ppv_purse_static_amount,
			   ppv_purse_percentage, places_paid, contributions_open_at,
			   contributions_close_at, is_active)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING id, version, created_at, updated_at`
	err = tx.QueryRow(query,
		cfg.MeetID, cfg.PPVTicketPrice, string(cfg.PPVPurseMode),
		cfg.PPVPurseStaticAmount, cfg.PPVPursePercentage, cfg.PlacesPaid,
		cfg.ContributionsOpenAt, cfg.ContributionsCloseAt, cfg.IsActive,
	).Scan(&cfg.ID, &cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return purse.Validationf("a purse config already exists for meet %s", cfg.MeetID)
		}
		return fmt.Errorf("failed to insert purse config: %v", err)
	}

	// Seed the snapshot rows so readers never 404 on a fresh purse.
	if err := RecalculateSnapshotsTx(tx, cfg.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdatePurseConfig applies new settings to a config. The version column
// makes concurrent edits lose cleanly instead of clobbering each other.
func UpdatePurseConfig(db *sql.DB, cfg *models.PurseConfig) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := GetPurseConfigForUpdate(tx, cfg.ID)
	if err != nil {
		return err
	}
	if current.IsFinalized {
		return purse.Policyf(purse.AlreadyFinalized, "purse config %s is finalized and read-only", cfg.ID)
	}

	query := `UPDATE prize_purse_configs SET
			  ppv_ticket_price = $2, ppv_purse_mode = $3,
			  ppv_purse_static_amount = $4, ppv_purse_percentage = $5,
			  places_paid = $6, contributions_open_at = $7,
			  contributions_close_at = $8, is_active = $9,
			  version = version + 1, updated_at = NOW()
			  WHERE id = $1 AND version = $10`
	result, err := tx.Exec(query,
		cfg.ID, cfg.PPVTicketPrice, string(cfg.PPVPurseMode),
		cfg.PPVPurseStaticAmount, cfg.PPVPursePercentage, cfg.PlacesPaid,
		cfg.ContributionsOpenAt, cfg.ContributionsCloseAt, cfg.IsActive,
		cfg.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update purse config: %v", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return purse.Validationf("purse config %s was modified concurrently, reload and retry", cfg.ID)
	}
	cfg.Version++
	return tx.Commit()
}

// SetEventAllocations replaces the full event allocation set for a config
// in one transaction. The percentage-sum invariant is checked before any
// row is touched, so a rejected set never partially persists.
func SetEventAllocations(db *sql.DB, configID string, rows []*models.EventAllocation) error {
	var total float64
	seen := make(map[string]bool)
	for _, r := range rows {
		if seen[r.EventID] {
			return purse.Validationf("event %s appears more than once", r.EventID)
		}
		seen[r.EventID] = true
		total += r.MeetPct
	}
	if len(rows) > 0 && math.Abs(total-100) > purse.PctTolerance {
		return purse.Validationf("event allocations must sum to 100.00%%, got %.2f%%", total)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := AcquireConfigLock(tx, configID); err != nil {
		return err
	}
	cfg, err := GetPurseConfigForUpdate(tx, configID)
	if err != nil {
		return err
	}
	if cfg.IsFinalized {
		return purse.Policyf(purse.AlreadyFinalized, "purse config %s is finalized and read-only", configID)
	}

	eventIDs, err := eventIDsForMeetTx(tx, cfg.MeetID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if !eventIDs[r.EventID] {
			return purse.Validationf("event %s does not belong to this meet", r.EventID)
		}
	}

	// Upsert the new set, then drop allocations no longer present.
	keep := make([]string, 0, len(rows))
	for _, r := range rows {
		err := tx.QueryRow(`
			INSERT INTO event_purse_allocations (config_id, event_id, meet_pct)
			VALUES ($1, $2, $3)
			ON CONFLICT (config_id, event_id) DO UPDATE SET meet_pct = EXCLUDED.meet_pct
			RETURNING id`, configID, r.EventID, r.MeetPct).Scan(&r.ID)
		if err != nil {
			return fmt.Errorf("failed to upsert event allocation: %v", err)
		}
		r.ConfigID = configID
		keep = append(keep, r.ID)
	}

	_, err = tx.Exec(`DELETE FROM event_purse_allocations
					  WHERE config_id = $1 AND NOT (id = ANY($2))`,
		configID, pq.Array(keep))
	if err != nil {
		if isForeignKeyViolation(err) {
			return purse.Validationf("cannot remove an event allocation that has earmarked contributions")
		}
		return fmt.Errorf("failed to prune event allocations: %v", err)
	}

	if err := RecalculateSnapshotsTx(tx, configID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetPlaceAllocations replaces the place allocation set for one event
// allocation, with the same all-or-nothing semantics as the event level.
func SetPlaceAllocations(db *sql.DB, eventAllocationID string, rows []*models.PlaceAllocation) error {
	var total float64
	seen := make(map[int]bool)
	for _, r := range rows {
		if seen[r.Place] {
			return purse.Validationf("place %d appears more than once", r.Place)
		}
		seen[r.Place] = true
		total += r.EventPct
	}
	if len(rows) > 0 && math.Abs(total-100) > purse.PctTolerance {
		return purse.Validationf("place allocations must sum to 100.00%%, got %.2f%%", total)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var configID string
	err = tx.QueryRow(`SELECT config_id FROM event_purse_allocations WHERE id = $1`,
		eventAllocationID).Scan(&configID)
	if err != nil {
		return err
	}

	if err := AcquireConfigLock(tx, configID); err != nil {
		return err
	}
	cfg, err := GetPurseConfigForUpdate(tx, configID)
	if err != nil {
		return err
	}
	if cfg.IsFinalized {
		return purse.Policyf(purse.AlreadyFinalized, "purse config %s is finalized and read-only", configID)
	}

	for _, r := range rows {
		if r.Place < 1 || r.Place > cfg.PlacesPaid {
			return purse.Validationf("place %d is outside the paid range 1..%d", r.Place, cfg.PlacesPaid)
		}
	}

	keep := make([]string, 0, len(rows))
	for _, r := range rows {
		err := tx.QueryRow(`
			INSERT INTO place_purse_allocations (event_allocation_id, place, event_pct)
			VALUES ($1, $2, $3)
			ON CONFLICT (event_allocation_id, place) DO UPDATE SET event_pct = EXCLUDED.event_pct
			RETURNING id`, eventAllocationID, r.Place, r.EventPct).Scan(&r.ID)
		if err != nil {
			return fmt.Errorf("failed to upsert place allocation: %v", err)
		}
		r.EventAllocationID = eventAllocationID
		keep = append(keep, r.ID)
	}

	_, err = tx.Exec(`DELETE FROM place_purse_allocations
					  WHERE event_allocation_id = $1 AND NOT (id = ANY($2))`,
		eventAllocationID, pq.Array(keep))
	if err != nil {
		return fmt.Errorf("failed to prune place allocations: %v", err)
	}

	if err := RecalculateSnapshotsTx(tx, configID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListEventAllocations retrieves a config's event allocations with event
// names for breakdown rendering.
func ListEventAllocations(q Queryer, configID string) ([]*models.EventAllocation, error) {
	query := `SELECT ea.id, ea.config_id, ea.event_id, ea.meet_pct, ea.created_at,
			  e.name, e.gender
			  FROM event_purse_allocations ea
			  JOIN events e ON e.id = ea.event_id
			  WHERE ea.config_id = $1
			  ORDER BY e.sort_order, ea.created_at`

	rows, err := q.Query(query, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocs []*models.EventAllocation
	for rows.Next() {
		a := &models.EventAllocation{Event: &models.Event{}}
		err := rows.Scan(&a.ID, &a.ConfigID, &a.EventID, &a.MeetPct, &a.CreatedAt,
			&a.Event.Name, &a.Event.Gender)
		if err != nil {
			return nil, err
		}
		a.Event.ID = a.EventID
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

// ListPlaceAllocationsForConfig retrieves every place allocation under a
// config, across all of its event allocations.
func ListPlaceAllocationsForConfig(q Queryer, configID string) ([]*models.PlaceAllocation, error) {
	query := `SELECT pa.id, pa.event_allocation_id, pa.place, pa.event_pct, pa.created_at
			  FROM place_purse_allocations pa
			  JOIN event_purse_allocations ea ON ea.id = pa.event_allocation_id
			  WHERE ea.config_id = $1
			  ORDER BY pa.place`

	rows, err := q.Query(query, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocs []*models.PlaceAllocation
	for rows.Next() {
		a := &models.PlaceAllocation{}
		err := rows.Scan(&a.ID, &a.EventAllocationID, &a.Place, &a.EventPct, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

// EventAllocationExists reports whether an event allocation belongs to the
// given config, used to validate direct contribution targets.
func EventAllocationExists(q Queryer, eventAllocationID, configID string) (bool, error) {
	var exists bool
	err := q.QueryRow(`SELECT EXISTS (
			SELECT 1 FROM event_purse_allocations WHERE id = $1 AND config_id = $2
		)`, eventAllocationID, configID).Scan(&exists)
	return exists, err
}

func eventIDsForMeetTx(tx *sql.Tx, meetID string) (map[string]bool, error) {
	rows, err := tx.Query(`SELECT id FROM events WHERE meet_id = $1`, meetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23503"
}
