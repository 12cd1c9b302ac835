package database

import (
	"database/sql"
	"fmt"

	"tracklnd/app/models"
	"tracklnd/app/purse"
)

// AcquireConfigLock takes the per-config advisory lock for the duration of
// the transaction. Every critical section that mutates a config's ledger,
// snapshots or finalized flag serializes on this lock; external gateway
// calls happen before the transaction opens so the lock is never held
// across a network round-trip.
func AcquireConfigLock(tx *sql.Tx, configID string) error {
	_, err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext($1))`, configID)
	if err != nil {
		return fmt.Errorf("failed to acquire config lock: %v", err)
	}
	return nil
}

// LoadAllocationTree builds the in-memory allocation hierarchy for a config
// from its storage rows.
func LoadAllocationTree(q Queryer, configID string) (*purse.AllocationTree, error) {
	cfg, err := GetPurseConfig(q, configID)
	if err != nil {
		return nil, err
	}
	eventAllocs, err := ListEventAllocations(q, configID)
	if err != nil {
		return nil, err
	}
	placeAllocs, err := ListPlaceAllocationsForConfig(q, configID)
	if err != nil {
		return nil, err
	}
	seeds, err := ListSeedMoney(q, configID)
	if err != nil {
		return nil, err
	}
	return purse.BuildTree(cfg, eventAllocs, placeAllocs, seeds), nil
}

// RecalculateSnapshotsTx rebuilds every snapshot row for a config from the
// ledger inside an existing transaction. The caller is expected to hold the
// config lock. The rebuild is idempotent: replaying the same ledger
// produces identical rows.
func RecalculateSnapshotsTx(tx *sql.Tx, configID string) error {
	tree, err := LoadAllocationTree(tx, configID)
	if err != nil {
		return err
	}
	contribs, err := ListContributions(tx, configID)
	if err != nil {
		return err
	}
	refunded, err := RefundedContributionIDs(tx, configID)
	if err != nil {
		return err
	}

	result, err := tree.Recompute(contribs, refunded)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM purse_snapshots WHERE config_id = $1`, configID); err != nil {
		return fmt.Errorf("failed to clear snapshots: %v", err)
	}

	for _, t := range result.Totals {
		_, err := tx.Exec(`
			INSERT INTO purse_snapshots
			(config_id, scope_type, event_allocation_id, place_allocation_id, cached_total, contribution_count)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			configID, string(t.ScopeType), t.EventAllocationID, t.PlaceAllocationID, t.Total, t.Count)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %v", err)
		}
	}
	return nil
}

// RecalculateAllSnapshots is the standalone full recompute: one
// transaction, config lock held throughout.
func RecalculateAllSnapshots(db *sql.DB, configID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := AcquireConfigLock(tx, configID); err != nil {
		return err
	}
	if err := RecalculateSnapshotsTx(tx, configID); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplySnapshotDeltas applies incremental adjustments from a single ledger
// mutation. If any target row is missing (allocations changed since the
// snapshot was cut) it falls back to a full rebuild, which is always safe
// under the config lock.
func ApplySnapshotDeltas(tx *sql.Tx, configID string, deltas []purse.ScopeDelta) error {
	for _, d := range deltas {
		result, err := tx.Exec(`
			UPDATE purse_snapshots
			SET cached_total = cached_total + $4,
				contribution_count = contribution_count + $5,
				updated_at = NOW()
			WHERE config_id = $1 AND scope_type = $2
			  AND event_allocation_id IS NOT DISTINCT FROM $3
			  AND place_allocation_id IS NOT DISTINCT FROM $6`,
			configID, string(d.ScopeType), d.EventAllocationID, d.Amount, d.Count, d.PlaceAllocationID)
		if err != nil {
			return fmt.Errorf("failed to apply snapshot delta: %v", err)
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return RecalculateSnapshotsTx(tx, configID)
		}
	}
	return nil
}

// ListSnapshots retrieves every snapshot row for a config.
func ListSnapshots(q Queryer, configID string) ([]*models.Snapshot, error) {
	query := `SELECT id, config_id, scope_type, event_allocation_id, place_allocation_id,
			  cached_total, contribution_count, updated_at
			  FROM purse_snapshots WHERE config_id = $1
			  ORDER BY scope_type, event_allocation_id NULLS FIRST, place_allocation_id NULLS FIRST`

	rows, err := q.Query(query, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*models.Snapshot
	for rows.Next() {
		s := &models.Snapshot{}
		err := rows.Scan(&s.ID, &s.ConfigID, &s.ScopeType, &s.EventAllocationID,
			&s.PlaceAllocationID, &s.CachedTotal, &s.ContributionCount, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// GetMeetSnapshot retrieves the meet-scope snapshot for a config.
func GetMeetSnapshot(q Queryer, configID string) (*models.Snapshot, error) {
	s := &models.Snapshot{}
	query := `SELECT id, config_id, scope_type, event_allocation_id, place_allocation_id,
			  cached_total, contribution_count, updated_at
			  FROM purse_snapshots WHERE config_id = $1 AND scope_type = 'meet'`
	err := q.QueryRow(query, configID).Scan(&s.ID, &s.ConfigID, &s.ScopeType,
		&s.EventAllocationID, &s.PlaceAllocationID, &s.CachedTotal,
		&s.ContributionCount, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// TotalRaised sums every non-refunded purse dollar for a config, earmarks
// included. This is the "raised" figure, distinct from the meet scope's
// cached total.
func TotalRaised(q Queryer, configID string) (float64, error) {
	var total float64
	query := `SELECT COALESCE(SUM(c.purse_amount), 0)
			  FROM purse_contributions c
			  LEFT JOIN purse_refunds r ON r.contribution_id = c.id
			  WHERE c.config_id = $1 AND r.id IS NULL`
	err := q.QueryRow(query, configID).Scan(&total)
	return purse.RoundCents(total), err
}
