package services

import (
	"database/sql"
	"log"
	"time"

	"tracklnd/app/database"
	"tracklnd/app/monitoring"
	"tracklnd/app/purse"
)

// StartScheduler starts the background task scheduler.
func StartScheduler(db *sql.DB) {
	go func() {
		log.Println("Scheduler started...")
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			if err := ReconcileSnapshots(db); err != nil {
				log.Printf("Error reconciling snapshots: %v", err)
			}
		}
	}()
}

// ReconcileSnapshots walks every active purse config, recomputes its totals
// from the ledger and compares them against the cached snapshot rows.
// Incremental updates can drift by a cent or two over many mutations; any
// mismatch is logged and repaired by a full rebuild.
func ReconcileSnapshots(db *sql.DB) error {
	rows, err := db.Query(`SELECT id FROM prize_purse_configs
						   WHERE is_active = true AND is_finalized = false AND deleted_at IS NULL`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var configIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		configIDs = append(configIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, configID := range configIDs {
		drifted, err := snapshotDrift(db, configID)
		if err != nil {
			// A config being edited can have a transiently invalid
			// hierarchy; skip it and let the next sweep retry.
			log.Printf("Skipping drift check for config %s: %v", configID, err)
			continue
		}
		if !drifted {
			continue
		}

		log.Printf("Snapshot drift detected for config %s, recomputing", configID)
		if err := database.RecalculateAllSnapshots(db, configID); err != nil {
			log.Printf("Failed to repair snapshots for config %s: %v", configID, err)
			continue
		}
		monitoring.SnapshotDriftRepaired.Inc()
	}

	return nil
}

// snapshotDrift reports whether any cached total differs from what a fresh
// recompute would produce.
func snapshotDrift(db *sql.DB, configID string) (bool, error) {
	tree, err := database.LoadAllocationTree(db, configID)
	if err != nil {
		return false, err
	}
	contribs, err := database.ListContributions(db, configID)
	if err != nil {
		return false, err
	}
	refunded, err := database.RefundedContributionIDs(db, configID)
	if err != nil {
		return false, err
	}
	result, err := tree.Recompute(contribs, refunded)
	if err != nil {
		return false, err
	}

	snapshots, err := database.ListSnapshots(db, configID)
	if err != nil {
		return false, err
	}

	cached := make(map[string]*snapshotValue, len(snapshots))
	for _, s := range snapshots {
		cached[scopeKey(string(s.ScopeType), s.EventAllocationID, s.PlaceAllocationID)] = &snapshotValue{
			total: s.CachedTotal,
			count: s.ContributionCount,
		}
	}

	if len(snapshots) != len(result.Totals) {
		return true, nil
	}
	for _, t := range result.Totals {
		v, ok := cached[scopeKey(string(t.ScopeType), t.EventAllocationID, t.PlaceAllocationID)]
		if !ok || v.count != t.Count || purse.RoundCents(v.total-t.Total) != 0 {
			return true, nil
		}
	}
	return false, nil
}

type snapshotValue struct {
	total float64
	count int
}

func scopeKey(scopeType string, eventAllocID, placeAllocID *string) string {
	key := scopeType
	if eventAllocID != nil {
		key += ":" + *eventAllocID
	}
	if placeAllocID != nil {
		key += ":" + *placeAllocID
	}
	return key
}
