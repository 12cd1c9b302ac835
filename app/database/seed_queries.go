package database

import (
	"database/sql"
	"fmt"

	"tracklnd/app/models"
	"tracklnd/app/purse"
)

// AddSeedMoney inserts a seed money row and refreshes the snapshots in the
// same transaction. The scope references must form a valid chain: a place
// seed names both the place allocation and its parent event allocation.
func AddSeedMoney(db *sql.DB, seed *models.SeedMoney) error {
	if seed.Amount <= 0 {
		return purse.Validationf("seed amount must be positive, got %.2f", seed.Amount)
	}
	if seed.PlaceAllocationID != nil && seed.EventAllocationID == nil {
		return purse.Validationf("a place-level seed must also name its event allocation")
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := AcquireConfigLock(tx, seed.ConfigID); err != nil {
		return err
	}
	cfg, err := GetPurseConfigForUpdate(tx, seed.ConfigID)
	if err != nil {
		return err
	}
	if cfg.IsFinalized {
		return purse.Policyf(purse.AlreadyFinalized, "purse config %s is finalized and read-only", seed.ConfigID)
	}

	if seed.EventAllocationID != nil {
		var ok bool
		err := tx.QueryRow(`SELECT EXISTS (
				SELECT 1 FROM event_purse_allocations WHERE id = $1 AND config_id = $2
			)`, *seed.EventAllocationID, seed.ConfigID).Scan(&ok)
		if err != nil {
			return err
		}
		if !ok {
			return purse.Validationf("event allocation %s does not belong to this config", *seed.EventAllocationID)
		}
	}
	if seed.PlaceAllocationID != nil {
		var ok bool
		err := tx.QueryRow(`SELECT EXISTS (
				SELECT 1 FROM place_purse_allocations WHERE id = $1 AND event_allocation_id = $2
			)`, *seed.PlaceAllocationID, *seed.EventAllocationID).Scan(&ok)
		if err != nil {
			return err
		}
		if !ok {
			return purse.Validationf("place allocation %s does not belong to event allocation %s",
				*seed.PlaceAllocationID, *seed.EventAllocationID)
		}
	}

	query := `INSERT INTO purse_seed_money
			  (config_id, amount, note, event_allocation_id, place_allocation_id)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id, created_at`
	err = tx.QueryRow(query, seed.ConfigID, seed.Amount, seed.Note,
		seed.EventAllocationID, seed.PlaceAllocationID).Scan(&seed.ID, &seed.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert seed money: %v", err)
	}

	if err := RecalculateSnapshotsTx(tx, seed.ConfigID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListSeedMoney retrieves all seed money rows for a config.
func ListSeedMoney(q Queryer, configID string) ([]*models.SeedMoney, error) {
	query := `SELECT id, config_id, amount, note, event_allocation_id, place_allocation_id, created_at
			  FROM purse_seed_money WHERE config_id = $1 ORDER BY created_at`

	rows, err := q.Query(query, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seeds []*models.SeedMoney
	for rows.Next() {
		s := &models.SeedMoney{}
		err := rows.Scan(&s.ID, &s.ConfigID, &s.Amount, &s.Note,
			&s.EventAllocationID, &s.PlaceAllocationID, &s.CreatedAt)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, s)
	}
	return seeds, rows.Err()
}

// DeleteSeedMoney removes a seed money row and refreshes the snapshots.
func DeleteSeedMoney(db *sql.DB, seedID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var configID string
	err = tx.QueryRow(`SELECT config_id FROM purse_seed_money WHERE id = $1`, seedID).Scan(&configID)
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

	if _, err := tx.Exec(`DELETE FROM purse_seed_money WHERE id = $1`, seedID); err != nil {
		return fmt.Errorf("failed to delete seed money: %v", err)
	}

	if err := RecalculateSnapshotsTx(tx, configID); err != nil {
		return err
	}
	return tx.Commit()
}
