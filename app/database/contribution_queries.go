package database

import (
	"database/sql"
	"fmt"

	"tracklnd/app/models"
	"tracklnd/app/purse"
)

// InsertContribution appends a ledger row. Contributions are immutable from
// here on; only a Refund row can counteract one.
func InsertContribution(tx *sql.Tx, c *models.Contribution) error {
	query := `INSERT INTO purse_contributions
			  (config_id, source_type, event_allocation_id, user_id, gross_amount, purse_amount, square_payment_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING id, created_at`
	err := tx.QueryRow(query,
		c.ConfigID, string(c.SourceType), c.EventAllocationID, c.UserID,
		c.GrossAmount, c.PurseAmount, c.SquarePaymentID,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert contribution: %v", err)
	}
	return nil
}

// GetContribution retrieves one ledger row by ID.
func GetContribution(q Queryer, contributionID string) (*models.Contribution, error) {
	c := &models.Contribution{}
	query := `SELECT id, config_id, source_type, event_allocation_id, user_id,
			  gross_amount, purse_amount, square_payment_id, created_at
			  FROM purse_contributions WHERE id = $1`
	err := q.QueryRow(query, contributionID).Scan(
		&c.ID, &c.ConfigID, &c.SourceType, &c.EventAllocationID, &c.UserID,
		&c.GrossAmount, &c.PurseAmount, &c.SquarePaymentID, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListContributions retrieves the full ledger for a config in insertion
// order.
func ListContributions(q Queryer, configID string) ([]*models.Contribution, error) {
	query := `SELECT id, config_id, source_type, event_allocation_id, user_id,
			  gross_amount, purse_amount, square_payment_id, created_at
			  FROM purse_contributions WHERE config_id = $1 ORDER BY created_at`

	rows, err := q.Query(query, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contribs []*models.Contribution
	for rows.Next() {
		c := &models.Contribution{}
		err := rows.Scan(&c.ID, &c.ConfigID, &c.SourceType, &c.EventAllocationID,
			&c.UserID, &c.GrossAmount, &c.PurseAmount, &c.SquarePaymentID, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		contribs = append(contribs, c)
	}
	return contribs, rows.Err()
}

// RefundedContributionIDs returns the set of contribution IDs that already
// have a refund row.
func RefundedContributionIDs(q Queryer, configID string) (map[string]bool, error) {
	rows, err := q.Query(`SELECT contribution_id FROM purse_refunds WHERE config_id = $1`, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunded := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		refunded[id] = true
	}
	return refunded, rows.Err()
}

// HasRefund reports whether a contribution has already been refunded.
func HasRefund(q Queryer, contributionID string) (bool, error) {
	var exists bool
	err := q.QueryRow(`SELECT EXISTS (SELECT 1 FROM purse_refunds WHERE contribution_id = $1)`,
		contributionID).Scan(&exists)
	return exists, err
}

// InsertRefund appends a refund row. The unique constraint on
// contribution_id turns a concurrent double refund into a clean
// AlreadyRefunded for the loser.
func InsertRefund(tx *sql.Tx, r *models.Refund) error {
	query := `INSERT INTO purse_refunds
			  (config_id, contribution_id, refund_amount, square_refund_id)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id, created_at`
	err := tx.QueryRow(query, r.ConfigID, r.ContributionID, r.RefundAmount, r.SquareRefundID).
		Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return purse.Policyf(purse.AlreadyRefunded, "contribution %s has already been refunded", r.ContributionID)
		}
		return fmt.Errorf("failed to insert refund: %v", err)
	}
	return nil
}

// UpsertMeetAccess grants (or re-grants) PPV access for a user and meet.
// A repeat purchase after a refund reuses the same row and clears the
// revocation stamp.
func UpsertMeetAccess(tx *sql.Tx, userID, meetID, squarePaymentID string) error {
	_, err := tx.Exec(`
		INSERT INTO user_meet_access (user_id, meet_id, access_type, square_payment_id)
		VALUES ($1, $2, 'ppv', $3)
		ON CONFLICT (user_id, meet_id) DO UPDATE
		SET square_payment_id = EXCLUDED.square_payment_id,
			granted_at = NOW(),
			revoked_at = NULL`,
		userID, meetID, squarePaymentID)
	if err != nil {
		return fmt.Errorf("failed to grant meet access: %v", err)
	}
	return nil
}

// RevokeMeetAccess soft-deletes a user's access grant by stamping
// revoked_at; the row itself stays for the audit trail.
func RevokeMeetAccess(tx *sql.Tx, userID, meetID string) error {
	_, err := tx.Exec(`UPDATE user_meet_access SET revoked_at = NOW()
					   WHERE user_id = $1 AND meet_id = $2 AND revoked_at IS NULL`,
		userID, meetID)
	if err != nil {
		return fmt.Errorf("failed to revoke meet access: %v", err)
	}
	return nil
}
