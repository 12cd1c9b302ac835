package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"tracklnd/app/database"
	"tracklnd/app/models"
	"tracklnd/app/monitoring"
	"tracklnd/app/payments"
	"tracklnd/app/purse"

	"github.com/google/uuid"
)

// nowFunc is swapped out in tests that exercise the contribution window.
var nowFunc = time.Now

// Gateway is the payment processor contract the settlement flow depends
// on. payments.Client implements it; tests substitute a stub.
type Gateway interface {
	Capture(ctx context.Context, cardToken string, amountCents int64, idempotencyKey string) (string, error)
	Refund(ctx context.Context, paymentID string, amountCents int64, idempotencyKey string) (string, error)
}

// Settlement orchestrates ledger mutations: it validates policy, talks to
// the payment gateway outside any lock, and then writes the ledger row and
// its snapshot effect in one locked transaction.
type Settlement struct {
	db      *sql.DB
	gateway Gateway
}

func NewSettlement(db *sql.DB, gateway Gateway) *Settlement {
	return &Settlement{db: db, gateway: gateway}
}

// PaymentType distinguishes the two entry-point payment flavors.
const (
	PaymentTypePPV    = "ppv"
	PaymentTypeDirect = "direct"
)

// ContributionRequest carries everything needed to record one inflow.
type ContributionRequest struct {
	ConfigID          string
	UserID            string
	CardToken         string
	PaymentType       string
	EventAllocationID *string
	Amount            float64
}

// RecordContribution runs the full payment flow: policy checks, card
// capture, then the locked ledger + snapshot write. The gateway call
// happens before the transaction opens, so the per-config lock is never
// held across a network round-trip. If the purse state changed between
// capture and write (finalized mid-flight, window closed), the captured
// charge is reversed and the policy error surfaces to the caller.
func (s *Settlement) RecordContribution(ctx context.Context, req ContributionRequest) (*models.Contribution, error) {
	cfg, err := database.GetPurseConfig(s.db, req.ConfigID)
	if err != nil {
		return nil, err
	}
	if err := checkAcceptsContributions(cfg); err != nil {
		return nil, err
	}

	var gross, purseAmount float64
	var sourceType models.SourceType

	switch req.PaymentType {
	case PaymentTypePPV:
		gross = cfg.PPVTicketPrice
		purseAmount = cfg.TicketPurseAmount()
		sourceType = models.SourcePPVTicket
	case PaymentTypeDirect:
		if req.Amount <= 0 {
			return nil, purse.Validationf("amount is required for direct contributions")
		}
		gross = req.Amount
		purseAmount = req.Amount
		sourceType = models.SourceDirectMeet
		if req.EventAllocationID != nil {
			sourceType = models.SourceDirectEvent
		}
	default:
		return nil, purse.Validationf("payment_type must be %q or %q", PaymentTypePPV, PaymentTypeDirect)
	}

	if purseAmount < purse.MinContribution {
		return nil, purse.Policyf(purse.BelowMinimum,
			"minimum purse contribution is $%.2f, got $%.2f", purse.MinContribution, purseAmount)
	}

	if sourceType == models.SourceDirectEvent {
		ok, err := database.EventAllocationExists(s.db, *req.EventAllocationID, req.ConfigID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, purse.Validationf("event allocation %s does not belong to this config", *req.EventAllocationID)
		}
	}

	// Capture first. An ambiguous gateway failure records nothing; the
	// idempotency key keeps a client retry from double-charging.
	grossCents := payments.ToCents(gross)
	paymentID, err := s.gateway.Capture(ctx, req.CardToken, grossCents, uuid.New().String())
	if err != nil {
		return nil, err
	}

	contribution := &models.Contribution{
		ConfigID:          req.ConfigID,
		SourceType:        sourceType,
		EventAllocationID: req.EventAllocationID,
		UserID:            req.UserID,
		GrossAmount:       gross,
		PurseAmount:       purse.RoundCents(purseAmount),
		SquarePaymentID:   paymentID,
	}

	if err := s.writeContribution(cfg.MeetID, contribution); err != nil {
		s.reverseCapture(ctx, paymentID, grossCents)
		return nil, err
	}

	monitoring.ContributionsRecorded.Inc()
	return contribution, nil
}

func (s *Settlement) writeContribution(meetID string, c *models.Contribution) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := database.AcquireConfigLock(tx, c.ConfigID); err != nil {
		return err
	}

	// Re-check under the lock: the purse may have been finalized or
	// deactivated between the pre-capture check and here.
	cfg, err := database.GetPurseConfigForUpdate(tx, c.ConfigID)
	if err != nil {
		return err
	}
	if err := checkAcceptsContributions(cfg); err != nil {
		return err
	}

	if err := database.InsertContribution(tx, c); err != nil {
		return err
	}

	tree, err := database.LoadAllocationTree(tx, c.ConfigID)
	if err != nil {
		return err
	}
	deltas, err := tree.Cascade(c.SourceType, c.EventAllocationID, c.PurseAmount, 1)
	if err != nil {
		return err
	}
	if err := database.ApplySnapshotDeltas(tx, c.ConfigID, deltas); err != nil {
		return err
	}

	if c.SourceType == models.SourcePPVTicket {
		if err := database.UpsertMeetAccess(tx, c.UserID, meetID, c.SquarePaymentID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// reverseCapture compensates a captured charge whose ledger write was
// rejected. A failure here leaves money at the gateway with no ledger row,
// which is only recoverable by manual reconciliation, so it is logged as
// loudly as possible.
func (s *Settlement) reverseCapture(ctx context.Context, paymentID string, amountCents int64) {
	if _, err := s.gateway.Refund(ctx, paymentID, amountCents, uuid.New().String()); err != nil {
		log.Printf("ALERT: failed to reverse orphaned capture %s (%d cents), needs manual reconciliation: %v",
			paymentID, amountCents, err)
	}
}

// RecordRefund reverses one contribution: gateway refund first, then the
// locked ledger + snapshot write. The refund's idempotency key is the
// contribution ID itself, so two concurrent attempts collapse into a
// single refund at the gateway while the unique constraint picks the
// single ledger winner.
func (s *Settlement) RecordRefund(ctx context.Context, contributionID string) (*models.Refund, error) {
	contribution, err := database.GetContribution(s.db, contributionID)
	if err != nil {
		return nil, err
	}
	cfg, err := database.GetPurseConfig(s.db, contribution.ConfigID)
	if err != nil {
		return nil, err
	}

	if err := checkAcceptsRefunds(cfg); err != nil {
		return nil, err
	}

	refunded, err := database.HasRefund(s.db, contributionID)
	if err != nil {
		return nil, err
	}
	if refunded {
		return nil, purse.Policyf(purse.AlreadyRefunded, "contribution %s has already been refunded", contributionID)
	}

	grossCents := payments.ToCents(contribution.GrossAmount)
	refundID, err := s.gateway.Refund(ctx, contribution.SquarePaymentID, grossCents, contributionID)
	if err != nil {
		return nil, err
	}

	refund := &models.Refund{
		ConfigID:       contribution.ConfigID,
		ContributionID: contributionID,
		RefundAmount:   contribution.GrossAmount,
		SquareRefundID: refundID,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := database.AcquireConfigLock(tx, contribution.ConfigID); err != nil {
		return nil, err
	}
	cfg, err = database.GetPurseConfigForUpdate(tx, contribution.ConfigID)
	if err != nil {
		return nil, err
	}
	if err := checkAcceptsRefunds(cfg); err != nil {
		return nil, err
	}

	if err := database.InsertRefund(tx, refund); err != nil {
		return nil, err
	}

	tree, err := database.LoadAllocationTree(tx, contribution.ConfigID)
	if err != nil {
		return nil, err
	}
	deltas, err := tree.Cascade(contribution.SourceType, contribution.EventAllocationID, -contribution.PurseAmount, -1)
	if err != nil {
		return nil, err
	}
	if err := database.ApplySnapshotDeltas(tx, contribution.ConfigID, deltas); err != nil {
		return nil, err
	}

	if contribution.SourceType == models.SourcePPVTicket {
		if err := database.RevokeMeetAccess(tx, contribution.UserID, cfg.MeetID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	monitoring.RefundsRecorded.Inc()
	return refund, nil
}

// Finalize locks a purse forever: a synchronous full recompute so the
// frozen numbers carry no incremental drift, then the one-way flag flip.
// If the recompute fails the flag is never flipped.
func (s *Settlement) Finalize(ctx context.Context, configID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := database.AcquireConfigLock(tx, configID); err != nil {
		return err
	}
	cfg, err := database.GetPurseConfigForUpdate(tx, configID)
	if err != nil {
		return err
	}
	if cfg.IsFinalized {
		return purse.Policyf(purse.AlreadyFinalized, "purse config %s is already finalized", configID)
	}
	if !cfg.IsActive {
		return purse.Policyf(purse.NotActive, "purse config %s is not active", configID)
	}

	if err := database.RecalculateSnapshotsTx(tx, configID); err != nil {
		return err
	}
	monitoring.SnapshotRecomputes.Inc()

	result, err := tx.Exec(`
		UPDATE prize_purse_configs
		SET is_active = false, is_finalized = true, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND is_finalized = false AND is_active = true`, configID)
	if err != nil {
		return fmt.Errorf("failed to finalize purse config: %v", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return purse.Policyf(purse.AlreadyFinalized, "purse config %s changed state during finalization", configID)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("Purse config %s finalized", configID)
	return nil
}

// Recalculate runs the standalone full snapshot rebuild for a config.
func (s *Settlement) Recalculate(configID string) error {
	if err := database.RecalculateAllSnapshots(s.db, configID); err != nil {
		return err
	}
	monitoring.SnapshotRecomputes.Inc()
	return nil
}

func checkAcceptsContributions(cfg *models.PurseConfig) error {
	if cfg.IsFinalized {
		return purse.Policyf(purse.AlreadyFinalized, "purse has been finalized")
	}
	if !cfg.IsActive {
		return purse.Policyf(purse.NotActive, "purse is not active")
	}
	now := nowFunc()
	if cfg.ContributionsOpenAt != nil && now.Before(*cfg.ContributionsOpenAt) {
		return purse.Policyf(purse.WindowNotOpen, "contributions are not yet open")
	}
	if cfg.ContributionsCloseAt != nil && now.After(*cfg.ContributionsCloseAt) {
		return purse.Policyf(purse.WindowClosed, "contribution window has closed")
	}
	return nil
}

// checkAcceptsRefunds gates refunds on the close timestamp alone: once the
// window closes contributions are locked in regardless of finalization
// state. A finalized purse rejects refunds as well.
func checkAcceptsRefunds(cfg *models.PurseConfig) error {
	if cfg.IsFinalized {
		return purse.Policyf(purse.AlreadyFinalized, "purse has been finalized")
	}
	if cfg.ContributionsCloseAt != nil && nowFunc().After(*cfg.ContributionsCloseAt) {
		return purse.Policyf(purse.WindowClosed, "refund window has closed, contributions are locked")
	}
	return nil
}
