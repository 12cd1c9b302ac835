package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tracklnd/app/database"
	"tracklnd/app/models"
	"tracklnd/app/purse"
	"tracklnd/app/testutil"
)

// stubGateway records calls instead of talking to Square.
type stubGateway struct {
	mu        sync.Mutex
	captures  []string
	refunds   []string
	seq       int
	onCapture func() // runs after a successful capture, before returning
}

func (g *stubGateway) Capture(ctx context.Context, cardToken string, amountCents int64, idempotencyKey string) (string, error) {
	g.mu.Lock()
	g.seq++
	id := fmt.Sprintf("pay_%d", g.seq)
	g.captures = append(g.captures, id)
	hook := g.onCapture
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	return id, nil
}

func (g *stubGateway) Refund(ctx context.Context, paymentID string, amountCents int64, idempotencyKey string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.refunds = append(g.refunds, paymentID)
	return fmt.Sprintf("ref_%d", g.seq), nil
}

func (g *stubGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

// purseFixture stands up a meet with two events, a 60/40 allocation and a
// 70/30 place split under the first event.
func purseFixture(t *testing.T, db *sql.DB) (*models.PurseConfig, []*models.EventAllocation, *models.User) {
	t.Helper()

	user := testutil.CreateTestUser(t, db, models.RoleUser)
	meet := testutil.CreateTestMeet(t, db, "100m", "Long Jump")
	cfg := testutil.CreateTestConfig(t, db, meet.ID, testutil.WithTicket(25, 10))

	allocs := testutil.SetTestAllocations(t, db, cfg.ID, map[string]float64{
		meet.Events[0].ID: 60,
		meet.Events[1].ID: 40,
	})
	for _, a := range allocs {
		if a.EventID == meet.Events[0].ID {
			testutil.SetTestPlaces(t, db, a.ID, 70, 30)
		}
	}
	return cfg, allocs, user
}

func meetSnapshotTotal(t *testing.T, db *sql.DB, configID string) (float64, int) {
	t.Helper()
	snap, err := database.GetMeetSnapshot(db, configID)
	if err != nil {
		t.Fatalf("failed to read meet snapshot: %v", err)
	}
	return snap.CachedTotal, snap.ContributionCount
}

func TestRecordContributionPPVGrantsAccessAndFundsPurse(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, _, user := purseFixture(t, db)
	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	contribution, err := s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:    cfg.ID,
		UserID:      user.ID,
		CardToken:   "cnon:ok",
		PaymentType: PaymentTypePPV,
	})
	if err != nil {
		t.Fatalf("RecordContribution failed: %v", err)
	}

	if contribution.GrossAmount != 25 {
		t.Errorf("gross = %.2f, want 25.00 (ticket price)", contribution.GrossAmount)
	}
	if contribution.PurseAmount != 10 {
		t.Errorf("purse amount = %.2f, want 10.00 (static slice)", contribution.PurseAmount)
	}
	if contribution.SourceType != models.SourcePPVTicket {
		t.Errorf("source type = %s", contribution.SourceType)
	}

	total, count := meetSnapshotTotal(t, db, cfg.ID)
	if total != 10 || count != 1 {
		t.Errorf("meet snapshot = %.2f/%d, want 10.00/1", total, count)
	}

	access, err := database.GetMeetAccess(db, user.ID, cfg.MeetID)
	if err != nil {
		t.Fatalf("failed to read meet access: %v", err)
	}
	if access == nil || !access.Active() {
		t.Error("PPV purchase should grant active meet access")
	}
}

func TestRecordContributionDirectBelowMinimum(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, _, user := purseFixture(t, db)
	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	_, err := s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:    cfg.ID,
		UserID:      user.ID,
		CardToken:   "cnon:ok",
		PaymentType: PaymentTypeDirect,
		Amount:      1.99,
	})

	var policyErr *purse.PolicyError
	if !errors.As(err, &policyErr) || policyErr.Code != purse.BelowMinimum {
		t.Fatalf("expected below_minimum policy error, got %v", err)
	}
	if len(gateway.captures) != 0 {
		t.Error("card must not be charged for a rejected contribution")
	}
}

func TestRecordContributionWindowClosed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, _, user := purseFixture(t, db)

	past := time.Now().Add(-time.Hour)
	cfg.ContributionsCloseAt = &past
	if err := database.UpdatePurseConfig(db, cfg); err != nil {
		t.Fatalf("failed to close window: %v", err)
	}

	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	_, err := s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:    cfg.ID,
		UserID:      user.ID,
		CardToken:   "cnon:ok",
		PaymentType: PaymentTypePPV,
	})

	var policyErr *purse.PolicyError
	if !errors.As(err, &policyErr) || policyErr.Code != purse.WindowClosed {
		t.Fatalf("expected window_closed policy error, got %v", err)
	}
	if len(gateway.captures) != 0 {
		t.Error("card must not be charged when the window is closed")
	}
}

func TestRecordContributionEarmarkFlowsToOneEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, allocs, user := purseFixture(t, db)
	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	_, err := s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:          cfg.ID,
		UserID:            user.ID,
		CardToken:         "cnon:ok",
		PaymentType:       PaymentTypeDirect,
		EventAllocationID: &allocs[0].ID,
		Amount:            50,
	})
	if err != nil {
		t.Fatalf("RecordContribution failed: %v", err)
	}

	// The earmark bumps the meet count but not the meet pool.
	total, count := meetSnapshotTotal(t, db, cfg.ID)
	if total != 0 || count != 1 {
		t.Errorf("meet snapshot = %.2f/%d, want 0.00/1", total, count)
	}

	raised, err := database.TotalRaised(db, cfg.ID)
	if err != nil {
		t.Fatalf("TotalRaised failed: %v", err)
	}
	if raised != 50 {
		t.Errorf("total raised = %.2f, want 50.00", raised)
	}

	snapshots, err := database.ListSnapshots(db, cfg.ID)
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	for _, snap := range snapshots {
		if snap.ScopeType != models.ScopeEvent || snap.EventAllocationID == nil {
			continue
		}
		want := 0.0
		if *snap.EventAllocationID == allocs[0].ID {
			want = 50
		}
		if snap.CachedTotal != want {
			t.Errorf("event %s total = %.2f, want %.2f", *snap.EventAllocationID, snap.CachedTotal, want)
		}
	}
}

func TestRecordContributionRejectsForeignEarmark(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, _, user := purseFixture(t, db)

	otherMeet := testutil.CreateTestMeet(t, db, "Mile")
	otherCfg := testutil.CreateTestConfig(t, db, otherMeet.ID)
	otherAllocs := testutil.SetTestAllocations(t, db, otherCfg.ID, map[string]float64{
		otherMeet.Events[0].ID: 100,
	})

	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	_, err := s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:          cfg.ID,
		UserID:            user.ID,
		CardToken:         "cnon:ok",
		PaymentType:       PaymentTypeDirect,
		EventAllocationID: &otherAllocs[0].ID,
		Amount:            50,
	})

	var validationErr *purse.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error for foreign event allocation, got %v", err)
	}
	if len(gateway.captures) != 0 {
		t.Error("card must not be charged for a rejected earmark")
	}
}

func TestRecordRefundReversesContribution(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, _, user := purseFixture(t, db)
	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	contribution, err := s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:    cfg.ID,
		UserID:      user.ID,
		CardToken:   "cnon:ok",
		PaymentType: PaymentTypePPV,
	})
	if err != nil {
		t.Fatalf("RecordContribution failed: %v", err)
	}

	refund, err := s.RecordRefund(context.Background(), contribution.ID)
	if err != nil {
		t.Fatalf("RecordRefund failed: %v", err)
	}
	if refund.RefundAmount != 25 {
		t.Errorf("refund amount = %.2f, want the gross 25.00", refund.RefundAmount)
	}

	total, count := meetSnapshotTotal(t, db, cfg.ID)
	if total != 0 || count != 0 {
		t.Errorf("meet snapshot = %.2f/%d, want 0.00/0 after refund", total, count)
	}

	access, err := database.GetMeetAccess(db, user.ID, cfg.MeetID)
	if err != nil {
		t.Fatalf("failed to read meet access: %v", err)
	}
	if access == nil || access.Active() {
		t.Error("refunding a PPV ticket should revoke meet access")
	}

	// Second refund of the same contribution is rejected.
	_, err = s.RecordRefund(context.Background(), contribution.ID)
	var policyErr *purse.PolicyError
	if !errors.As(err, &policyErr) || policyErr.Code != purse.AlreadyRefunded {
		t.Fatalf("expected already_refunded policy error, got %v", err)
	}
}

func TestConcurrentRefundsSingleWinner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, _, user := purseFixture(t, db)
	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	contribution, err := s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:    cfg.ID,
		UserID:      user.ID,
		CardToken:   "cnon:ok",
		PaymentType: PaymentTypePPV,
	})
	if err != nil {
		t.Fatalf("RecordContribution failed: %v", err)
	}

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordRefund(context.Background(), contribution.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var winners, losers int
	for err := range errs {
		if err == nil {
			winners++
			continue
		}
		var policyErr *purse.PolicyError
		if errors.As(err, &policyErr) && policyErr.Code == purse.AlreadyRefunded {
			losers++
			continue
		}
		t.Errorf("unexpected refund error: %v", err)
	}
	if winners != 1 {
		t.Errorf("refund winners = %d, want exactly 1", winners)
	}
	if winners+losers != attempts {
		t.Errorf("winners+losers = %d, want %d", winners+losers, attempts)
	}

	// The purse must reflect exactly one reversal.
	total, count := meetSnapshotTotal(t, db, cfg.ID)
	if total != 0 || count != 0 {
		t.Errorf("meet snapshot = %.2f/%d, want 0.00/0", total, count)
	}
}

func TestFinalizeFreezesThePurse(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, _, user := purseFixture(t, db)
	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	contribution, err := s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:    cfg.ID,
		UserID:      user.ID,
		CardToken:   "cnon:ok",
		PaymentType: PaymentTypePPV,
	})
	if err != nil {
		t.Fatalf("RecordContribution failed: %v", err)
	}

	if err := s.Finalize(context.Background(), cfg.ID); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	final, err := database.GetPurseConfig(db, cfg.ID)
	if err != nil {
		t.Fatalf("failed to reload config: %v", err)
	}
	if !final.IsFinalized || final.IsActive {
		t.Errorf("config after finalize: finalized=%v active=%v, want true/false", final.IsFinalized, final.IsActive)
	}

	// Totals survive finalization.
	total, _ := meetSnapshotTotal(t, db, cfg.ID)
	if total != 10 {
		t.Errorf("meet snapshot = %.2f, want 10.00", total)
	}

	// Finalize is one-way and not repeatable.
	err = s.Finalize(context.Background(), cfg.ID)
	var policyErr *purse.PolicyError
	if !errors.As(err, &policyErr) || policyErr.Code != purse.AlreadyFinalized {
		t.Fatalf("expected already_finalized policy error, got %v", err)
	}

	// No contributions or refunds after the freeze.
	_, err = s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:    cfg.ID,
		UserID:      user.ID,
		CardToken:   "cnon:ok",
		PaymentType: PaymentTypePPV,
	})
	if !errors.As(err, &policyErr) || policyErr.Code != purse.AlreadyFinalized {
		t.Fatalf("expected already_finalized for post-freeze contribution, got %v", err)
	}
	_, err = s.RecordRefund(context.Background(), contribution.ID)
	if !errors.As(err, &policyErr) || policyErr.Code != purse.AlreadyFinalized {
		t.Fatalf("expected already_finalized for post-freeze refund, got %v", err)
	}
}

func TestMidFlightFinalizeCompensatesCapture(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, _, user := purseFixture(t, db)
	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	// Finalize the purse between the capture and the ledger write.
	gateway.onCapture = func() {
		if err := s.Finalize(context.Background(), cfg.ID); err != nil {
			t.Errorf("mid-flight finalize failed: %v", err)
		}
	}

	_, err := s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:    cfg.ID,
		UserID:      user.ID,
		CardToken:   "cnon:ok",
		PaymentType: PaymentTypePPV,
	})

	var policyErr *purse.PolicyError
	if !errors.As(err, &policyErr) || policyErr.Code != purse.AlreadyFinalized {
		t.Fatalf("expected already_finalized policy error, got %v", err)
	}

	// The orphaned capture got a compensating refund.
	if gateway.refundCount() != 1 {
		t.Errorf("compensating refunds = %d, want 1", gateway.refundCount())
	}

	// Nothing landed in the ledger.
	contribs, err := database.ListContributions(db, cfg.ID)
	if err != nil {
		t.Fatalf("ListContributions failed: %v", err)
	}
	if len(contribs) != 0 {
		t.Errorf("ledger has %d contributions, want 0", len(contribs))
	}
}

func TestRecalculateMatchesIncrementalState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, allocs, user := purseFixture(t, db)
	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	requests := []ContributionRequest{
		{ConfigID: cfg.ID, UserID: user.ID, CardToken: "cnon:ok", PaymentType: PaymentTypePPV},
		{ConfigID: cfg.ID, UserID: user.ID, CardToken: "cnon:ok", PaymentType: PaymentTypeDirect, Amount: 40},
		{ConfigID: cfg.ID, UserID: user.ID, CardToken: "cnon:ok", PaymentType: PaymentTypeDirect, EventAllocationID: &allocs[1].ID, Amount: 15},
	}
	for _, req := range requests {
		if _, err := s.RecordContribution(context.Background(), req); err != nil {
			t.Fatalf("RecordContribution failed: %v", err)
		}
	}

	before, err := database.ListSnapshots(db, cfg.ID)
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}

	if err := s.Recalculate(cfg.ID); err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}

	after, err := database.ListSnapshots(db, cfg.ID)
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}

	totals := func(snaps []*models.Snapshot) map[string]float64 {
		m := make(map[string]float64)
		for _, s := range snaps {
			k := string(s.ScopeType)
			if s.EventAllocationID != nil {
				k += ":" + *s.EventAllocationID
			}
			if s.PlaceAllocationID != nil {
				k += ":" + *s.PlaceAllocationID
			}
			m[k] = s.CachedTotal
		}
		return m
	}

	b, a := totals(before), totals(after)
	if len(b) != len(a) {
		t.Fatalf("snapshot rows changed: %d before, %d after", len(b), len(a))
	}
	for k, v := range b {
		if a[k] != v {
			t.Errorf("%s: incremental %.2f, full recompute %.2f", k, v, a[k])
		}
	}
}
