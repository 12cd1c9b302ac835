package services

import (
	"context"
	"testing"

	"tracklnd/app/database"
	"tracklnd/app/testutil"
)

func TestReconcileSnapshotsRepairsDrift(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, _, user := purseFixture(t, db)
	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	if _, err := s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:    cfg.ID,
		UserID:      user.ID,
		CardToken:   "cnon:ok",
		PaymentType: PaymentTypePPV,
	}); err != nil {
		t.Fatalf("RecordContribution failed: %v", err)
	}

	// Corrupt the cached meet total behind the engine's back.
	_, err := db.Exec(`UPDATE purse_snapshots SET cached_total = 999
					   WHERE config_id = $1 AND scope_type = 'meet'`, cfg.ID)
	if err != nil {
		t.Fatalf("failed to corrupt snapshot: %v", err)
	}

	if err := ReconcileSnapshots(db); err != nil {
		t.Fatalf("ReconcileSnapshots failed: %v", err)
	}

	snap, err := database.GetMeetSnapshot(db, cfg.ID)
	if err != nil {
		t.Fatalf("GetMeetSnapshot failed: %v", err)
	}
	if snap.CachedTotal != 10 {
		t.Errorf("meet snapshot = %.2f after reconcile, want 10.00", snap.CachedTotal)
	}
}

func TestReconcileSnapshotsLeavesHealthyConfigsAlone(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg, _, user := purseFixture(t, db)
	gateway := &stubGateway{}
	s := NewSettlement(db, gateway)

	if _, err := s.RecordContribution(context.Background(), ContributionRequest{
		ConfigID:    cfg.ID,
		UserID:      user.ID,
		CardToken:   "cnon:ok",
		PaymentType: PaymentTypePPV,
	}); err != nil {
		t.Fatalf("RecordContribution failed: %v", err)
	}

	before, err := database.ListSnapshots(db, cfg.ID)
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}

	if err := ReconcileSnapshots(db); err != nil {
		t.Fatalf("ReconcileSnapshots failed: %v", err)
	}

	after, err := database.ListSnapshots(db, cfg.ID)
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("snapshot rows changed: %d before, %d after", len(before), len(after))
	}
	for i := range before {
		if before[i].CachedTotal != after[i].CachedTotal || before[i].ContributionCount != after[i].ContributionCount {
			t.Errorf("row %d changed: %+v vs %+v", i, before[i], after[i])
		}
	}
}
