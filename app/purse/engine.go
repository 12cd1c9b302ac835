package purse

import (
	"math"

	"tracklnd/app/models"
)

// PctTolerance is the slack allowed when checking that a percentage set
// sums to 100.00.
const PctTolerance = 0.01

// PlaceNode is one paid place inside an event's allocation subtree.
type PlaceNode struct {
	Alloc *models.PlaceAllocation
	Seed  float64
}

// EventNode is one event's allocation subtree.
type EventNode struct {
	Alloc  *models.EventAllocation
	Seed   float64
	Places []*PlaceNode
}

// AllocationTree is the percentage hierarchy of a purse config (meet ->
// events -> places) with seed money attached at each scope. It is built
// once from storage rows and then computes totals in memory, which keeps
// the cascade unit-testable without a database.
type AllocationTree struct {
	Config   *models.PurseConfig
	MeetSeed float64
	Events   []*EventNode

	byEventAlloc map[string]*EventNode
}

// BuildTree assembles the allocation hierarchy from its storage rows.
// Place allocations whose parent event allocation is missing are dropped;
// the same goes for seed money rows pointing at unknown allocations.
func BuildTree(cfg *models.PurseConfig, eventAllocs []*models.EventAllocation, placeAllocs []*models.PlaceAllocation, seeds []*models.SeedMoney) *AllocationTree {
	tree := &AllocationTree{
		Config:       cfg,
		byEventAlloc: make(map[string]*EventNode),
	}

	for _, ea := range eventAllocs {
		node := &EventNode{Alloc: ea}
		tree.Events = append(tree.Events, node)
		tree.byEventAlloc[ea.ID] = node
	}

	placeNodes := make(map[string]*PlaceNode)
	for _, pa := range placeAllocs {
		parent, ok := tree.byEventAlloc[pa.EventAllocationID]
		if !ok {
			continue
		}
		node := &PlaceNode{Alloc: pa}
		parent.Places = append(parent.Places, node)
		placeNodes[pa.ID] = node
	}

	for _, seed := range seeds {
		switch seed.Scope() {
		case models.ScopePlace:
			if node, ok := placeNodes[*seed.PlaceAllocationID]; ok {
				node.Seed += seed.Amount
			}
		case models.ScopeEvent:
			if node, ok := tree.byEventAlloc[*seed.EventAllocationID]; ok {
				node.Seed += seed.Amount
			}
		default:
			tree.MeetSeed += seed.Amount
		}
	}

	return tree
}

// Validate checks every percentage level of the hierarchy. Event-level and
// place-level sets are checked independently; a level with no rows yet is
// not an error (the config is simply still being edited).
func (t *AllocationTree) Validate() error {
	if len(t.Events) > 0 {
		var total float64
		for _, ev := range t.Events {
			total += ev.Alloc.MeetPct
		}
		if math.Abs(total-100) > PctTolerance {
			return Consistencyf("event allocations for config %s sum to %.2f%%, expected 100.00%%", t.Config.ID, total)
		}
	}

	for _, ev := range t.Events {
		if len(ev.Places) == 0 {
			continue
		}
		var total float64
		for _, pl := range ev.Places {
			total += pl.Alloc.EventPct
		}
		if math.Abs(total-100) > PctTolerance {
			return Consistencyf("place allocations for event allocation %s sum to %.2f%%, expected 100.00%%", ev.Alloc.ID, total)
		}
	}

	return nil
}

// ScopeTotal is one absolute snapshot value produced by a full recompute.
type ScopeTotal struct {
	ScopeType         models.ScopeType
	EventAllocationID *string
	PlaceAllocationID *string
	Total             float64
	Count             int
}

// ScopeDelta is one incremental snapshot adjustment produced by Cascade.
type ScopeDelta struct {
	ScopeType         models.ScopeType
	EventAllocationID *string
	PlaceAllocationID *string
	Amount            float64
	Count             int
}

// RecomputeResult carries the full set of snapshot values for a config.
// TotalRaised (every non-refunded purse dollar, earmarks included) is kept
// separate from the meet scope's cached total (seed plus the pool that
// cascades through the hierarchy) so direct earmarks are never double
// counted into the cascading pool.
type RecomputeResult struct {
	Totals      []ScopeTotal
	TotalRaised float64
}

// Recompute rebuilds every scope total from the ledger. refunded holds the
// IDs of contributions that have a refund row; those contribute nothing.
// The computation is deterministic, so running it twice over the same
// ledger yields identical totals.
func (t *AllocationTree) Recompute(contribs []*models.Contribution, refunded map[string]bool) (*RecomputeResult, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var meetPool, raised float64
	var poolCount, meetCount int
	directAmount := make(map[string]float64)
	directCount := make(map[string]int)

	for _, c := range contribs {
		if refunded[c.ID] {
			continue
		}
		raised += c.PurseAmount
		meetCount++

		if c.SourceType == models.SourceDirectEvent {
			if c.EventAllocationID == nil {
				return nil, Validationf("direct_event contribution %s has no event allocation target", c.ID)
			}
			if _, ok := t.byEventAlloc[*c.EventAllocationID]; !ok {
				return nil, Validationf("contribution %s targets unknown event allocation %s", c.ID, *c.EventAllocationID)
			}
			directAmount[*c.EventAllocationID] += c.PurseAmount
			directCount[*c.EventAllocationID]++
			continue
		}

		meetPool += c.PurseAmount
		poolCount++
	}

	result := &RecomputeResult{TotalRaised: RoundCents(raised)}
	result.Totals = append(result.Totals, ScopeTotal{
		ScopeType: models.ScopeMeet,
		Total:     RoundCents(t.MeetSeed + meetPool),
		Count:     meetCount,
	})

	for _, ev := range t.Events {
		eaID := ev.Alloc.ID
		// Money flowing through this event: its percentage share of the
		// cascading pool plus any direct earmarks. Seeds stay at their own
		// scope and never cascade further down.
		flow := meetPool*ev.Alloc.MeetPct/100 + directAmount[eaID]
		count := poolCount + directCount[eaID]

		id := eaID
		result.Totals = append(result.Totals, ScopeTotal{
			ScopeType:         models.ScopeEvent,
			EventAllocationID: &id,
			Total:             RoundCents(ev.Seed + flow),
			Count:             count,
		})

		for _, pl := range ev.Places {
			pid := pl.Alloc.ID
			eid := eaID
			result.Totals = append(result.Totals, ScopeTotal{
				ScopeType:         models.ScopePlace,
				EventAllocationID: &eid,
				PlaceAllocationID: &pid,
				Total:             RoundCents(pl.Seed + flow*pl.Alloc.EventPct/100),
				Count:             count,
			})
		}
	}

	return result, nil
}

// Cascade computes the incremental snapshot adjustments for a single ledger
// mutation. For a new contribution pass its purse amount and count +1; for
// a refund pass the negated amount and count -1. Incremental rounding can
// drift a cent or two from a full recompute over many mutations, which is
// why finalization always recomputes from scratch.
func (t *AllocationTree) Cascade(source models.SourceType, targetEventAllocationID *string, amount float64, count int) ([]ScopeDelta, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	deltas := []ScopeDelta{{ScopeType: models.ScopeMeet, Amount: 0, Count: count}}

	if source == models.SourceDirectEvent {
		if targetEventAllocationID == nil {
			return nil, Validationf("direct_event contributions require an event allocation target")
		}
		target, ok := t.byEventAlloc[*targetEventAllocationID]
		if !ok {
			return nil, Validationf("unknown event allocation target %s", *targetEventAllocationID)
		}

		// Earmarks raise the grand total but not the meet scope's cascading
		// pool, so the meet delta stays a pure count bump.
		eaID := target.Alloc.ID
		deltas = append(deltas, ScopeDelta{
			ScopeType:         models.ScopeEvent,
			EventAllocationID: &eaID,
			Amount:            RoundCents(amount),
			Count:             count,
		})
		for _, pl := range target.Places {
			pid := pl.Alloc.ID
			eid := eaID
			deltas = append(deltas, ScopeDelta{
				ScopeType:         models.ScopePlace,
				EventAllocationID: &eid,
				PlaceAllocationID: &pid,
				Amount:            RoundCents(amount * pl.Alloc.EventPct / 100),
				Count:             count,
			})
		}
		return deltas, nil
	}

	// ppv_ticket and direct_meet money lands on the meet scope and
	// distributes into every event and place proportionally.
	deltas[0].Amount = RoundCents(amount)

	for _, ev := range t.Events {
		eaID := ev.Alloc.ID
		share := amount * ev.Alloc.MeetPct / 100
		deltas = append(deltas, ScopeDelta{
			ScopeType:         models.ScopeEvent,
			EventAllocationID: &eaID,
			Amount:            RoundCents(share),
			Count:             count,
		})
		for _, pl := range ev.Places {
			pid := pl.Alloc.ID
			eid := eaID
			deltas = append(deltas, ScopeDelta{
				ScopeType:         models.ScopePlace,
				EventAllocationID: &eid,
				PlaceAllocationID: &pid,
				Amount:            RoundCents(share * pl.Alloc.EventPct / 100),
				Count:             count,
			})
		}
	}

	return deltas, nil
}

// RoundCents rounds a currency amount to two decimal places.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
