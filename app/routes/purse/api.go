package purse

import (
	"database/sql"
	"time"

	"tracklnd/app/config"
	"tracklnd/app/database"
	"tracklnd/app/models"

	"github.com/gofiber/fiber/v2"
)

// CreateConfigAPI creates the purse configuration for a meet
func CreateConfigAPI(c *fiber.Ctx) error {
	cfg := new(models.PurseConfig)
	if err := c.BodyParser(cfg); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}

	db := config.GetDB()
	if _, err := database.GetMeetByID(db, cfg.MeetID); err != nil {
		if err == sql.ErrNoRows {
			return c.Status(404).JSON(fiber.Map{"success": false, "error": "Meet not found"})
		}
		return err
	}

	// New configs always start active; deactivation happens via update.
	cfg.IsActive = true

	if err := database.CreatePurseConfig(db, cfg); err != nil {
		return err
	}

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"config":  cfg,
	})
}

// GetConfigAPI returns a purse config with its allocation structure
func GetConfigAPI(c *fiber.Ctx) error {
	db := config.GetDB()
	configID := c.Params("configId")

	cfg, err := database.GetPurseConfig(db, configID)
	if err != nil {
		return err
	}

	allocations, err := database.ListEventAllocations(db, configID)
	if err != nil {
		return err
	}
	places, err := database.ListPlaceAllocationsForConfig(db, configID)
	if err != nil {
		return err
	}
	byAlloc := make(map[string]*models.EventAllocation, len(allocations))
	for _, a := range allocations {
		byAlloc[a.ID] = a
	}
	for _, p := range places {
		if a, ok := byAlloc[p.EventAllocationID]; ok {
			a.Places = append(a.Places, p)
		}
	}

	return c.JSON(fiber.Map{
		"success":           true,
		"config":            cfg,
		"event_allocations": allocations,
	})
}

// UpdateConfigAPI updates purse settings. The caller must echo back the
// version it read; a stale version is rejected.
func UpdateConfigAPI(c *fiber.Ctx) error {
	cfg := new(models.PurseConfig)
	if err := c.BodyParser(cfg); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}
	cfg.ID = c.Params("configId")

	if err := database.UpdatePurseConfig(config.GetDB(), cfg); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"config":  cfg,
	})
}

// SetEventAllocationsAPI replaces the event-level allocation table
func SetEventAllocationsAPI(c *fiber.Ctx) error {
	type request struct {
		Allocations []*models.EventAllocation `json:"allocations"`
	}

	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}
	configID := c.Params("configId")

	if err := database.SetEventAllocations(config.GetDB(), configID, req.Allocations); err != nil {
		return err
	}

	allocations, err := database.ListEventAllocations(config.GetDB(), configID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":           true,
		"event_allocations": allocations,
	})
}

// SetPlaceAllocationsAPI replaces the place split under one event allocation
func SetPlaceAllocationsAPI(c *fiber.Ctx) error {
	type request struct {
		Places []*models.PlaceAllocation `json:"places"`
	}

	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}

	if err := database.SetPlaceAllocations(config.GetDB(), c.Params("id"), req.Places); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true})
}

// AddSeedMoneyAPI injects seed money at meet, event or place level
func AddSeedMoneyAPI(c *fiber.Ctx) error {
	seed := new(models.SeedMoney)
	if err := c.BodyParser(seed); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}
	seed.ConfigID = c.Params("configId")

	if err := database.AddSeedMoney(config.GetDB(), seed); err != nil {
		return err
	}

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"seed":    seed,
	})
}

// GetSeedMoneyAPI lists seed money entries for a config
func GetSeedMoneyAPI(c *fiber.Ctx) error {
	seeds, err := database.ListSeedMoney(config.GetDB(), c.Params("configId"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"seeds":   seeds,
	})
}

// DeleteSeedMoneyAPI removes a seed money entry and recomputes snapshots
func DeleteSeedMoneyAPI(c *fiber.Ctx) error {
	if err := database.DeleteSeedMoney(config.GetDB(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetSnapshotsAPI returns every cached snapshot row for a config
func GetSnapshotsAPI(c *fiber.Ctx) error {
	snapshots, err := database.ListSnapshots(config.GetDB(), c.Params("configId"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"snapshots": snapshots,
	})
}

// GetSummaryAPI returns the headline purse numbers for a config. The
// attributable total is the meet snapshot (seed plus cascading pool); total
// raised additionally counts event-earmarked contributions.
func GetSummaryAPI(c *fiber.Ctx) error {
	db := config.GetDB()
	configID := c.Params("configId")

	cfg, err := database.GetPurseConfig(db, configID)
	if err != nil {
		return err
	}

	meetSnap, err := database.GetMeetSnapshot(db, configID)
	if err != nil {
		return err
	}

	raised, err := database.TotalRaised(db, configID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":            true,
		"attributable_total": meetSnap.CachedTotal,
		"total_raised":       raised,
		"contribution_count": meetSnap.ContributionCount,
		"is_finalized":       cfg.IsFinalized,
		"contributions_open": cfg.IsActive && !cfg.IsFinalized && cfg.ContributionsOpen(time.Now()),
	})
}

// RecalculateAPI rebuilds every snapshot row from the ledger
func RecalculateAPI(c *fiber.Ctx) error {
	configID := c.Params("configId")
	if err := settlement.Recalculate(configID); err != nil {
		return err
	}

	snapshots, err := database.ListSnapshots(config.GetDB(), configID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"snapshots": snapshots,
	})
}

// FinalizeAPI locks the purse: one last full recompute, then the config is
// flipped inactive and finalized
func FinalizeAPI(c *fiber.Ctx) error {
	configID := c.Params("configId")
	if err := settlement.Finalize(c.Context(), configID); err != nil {
		return err
	}

	cfg, err := database.GetPurseConfig(config.GetDB(), configID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"config":  cfg,
	})
}
