package purse

import (
	"tracklnd/app/routes/auth"
	"tracklnd/app/services"

	"github.com/gofiber/fiber/v2"
)

var settlement *services.Settlement

// SetupPurseRoutes sets up purse configuration and snapshot routes
func SetupPurseRoutes(app *fiber.App, s *services.Settlement) {
	settlement = s

	api := app.Group("/api/purse")
	api.Use(auth.AuthMiddleware)

	// Public reads (any authenticated user)
	api.Get("/:configId/snapshots", GetSnapshotsAPI)
	api.Get("/:configId/summary", GetSummaryAPI)
	api.Get("/:configId/seed-money", GetSeedMoneyAPI)
	api.Get("/:configId", GetConfigAPI)

	// Admin-only management routes
	admin := api.Group("", auth.AdminMiddleware)
	admin.Post("/", CreateConfigAPI)
	admin.Put("/:configId/event-allocations", SetEventAllocationsAPI)
	admin.Put("/event-allocations/:id/places", SetPlaceAllocationsAPI)
	admin.Post("/:configId/seed-money", AddSeedMoneyAPI)
	admin.Delete("/seed-money/:id", DeleteSeedMoneyAPI)
	admin.Post("/:configId/recalculate", RecalculateAPI)
	admin.Post("/:configId/finalize", FinalizeAPI)
	admin.Put("/:configId", UpdateConfigAPI)
}
