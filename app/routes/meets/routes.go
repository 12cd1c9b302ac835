package meets

import (
	"tracklnd/app/routes/auth"

	"github.com/gofiber/fiber/v2"
)

// SetupMeetsRoutes sets up meet routes
func SetupMeetsRoutes(app *fiber.App) {
	api := app.Group("/api/meets")
	api.Use(auth.AuthMiddleware)

	api.Get("/", GetMeetsAPI)
	api.Get("/:id", GetMeetAPI)
	api.Get("/:id/access", GetMeetAccessAPI)
	api.Get("/:id/purse", GetMeetPurseAPI)

	// Admin-only management routes
	api.Post("/", auth.AdminMiddleware, CreateMeetAPI)
	api.Put("/:id", auth.AdminMiddleware, UpdateMeetAPI)
	api.Post("/:id/events", auth.AdminMiddleware, CreateEventAPI)
}
