package meets

import (
	"database/sql"

	"tracklnd/app/config"
	"tracklnd/app/database"
	"tracklnd/app/models"

	"github.com/gofiber/fiber/v2"
)

// GetMeetsAPI returns meets. Regular users only see published meets.
func GetMeetsAPI(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	db := config.GetDB()
	meets, err := database.ListMeets(db, !user.IsAdmin())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch meets",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"meets":   meets,
	})
}

// GetMeetAPI returns a single meet with its events
func GetMeetAPI(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	db := config.GetDB()
	meet, err := database.GetMeetByID(db, c.Params("id"))
	if err != nil {
		if err == sql.ErrNoRows {
			return c.Status(404).JSON(fiber.Map{"success": false, "error": "Meet not found"})
		}
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "Failed to fetch meet"})
	}

	if !meet.IsPublished && !user.IsAdmin() {
		return c.Status(404).JSON(fiber.Map{"success": false, "error": "Meet not found"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"meet":    meet,
	})
}

// GetMeetAccessAPI reports whether the caller holds an active PPV grant for
// the meet.
func GetMeetAccessAPI(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	db := config.GetDB()
	access, err := database.GetMeetAccess(db, userID, c.Params("id"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "Failed to check access"})
	}

	hasAccess := access != nil && access.Active()
	return c.JSON(fiber.Map{
		"success":    true,
		"has_access": hasAccess,
		"access":     access,
	})
}

// GetMeetPurseAPI returns the live purse config for a meet, if one exists
func GetMeetPurseAPI(c *fiber.Ctx) error {
	cfg, err := database.GetPurseConfigByMeet(config.GetDB(), c.Params("id"))
	if err != nil {
		if err == sql.ErrNoRows {
			return c.Status(404).JSON(fiber.Map{"success": false, "error": "No purse config for this meet"})
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"config":  cfg,
	})
}

// CreateMeetAPI creates a new meet
func CreateMeetAPI(c *fiber.Ctx) error {
	meet := new(models.Meet)
	if err := c.BodyParser(meet); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if meet.Name == "" {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "Meet name is required"})
	}

	db := config.GetDB()
	if err := database.CreateMeet(db, meet); err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to create meet",
		})
	}

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"meet":    meet,
	})
}

// UpdateMeetAPI updates an existing meet
func UpdateMeetAPI(c *fiber.Ctx) error {
	meet := new(models.Meet)
	if err := c.BodyParser(meet); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	meet.ID = c.Params("id")
	if meet.Name == "" {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "Meet name is required"})
	}

	db := config.GetDB()
	if err := database.UpdateMeet(db, meet); err != nil {
		if err == sql.ErrNoRows {
			return c.Status(404).JSON(fiber.Map{"success": false, "error": "Meet not found"})
		}
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to update meet",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"meet":    meet,
	})
}

// CreateEventAPI adds an event to a meet
func CreateEventAPI(c *fiber.Ctx) error {
	event := new(models.Event)
	if err := c.BodyParser(event); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	event.MeetID = c.Params("id")
	if event.Name == "" {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "Event name is required"})
	}
	if event.Gender == "" {
		event.Gender = models.EventMixed
	}

	db := config.GetDB()
	if _, err := database.GetMeetByID(db, event.MeetID); err != nil {
		if err == sql.ErrNoRows {
			return c.Status(404).JSON(fiber.Map{"success": false, "error": "Meet not found"})
		}
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "Failed to fetch meet"})
	}

	if err := database.CreateEvent(db, event); err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to create event",
		})
	}

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"event":   event,
	})
}
