package payments

import (
	"tracklnd/app/routes/auth"
	"tracklnd/app/services"

	"github.com/gofiber/fiber/v2"
)

var settlement *services.Settlement

// SetupPaymentsRoutes sets up payment and refund routes
func SetupPaymentsRoutes(app *fiber.App, s *services.Settlement) {
	settlement = s

	app.Post("/api/payments", auth.AuthMiddleware, CreatePaymentAPI)
	app.Post("/api/refunds", auth.AuthMiddleware, auth.AdminMiddleware, CreateRefundAPI)
}
