package payments

import (
	"tracklnd/app/services"

	"github.com/gofiber/fiber/v2"
)

// CreatePaymentAPI captures a card payment and records the purse
// contribution it funds. PPV ticket purchases also grant meet access.
func CreatePaymentAPI(c *fiber.Ctx) error {
	type paymentRequest struct {
		ConfigID          string  `json:"config_id"`
		CardToken         string  `json:"card_token"`
		PaymentType       string  `json:"payment_type"`
		EventAllocationID *string `json:"event_allocation_id,omitempty"`
		Amount            float64 `json:"amount,omitempty"`
	}

	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}
	if req.ConfigID == "" || req.CardToken == "" {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "config_id and card_token are required"})
	}

	contribution, err := settlement.RecordContribution(c.Context(), services.ContributionRequest{
		ConfigID:          req.ConfigID,
		UserID:            c.Locals("user_id").(string),
		CardToken:         req.CardToken,
		PaymentType:       req.PaymentType,
		EventAllocationID: req.EventAllocationID,
		Amount:            req.Amount,
	})
	if err != nil {
		return err
	}

	return c.Status(201).JSON(fiber.Map{
		"success":      true,
		"contribution": contribution,
	})
}

// CreateRefundAPI reverses a contribution through the gateway and backs its
// amount out of the purse.
func CreateRefundAPI(c *fiber.Ctx) error {
	type refundRequest struct {
		ContributionID string `json:"contribution_id"`
	}

	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}
	if req.ContributionID == "" {
		return c.Status(400).JSON(fiber.Map{"success": false, "error": "contribution_id is required"})
	}

	refund, err := settlement.RecordRefund(c.Context(), req.ContributionID)
	if err != nil {
		return err
	}

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"refund":  refund,
	})
}
