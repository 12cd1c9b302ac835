package main

import (
	"database/sql"
	"errors"
	"log"
	"strconv"
	"time"

	"tracklnd/app/config"
	"tracklnd/app/database"
	"tracklnd/app/monitoring"
	paymentgw "tracklnd/app/payments"
	"tracklnd/app/purse"
	"tracklnd/app/routes/auth"
	"tracklnd/app/routes/meets"
	paymentroutes "tracklnd/app/routes/payments"
	purseroutes "tracklnd/app/routes/purse"
	"tracklnd/app/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// customErrorHandler maps domain errors onto HTTP statuses so handlers can
// just return them.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	body := fiber.Map{"success": false, "error": err.Error()}

	var validationErr *purse.ValidationError
	var policyErr *purse.PolicyError
	var gatewayErr *purse.GatewayError
	var consistencyErr *purse.ConsistencyError
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &validationErr):
		code = fiber.StatusBadRequest
	case errors.As(err, &policyErr):
		code = fiber.StatusConflict
		body["code"] = string(policyErr.Code)
	case errors.As(err, &gatewayErr):
		code = fiber.StatusBadGateway
		body["error"] = "Payment gateway error: " + gatewayErr.Message
	case errors.As(err, &consistencyErr):
		code = fiber.StatusInternalServerError
	case errors.Is(err, sql.ErrNoRows):
		code = fiber.StatusNotFound
		body["error"] = "Not found"
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
	}

	body["status"] = code
	return c.Status(code).JSON(body)
}

// prometheusMiddleware records request counts and latencies per route
func prometheusMiddleware(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		} else {
			status = fiber.StatusInternalServerError
		}
	}

	path := c.Route().Path
	monitoring.HttpRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
	monitoring.ResponseTimeHistogram.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
	return err
}

func main() {
	// Load configuration and connect to the database
	config.Load()
	defer config.GetDB().Close()

	// Run database migrations
	if err := database.RunMigrations(config.GetDB()); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Start the snapshot reconciliation scheduler
	services.StartScheduler(config.GetDB())

	// Payment gateway and settlement service
	gateway := paymentgw.NewClient(config.AppConfig.SquareBaseURL, config.AppConfig.SquareAccessToken)
	settlement := services.NewSettlement(config.GetDB(), gateway)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(prometheusMiddleware)

	// Metrics endpoint
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Setup auth routes
	auth.SetupAuthRoutes(app)

	// Setup meets routes
	meets.SetupMeetsRoutes(app)

	// Setup purse routes
	purseroutes.SetupPurseRoutes(app, settlement)

	// Setup payment routes
	paymentroutes.SetupPaymentsRoutes(app, settlement)

	// Catch-all route for 404 errors (must be last)
	app.Use("*", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not found")
	})

	// Start server
	addr := ":" + config.AppConfig.Port
	log.Println("Server starting on", addr)
	log.Fatal(app.Listen(addr))
}
