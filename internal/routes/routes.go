package routes

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/rampa-app/rampa-backend/internal/config"
	"github.com/rampa-app/rampa-backend/internal/handlers"
	"github.com/rampa-app/rampa-backend/internal/middleware"
	"github.com/rampa-app/rampa-backend/internal/services"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, cfg *config.Config, transfers *services.TransferService, health *handlers.HealthHandler) {
	whatsapp := handlers.NewWhatsAppHandler(transfers)
	transferHandler := handlers.NewTransferHandler(transfers)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to rampa Backend!",
			"version": health.Version,
			"endpoints": fiber.Map{
				"health":        "/health",
				"initiate":      "/api/transfers/initiate",
				"webhook":       "/webhook/whatsapp",
			},
		})
	})

	app.Get("/health", health.Check)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")
	limiter := middleware.NewSenderRateLimiter(cfg.WebhookRatePerSecond, cfg.WebhookRateBurst)

	// WhatsApp webhook - ENVIRONMENT-AWARE VALIDATION
	if cfg.IsDevelopment() || cfg.DisableWebhookValidation {
		// Development: Skip validation for ngrok
		log.Println("⚠️  WhatsApp webhook validation DISABLED")
		webhooks.Post("/whatsapp", limiter.Handler(), whatsapp.HandleWebhook)

		// ========== TEST ROUTES (Development Only) ==========
		app.Post("/test/whatsapp", whatsapp.HandleTestWebhook)
		app.All("/test/whatsapp", handlers.MethodNotAllowed)
	} else {
		// Production: Validate webhook signature
		webhooks.Post("/whatsapp",
			middleware.ValidateTwilioSignature(cfg.Twilio.AuthToken, cfg.PublicBaseURL),
			limiter.Handler(),
			whatsapp.HandleWebhook,
		)
	}
	webhooks.All("/whatsapp", handlers.MethodNotAllowed)

	// ========== API ROUTES ==========
	api := app.Group("/api", middleware.RequireJWT(cfg.JWTSecret))

	transferRoutes := api.Group("/transfers")
	transferRoutes.Post("/initiate", transferHandler.InitiateTransfer)
	transferRoutes.All("/initiate", handlers.MethodNotAllowed)
	transferRoutes.Post("/:reference/cancel", transferHandler.CancelTransfer)
	transferRoutes.All("/:reference/cancel", handlers.MethodNotAllowed)
	transferRoutes.Get("/:reference", transferHandler.GetTransfer)
	transferRoutes.All("/:reference", handlers.MethodNotAllowed)
}
