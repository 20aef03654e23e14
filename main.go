package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/rampa-app/rampa-backend/database"
	"github.com/rampa-app/rampa-backend/internal/config"
	"github.com/rampa-app/rampa-backend/internal/handlers"
	"github.com/rampa-app/rampa-backend/internal/jobs"
	"github.com/rampa-app/rampa-backend/internal/routes"
	"github.com/rampa-app/rampa-backend/internal/services"
	"github.com/rampa-app/rampa-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	// Load .env file for local development
	config.LoadEnvFiles()
	cfg := config.Load()

	// Initialize storage
	store, ping, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}

	// Initialize message gateway
	var gateway services.MessageGateway = services.LogGateway{}
	if cfg.Twilio.Configured() {
		twilioService, err := services.NewTwilioService(cfg.Twilio)
		if err != nil {
			log.Fatal("Failed to initialize Twilio service:", err)
		}
		gateway = twilioService
		log.Println("✅ Twilio service initialized")
	} else {
		log.Println("⚠️  Twilio credentials not found - messages will only be logged")
	}

	// Initialize all services
	directory := services.NewContactDirectory(services.DefaultContacts)
	conversation := services.NewConversation(directory)
	settlement := services.NewSettlementSimulator(store, gateway, services.NewTimerScheduler(), cfg.SettlementDelay)
	transfers := services.NewTransferService(store, gateway, conversation, settlement)

	// Start session expiry job
	cleanupJob := jobs.NewSessionCleanupJob(transfers, cfg.SessionTTL, cfg.SessionSweepInterval)
	cleanupJob.Start()

	log.Println("✅ All services initialized and scheduled jobs started")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "rampa Backend v" + version,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	health := handlers.NewHealthHandler(version, cfg.StoreBackend, transfers, ping)
	routes.SetupRoutes(app, cfg, transfers, health)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		log.Println("⏹️  Stopping session cleanup job...")
		cleanupJob.Stop()
		log.Println("⏹️  Dropping pending settlements...")
		settlement.Stop()
		log.Println("⏹️  Shutting down server...")
		_ = app.Shutdown()
	}()

	// Start server
	log.Println("========================================")
	log.Printf("🚀 rampa Backend starting on port %s", cfg.Port)
	log.Printf("📊 Storage: %s", cfg.StoreBackend)
	log.Printf("🌍 Environment: %s", cfg.Environment)
	log.Printf("📱 WhatsApp: %s", whatsAppStatus(cfg))
	log.Printf("⏱️  Settlement delay: %s, session TTL: %s", cfg.SettlementDelay, cfg.SessionTTL)
	log.Println("========================================")

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Printf("Server stopped: %v", err)
	}

	if err := store.Close(); err != nil {
		log.Printf("Failed to close storage: %v", err)
	}
}

// openStore builds the configured storage backend. The returned ping is nil
// for backends with nothing to probe.
func openStore(cfg *config.Config) (storage.Store, func() error, error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Println("⚠️  Using in-memory storage (sessions are lost on restart)")
		return storage.NewMemoryStore(), nil, nil

	case "postgres":
		log.Println("📦 Connecting to PostgreSQL database...")
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, nil, err
		}

		log.Println("🔄 Running database migrations...")
		store := storage.NewDatabaseStore(db)
		if err := store.Migrate(); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Println("✅ Using PostgreSQL database storage")
		return store, func() error { return database.Ping(db) }, nil

	case "bolt":
		log.Printf("📦 Opening bolt database at %s", cfg.BoltPath)
		store, err := storage.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func whatsAppStatus(cfg *config.Config) string {
	if !cfg.Twilio.Configured() {
		return "Not configured"
	}
	return "Configured"
}
