package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/dogparkjp/parkgate/config"
	"github.com/dogparkjp/parkgate/internal/database"
	"github.com/dogparkjp/parkgate/internal/middleware"
	"github.com/dogparkjp/parkgate/internal/rabbitmq"
	"github.com/dogparkjp/parkgate/internal/routes"
	"github.com/dogparkjp/parkgate/internal/services"
	"github.com/dogparkjp/parkgate/internal/store/bunstore"
	workers "github.com/dogparkjp/parkgate/internal/worker"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Printf("Connected to database successfully")

	// Stores
	logStore := bunstore.NewAccessLogStore(db)
	lockStore := bunstore.NewLockStore(db)

	// Vendor registrar: live Sciener client, or the mock for local
	// development and staging without real hardware
	var registrar services.PinRegistrar
	if cfg.ScienerMock {
		log.Println("Using mock PIN registrar (SCIENER_MOCK=true)")
		registrar = services.NewMockPinRegistrar()
	} else {
		registrar = services.NewScienerClient(cfg)
	}

	// Initialize services
	jwtService := services.NewJWTService(cfg.JWTSecret, 168) // 7 days
	authService := services.NewAuthService(jwtService)
	emailService := services.NewEmailService()
	notificationService := services.NewNotificationService(emailService)
	pinService := services.NewPinService(registrar, logStore, lockStore, cfg.PinValidity)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:       "ParkGate API",
		CaseSensitive: true,
		StrictRouting: false,
		ServerHeader:  "ParkGate",
		ErrorHandler:  customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf("🔥 PANIC RECOVERED: %v", e)
			log.Printf("📍 Request: %s %s", c.Method(), c.Path())
			log.Printf("📋 Stack Trace:\n%s", string(debug.Stack()))
		},
	}))
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} (${latency})\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	// Setup RabbitMQ
	if cfg.RabbitMQURL != "" {
		if err := rabbitmq.SetupRabbitMQ(cfg.RabbitMQURL); err != nil {
			// Graceful degradation: PINs still work, expired ones just
			// accumulate at the vendor until cleaned manually
			log.Printf("Failed to connect to RabbitMQ: %v", err)
		} else {
			pinService.WithCleanup(rabbitmq.Client, cfg.CleanupGrace)

			// Context for worker cancellation
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// Start Worker
			go func() {
				cleanupWorker := workers.NewPinCleanupWorker(pinService, notificationService, logStore, lockStore)
				if err := cleanupWorker.StartWorker(ctx); err != nil {
					log.Printf("Worker failed: %v", err)
				}
			}()

			defer rabbitmq.Close()
		}
	}

	// Setup routes
	routes.SetupRoutes(app, jwtService, authService, pinService, notificationService, logStore, lockStore)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down server...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Error shutting down: %v", err)
		}
	}()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Environment: %s", cfg.Env)
	log.Printf("Allowed origins: %v", cfg.AllowedOrigins)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func customErrorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   "Error",
		"message": err.Error(),
	})
}
