package routes

import (
	"github.com/dogparkjp/parkgate/internal/handlers"
	"github.com/dogparkjp/parkgate/internal/middleware"
	"github.com/dogparkjp/parkgate/internal/services"
	"github.com/dogparkjp/parkgate/internal/store"
	"github.com/gofiber/fiber/v3"
)

func SetupRoutes(
	app *fiber.App,
	jwtService *services.JWTService,
	authService *services.AuthService,
	pinService *services.PinService,
	notificationService *services.NotificationService,
	logs store.AccessLogStore,
	locks store.LockStore,
) {
	// Initialize services
	exportService := services.NewExportService(logs, locks)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, jwtService)
	accessHandler := handlers.NewAccessHandler(pinService, exportService)
	lockHandler := handlers.NewLockHandler(locks)
	webhookHandler := handlers.NewWebhookHandler(pinService, notificationService, locks)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "ParkGate API is running",
		})
	})

	// ==================
	// Vendor Webhooks (No Auth - Sciener calls this)
	// Rate limited per IP to keep the endpoint from being hammered
	// ==================
	app.Post("/webhooks/sciener", middleware.RateLimitMiddleware(), webhookHandler.LockRecord)

	// API group
	api := app.Group("/api")

	// Health check
	api.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "ParkGate API is running",
		})
	})

	// ==================
	// Public Auth Routes
	// ==================
	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	// ==================
	// Protected Routes (JWT)
	// ==================
	protected := api.Group("", middleware.AuthMiddleware(jwtService))

	// Auth routes
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)
	protected.Put("/auth/profile", authHandler.UpdateProfile)

	// Lock routes
	protected.Get("/locks", lockHandler.List)
	protected.Post("/locks", lockHandler.Create)

	// Access routes. Issuance registers a password on the physical lock,
	// so it gets its own per-user rate limit.
	protected.Post("/access/entry", middleware.PinIssueRateLimit(), accessHandler.IssueEntry)
	protected.Post("/access/exit", middleware.PinIssueRateLimit(), accessHandler.IssueExit)
	protected.Get("/access/current", accessHandler.Current)
	protected.Get("/access/logs", accessHandler.Logs)
	protected.Get("/access/logs/export", accessHandler.Export)

	// Notification routes
	protected.Get("/notifications", notificationHandler.List)
	protected.Get("/notifications/unread-count", notificationHandler.UnreadCount)
	protected.Post("/notifications/:id/read", notificationHandler.MarkAsRead)
	protected.Post("/notifications/read-all", notificationHandler.MarkAllAsRead)
}
