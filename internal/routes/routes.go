package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/apps"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

// Handlers groups the HTTP handlers mounted by Setup.
type Handlers struct {
	Auth    *handlers.AuthHandler
	Health  *handlers.HealthHandler
	Usage   *handlers.UsageHandler
	Limits  *handlers.LimitsHandler
	Webhook *handlers.WebhookHandler
}

func Setup(app *fiber.App, cfg *config.Config, db *gorm.DB, h Handlers, plugins []apps.Plugin) {
	api := app.Group("/api")

	// Health and webhooks are mounted before the general limiter.
	api.Get("/health", h.Health.Check)
	api.Post("/webhooks/stripe", h.Webhook.HandleStripe)

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.Refresh)

	// Protected routes (JWT required) - apply middleware to individual routes
	// This prevents JWT middleware from affecting public routes
	jwt := middleware.JWTProtected(cfg)
	api.Post("/auth/logout", jwt, h.Auth.Logout)
	api.Delete("/auth/account", jwt, h.Auth.DeleteAccount)

	// Quotas of the caller
	api.Get("/usage", jwt, h.Usage.List)
	api.Get("/usage/:feature", jwt, h.Usage.Get)
	api.Get("/usage/:feature/check", jwt, h.Usage.Check)
	api.Post("/usage/:feature/increment", jwt, h.Usage.Increment)
	api.Post("/usage/:feature/consume", jwt, h.Usage.Consume)

	// Plan limit tables
	api.Get("/limits/compare", jwt, h.Limits.Compare)
	api.Get("/limits/:plan", jwt, h.Limits.ByPlan)

	// Admin (protected + admin required)
	admin := api.Group("/admin", jwt, middleware.AdminRequired(db, cfg))
	admin.Post("/usage/:user_id/:feature/reset", h.Limits.ResetUsage)
	admin.Put("/limits/:plan/:feature", h.Limits.SetLimit)
	admin.Post("/limits/seed", h.Limits.Seed)

	// Plugin routes - create a protected group for plugins only
	// This ensures JWT middleware doesn't affect public routes
	protected := api.Group("/p", jwt)
	for _, p := range plugins {
		p.RegisterRoutes(protected, db, cfg)
		// If the plugin also implements AdminPlugin, register admin routes
		if ap, ok := p.(apps.AdminPlugin); ok {
			ap.RegisterAdminRoutes(admin, db, cfg)
		}
	}
}
