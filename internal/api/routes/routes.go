package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vision-digital/cnpj-ingestd/internal/api/handlers"
	"github.com/vision-digital/cnpj-ingestd/internal/api/middleware"
)

// SetupRoutes wires the admin HTTP surface: a release trigger/poll API, a
// Prometheus scrape endpoint, a liveness probe, and Swagger UI over the
// swag-generated annotations on the handlers below.
func SetupRoutes(app *fiber.App, adminHandler *handlers.AdminHandler) {
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/swagger/*", swagger.HandlerDefault)

	admin := app.Group("/admin")
	setupAdminRoutes(admin, adminHandler)
}

// setupAdminRoutes configures the release trigger/poll endpoints.
func setupAdminRoutes(admin fiber.Router, handler *handlers.AdminHandler) {
	admin.Post("/releases/ingest", handler.TriggerIngest) // POST /admin/releases/ingest - enqueue a run
	admin.Get("/releases/:release", handler.GetRelease)   // GET /admin/releases/:release - version registry state
	admin.Get("/runs/:id", handler.GetRun)                // GET /admin/runs/:id - poll a supervised run
}
