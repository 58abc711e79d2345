package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vision-digital/cnpj-ingestd/internal/logger"
)

// RequestLogger logs every request handled by the admin HTTP surface, except
// the endpoints a scraper or load balancer hits on a tight interval.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/health" || c.Path() == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		logger.LogAdminRequest(c.Method(), c.Path(), c.Response().StatusCode(), time.Since(start))
		return err
	}
}
