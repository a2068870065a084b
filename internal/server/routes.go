package server

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Blackhoodiez/sipcoin/internal/repository"
)

// Config carries everything route registration needs.
type Config struct {
	App      *fiber.App
	Pool     *pgxpool.Pool
	Receipts *ReceiptHandler
	Logger   *slog.Logger
}

// RegisterRoutes wires the API surface onto the fiber app.
func RegisterRoutes(cfg Config) {
	app := cfg.App

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := repository.HealthCheck(c.UserContext(), cfg.Pool, 2*time.Second); err != nil {
			cfg.Logger.Error("health check failed", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1", RequestID(), RequireUser())

	api.Get("/balance", cfg.Receipts.Balance)

	receipts := api.Group("/receipts")
	receipts.Post("/", cfg.Receipts.Upload)
	receipts.Get("/", cfg.Receipts.List)
	receipts.Get("/export", cfg.Receipts.Export)
	receipts.Get("/:id", cfg.Receipts.Get)
	receipts.Patch("/:id", cfg.Receipts.Update)
	receipts.Delete("/:id", cfg.Receipts.Delete)
	receipts.Post("/:id/process", cfg.Receipts.Process)
	receipts.Post("/:id/submit", cfg.Receipts.Submit)
}
