package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/Blackhoodiez/sipcoin/internal/async"
	"github.com/Blackhoodiez/sipcoin/internal/common"
	"github.com/Blackhoodiez/sipcoin/internal/export"
	"github.com/Blackhoodiez/sipcoin/internal/imagestore"
	"github.com/Blackhoodiez/sipcoin/internal/ocr"
	"github.com/Blackhoodiez/sipcoin/internal/pipeline"
	"github.com/Blackhoodiez/sipcoin/internal/repository"
	"github.com/Blackhoodiez/sipcoin/internal/server"
	"github.com/Blackhoodiez/sipcoin/internal/submit"
)

func main() {
	// Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Config
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB pool
	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("creating DB pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.HealthCheck(ctx, pool, 3*time.Second); err != nil {
		logger.Error("DB health failed", "error", err)
		os.Exit(1)
	}
	logger.Info("DB health OK")

	// Image store
	images, err := imagestore.NewS3Store(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("creating image store", "error", err)
		os.Exit(1)
	}

	// Repositories
	receipts := repository.NewReceiptRepository(pool, logger)
	profiles := repository.NewProfileRepository(pool, logger)

	// OCR engine
	engine := ocr.NewTesseract(ocr.Config{
		Tesseract: cfg.OCR.Tesseract,
		Lang:      cfg.OCR.TesseractLang,
		PSM:       cfg.OCR.PSM,
		WorkDir:   cfg.OCR.WorkDir,
	}, logger)

	// Submission gate
	gate := submit.NewValidator(submit.Config{
		MinConfidence:        cfg.Submission.MinConfidence,
		MaxReceiptAge:        cfg.Submission.MaxReceiptAge,
		MaxAmountDrift:       cfg.Submission.MaxAmountDrift,
		EnableDuplicateCheck: cfg.Submission.EnableDuplicateCheck,
	}, receipts, logger)

	// Pipeline
	proc := pipeline.NewProcessor(logger, receipts, profiles, images, engine, gate, cfg.OCR.Timeout)

	// Background OCR queue
	queue := async.NewProcessorQueue(proc, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)

	exporter := export.NewService(receipts, logger)

	handler := server.NewReceiptHandler(proc, queue, exporter, receipts, profiles, validator.New(), logger)

	app := fiber.New(fiber.Config{
		BodyLimit:             12 << 20, // headroom above the 10MB file cap
		DisableStartupMessage: true,
	})
	server.RegisterRoutes(server.Config{
		App:      app,
		Pool:     pool,
		Receipts: handler,
		Logger:   logger,
	})

	go func() {
		logger.Info("HTTP serving", "addr", cfg.Server.HTTPAddr)
		if err := app.Listen(cfg.Server.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
