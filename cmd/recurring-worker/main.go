package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bilancio/internal/amqp"
	"bilancio/internal/config"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: "recurring-worker",
	})
	applog.SetDefault(logger)

	logger.Info("Starting recurring-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	// Publish change messages so the sync worker mirrors materialized
	// installment payments. Optional: SQLite-only mode works without it.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", "error", err)
			amqpClient = nil
		} else {
			logger.Info("AMQP client initialized")
		}
	} else {
		logger.Info("AMQP disabled - changes will not be pushed to the sync worker")
	}

	ledger := services.NewLedgerService(repo, amqpClient, nil)
	defer ledger.Close()

	amortizer := services.NewAmortizer(repo)
	processor := services.NewRecurringProcessor(repo, ledger, amortizer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.RecurringInterval)
	defer ticker.Stop()

	runOnce := func(now time.Time) {
		if count, err := processor.ProcessDueObligations(ctx, now); err != nil {
			logger.Error("Obligation processing failed", "error", err)
		} else if count > 0 {
			logger.Info("Obligations advanced", "count", count)
		}
		if count, err := processor.ProcessDuePlans(ctx, now); err != nil {
			logger.Error("Installment processing failed", "error", err)
		} else if count > 0 {
			logger.Info("Installment payments materialized", "count", count)
		}
	}

	// Run initial processing on startup.
	logger.Info("Running initial recurring processing...")
	runOnce(time.Now())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runOnce(now)
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Recurring-worker shutdown complete")
}
