package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/cache"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	"expensetracker/internal/log"
	"expensetracker/internal/sheets"
	gsheet "expensetracker/internal/sheets/google"
	memsheet "expensetracker/internal/sheets/memory"
	"expensetracker/internal/worker"
)

const seenCleanupInterval = 10 * time.Minute

func main() {
	cli.LoadEnvFile()
	cfg, logger, err := cli.LoadAndValidateConfig((*config.Config).ValidateWorker)
	if err != nil {
		cli.Exit(logger, err)
	}
	cli.Exit(logger, run(cfg, logger))
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext()
	defer stop()

	var writer sheets.ActivityWriter
	if cfg.GoogleSpreadsheetID != "" {
		g, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			return fmt.Errorf("google sheets: %w", err)
		}
		writer = g
		logger.Info("Mirroring to Google Sheets", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		writer = memsheet.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("amqp: %w", err)
	}
	defer consumer.Close()

	mirror := worker.NewMirror(writer, logger.Logger.With(log.FieldComponent, log.ComponentWorker))

	cacheManager := cache.NewManager(logger.Logger.With(log.FieldComponent, log.ComponentCache))
	cacheManager.Register(mirror.SeenCache())
	cacheManager.StartCleanup(seenCleanupInterval)
	defer cacheManager.Stop()

	logger.Info("Starting expense worker", "queue", cfg.AMQPQueue, log.FieldOperation, log.OpStartup)
	err = consumer.Consume(ctx, mirror.HandleEvent)
	if errors.Is(err, context.Canceled) {
		logger.Info("Worker shutdown complete")
		return nil
	}
	return err
}
