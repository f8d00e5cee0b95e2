package main

import (
	"context"
	"errors"
	"os"
	"time"

	"budgetshare/internal/amqp"
	"budgetshare/internal/cli"
	"budgetshare/internal/config"
	"budgetshare/internal/log"
	gsheet "budgetshare/internal/sheets/google"
	"budgetshare/internal/storage"
	"budgetshare/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	logger.Info("Starting budgetshare-worker", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	exporter, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
		OAuthClientFile:    cfg.GoogleOAuthClientFile,
		OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		return err
	}
	if err := exporter.EnsureHeader(ctx); err != nil {
		// Not fatal: rows still export, only the header is missing.
		logger.Warn("Failed to write sheet header", log.FieldError, err)
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer consumer.Close()

	syncWorker := worker.NewSyncWorker(repo, exporter, cfg.SyncBatchSize)
	sweeper := worker.NewSweeper(syncWorker, cfg.SyncInterval)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- consumer.ConsumeWithRetry(ctx, syncWorker.Handlers())
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
		stop()
	}

	cli.GracefulShutdown(logger, shutdownTimeout, sweeper.Stop)
	return runErr
}
