package main

import (
	"context"
	"errors"
	"os"
	"time"

	"financas/internal/amqp"
	"financas/internal/cli"
	applog "financas/internal/log"
	"financas/internal/sheets"
	"financas/internal/sheets/google"
	"financas/internal/sheets/memory"
	"financas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentSyncWorker)
	logger.Info("Starting sync-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var (
		ledger  sheets.LedgerWriter
		deleter sheets.LedgerDeleter
	)
	switch cfg.LedgerBackend {
	case "sheets":
		client, err := google.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		ledger, deleter = client, client
		logger.Info("Google Sheets ledger initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	case "memory":
		store := memory.New()
		ledger, deleter = store, store
		logger.Info("In-memory ledger initialized (development mode)")
	default:
		logger.Info("No ledger backend configured, sync-worker has nothing to do")
		os.Exit(0)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, ledger, deleter, cfg.SyncBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Recover anything missed while the worker was down.
	if err := syncWorker.StartupSyncCheck(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Startup sync check failed", "error", err)
	}

	go func() {
		err := amqpClient.Consume(ctx, func(msg *amqp.TransactionEvent) error {
			return syncWorker.HandleEvent(ctx, msg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption stopped", "error", err)
		}
	}()

	// Backup scan for lost events.
	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := syncWorker.ProcessPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Pending scan failed", "error", err)
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Sync-worker stopped")
}
