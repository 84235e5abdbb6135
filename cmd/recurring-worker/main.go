package main

import (
	"time"

	"financas/internal/amqp"
	"financas/internal/cli"
	"financas/internal/core"
	applog "financas/internal/log"
	"financas/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentRecurringWorker)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Materialized transactions are announced so the sync worker mirrors
	// them; without a broker they are picked up by the pending scan.
	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			defer client.Close()
			events = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	materializer := services.NewMaterializer(repo, events)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Recurring materialization configured",
		"interval", cfg.RecurringInterval,
		"max_backfill_days", cfg.RecurringMaxBackfillDays,
		"sqlite_db", cfg.SQLiteDBPath)

	runPass := func(now time.Time) {
		today := core.DateOf(now)
		w := services.Window{
			From: today.AddDays(-cfg.RecurringMaxBackfillDays),
			To:   today,
		}
		created, err := materializer.ProcessAll(ctx, w)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("Materialization pass failed", "error", err)
			}
			return
		}
		logger.Info("Materialization pass complete",
			"created", created,
			applog.FieldWindowFrom, w.From.String(),
			applog.FieldWindowTo, w.To.String())
	}

	// Run once on startup, then on the ticker.
	runPass(time.Now())

	ticker := time.NewTicker(cfg.RecurringInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runPass(now)
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker stopped")
}
