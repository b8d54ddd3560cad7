package main

import (
	"context"
	"errors"
	"os"
	"time"

	"cashflow/internal/cli"
	"cashflow/internal/log"
	"cashflow/internal/sheets"
	gsheet "cashflow/internal/sheets/google"
	mem "cashflow/internal/sheets/memory"
	"cashflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting ledger-exporter")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var ledger sheets.SnapshotWriter
	switch cfg.LedgerBackend {
	case "sheets":
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleLedgerSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		ledger = client
		logger.Info("Google Sheets ledger initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleLedgerSheetName)
	default:
		ledger = mem.New()
		logger.Info("Using in-memory ledger", "backend", cfg.LedgerBackend)
	}

	exporter := worker.NewExportWorker(repo, ledger, cfg.ExportBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Catch up on anything committed while the exporter was down.
	if n, err := exporter.ExportPending(ctx); err != nil {
		logger.Error("Startup export failed", "error", err)
	} else {
		logger.Info("Startup export complete", "exported", n)
	}

	if client := cli.InitPublisher(logger, cfg); client != nil {
		defer client.Close()
		go func() {
			err := client.ConsumeSnapshotRecorded(ctx, exporter.HandleSnapshotMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Snapshot consumption stopped", "error", err)
			}
		}()
	} else {
		logger.Info("No broker, relying on periodic export only", "interval", cfg.ExportInterval)
	}

	ticker := time.NewTicker(cfg.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			logger.Info("Ledger-exporter shutdown complete")
			return
		case <-ticker.C:
			if n, err := exporter.ExportPending(ctx); err != nil {
				logger.Error("Periodic export failed", "error", err)
			} else if n > 0 {
				logger.Info("Periodic export complete", "exported", n)
			}
		}
	}
}
