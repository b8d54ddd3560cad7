package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cashflow/internal/cli"
	apphttp "cashflow/internal/http"
	"cashflow/internal/log"
	"cashflow/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	loc := cli.AccrualLocation(logger, cfg)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var publisher services.SnapshotPublisher
	if client := cli.InitPublisher(logger, cfg); client != nil {
		publisher = client
		defer client.Close()
	}

	job := services.NewInterestAccrualJob(repo, publisher, services.InterestAccrualConfig{
		Workers:  cfg.AccrualWorkers,
		Location: loc,
	})

	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET not set, accrual trigger and internal API are unauthenticated")
	}

	srv := apphttp.NewServer(apphttp.ServerConfig{
		Addr:               ":" + cfg.Port,
		CronSecret:         cfg.CronSecret,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Location:           loc,
	}, job, services.NewDebtService(repo), services.NewBillService(repo, loc), repo)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting cashflow server",
		"port", cfg.Port,
		"timezone", loc.String(),
		"workers", cfg.AccrualWorkers,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
