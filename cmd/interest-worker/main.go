package main

import (
	"time"

	"cashflow/internal/cli"
	"cashflow/internal/log"
	"cashflow/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentAccrual)
	logger.Info("Starting interest-worker")

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

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Interest accrual configured",
		"interval", cfg.AccrualInterval,
		"timezone", loc.String(),
		"workers", cfg.AccrualWorkers,
		"sqlite_db", cfg.SQLiteDBPath)

	// Every tick after the first in a month is a cheap no-op, so an hourly
	// interval picks up the new month without a cron.
	run := func(now time.Time) {
		summary, err := job.Run(ctx, now)
		if err != nil {
			logger.Error("Accrual run failed", "error", err, log.FieldPeriod, summary.Period.String())
			return
		}
		logger.Info("Accrual run complete",
			log.FieldPeriod, summary.Period.String(),
			"next_check", now.Add(cfg.AccrualInterval).Format("15:04:05"))
	}

	run(time.Now())

	ticker := time.NewTicker(cfg.AccrualInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			logger.Info("Interest-worker shutdown complete")
			return
		case now := <-ticker.C:
			run(now)
		}
	}
}
