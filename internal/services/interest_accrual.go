package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cashflow/internal/amqp"
	"cashflow/internal/core"
	"cashflow/internal/log"
	"cashflow/internal/storage"

	"golang.org/x/sync/errgroup"
)

// AccrualStore is the persistence the accrual job needs.
type AccrualStore interface {
	ListDebts(ctx context.Context) ([]core.Debt, error)
	LatestSnapshotPeriod(ctx context.Context, debtID string) (core.Period, bool, error)
	ApplyAccrual(ctx context.Context, debtID string, period core.Period, fn storage.AccrualFunc) (core.DebtMonthlySnapshot, error)
}

// SnapshotPublisher announces committed snapshots to downstream consumers.
type SnapshotPublisher interface {
	PublishSnapshotRecorded(ctx context.Context, msg *amqp.SnapshotRecordedMessage) error
}

type InterestAccrualConfig struct {
	// Workers bounds how many debts are processed concurrently (default: 4)
	Workers int

	// Location decides which calendar month "now" falls in (default: time.Local)
	Location *time.Location
}

func DefaultInterestAccrualConfig() InterestAccrualConfig {
	return InterestAccrualConfig{
		Workers:  4,
		Location: time.Local,
	}
}

type DebtFailure struct {
	DebtID string `json:"debt_id"`
	Error  string `json:"error"`
}

// RunSummary reports the outcome of one accrual run. Every listed debt ends up
// in exactly one of Applied, Skipped or Failed.
type RunSummary struct {
	Period       core.Period   `json:"period"`
	Total        int           `json:"total"`
	Applied      int           `json:"applied"`
	Skipped      int           `json:"skipped"`
	Failed       []DebtFailure `json:"failed"`
	LaggingDebts int           `json:"lagging_debts"`
}

func (s RunSummary) HasFailures() bool {
	return len(s.Failed) > 0
}

// InterestAccrualJob applies one month of simple interest to every debt, at
// most once per debt per calendar month.
type InterestAccrualJob struct {
	store     AccrualStore
	publisher SnapshotPublisher
	config    InterestAccrualConfig
	logger    *log.Logger
	events    *log.StructuredLogger
}

// NewInterestAccrualJob creates the job. publisher may be nil.
func NewInterestAccrualJob(store AccrualStore, publisher SnapshotPublisher, config InterestAccrualConfig) *InterestAccrualJob {
	if config.Workers <= 0 {
		config.Workers = DefaultInterestAccrualConfig().Workers
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	logger := log.Default(log.ComponentAccrual)
	return &InterestAccrualJob{
		store:     store,
		publisher: publisher,
		config:    config,
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
	}
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeSkipped
	outcomeFailed
)

// Run processes the calendar month containing now. The returned error is set
// only when the run could not start or was interrupted; per-debt failures are
// reported in the summary.
func (j *InterestAccrualJob) Run(ctx context.Context, now time.Time) (RunSummary, error) {
	period := core.PeriodOf(now.In(j.config.Location))
	summary := RunSummary{Period: period, Failed: []DebtFailure{}}

	debts, err := j.store.ListDebts(ctx)
	if err != nil {
		return summary, fmt.Errorf("list debts: %w", err)
	}
	summary.Total = len(debts)

	j.logger.InfoContext(ctx, "Starting interest accrual",
		log.FieldPeriod, period.String(),
		"debts", len(debts),
		"workers", j.config.Workers)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(j.config.Workers)

	record := func(debtID string, result outcome, lagging bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch result {
		case outcomeApplied:
			summary.Applied++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeFailed:
			summary.Failed = append(summary.Failed, DebtFailure{DebtID: debtID, Error: err.Error()})
		}
		if lagging {
			summary.LaggingDebts++
		}
	}

	var interrupted error
	for i, debt := range debts {
		if err := ctx.Err(); err != nil {
			interrupted = err
			for _, rest := range debts[i:] {
				record(rest.ID, outcomeFailed, false, err)
			}
			break
		}

		debt := debt
		g.Go(func() error {
			result, lagging, err := j.processDebt(ctx, debt, period)
			record(debt.ID, result, lagging, err)
			return nil
		})
	}
	_ = g.Wait()

	j.logger.InfoContext(ctx, "Interest accrual complete",
		log.FieldPeriod, period.String(),
		"total", summary.Total,
		"applied", summary.Applied,
		"skipped", summary.Skipped,
		"failed", len(summary.Failed),
		"lagging", summary.LaggingDebts)

	if interrupted != nil {
		return summary, fmt.Errorf("accrual run interrupted: %w", interrupted)
	}
	return summary, nil
}

func (j *InterestAccrualJob) processDebt(ctx context.Context, debt core.Debt, period core.Period) (outcome, bool, error) {
	lagging := false
	latest, ok, err := j.store.LatestSnapshotPeriod(ctx, debt.ID)
	switch {
	case err != nil:
		j.logger.WarnContext(ctx, "Failed to read latest snapshot period",
			log.FieldDebtID, debt.ID,
			log.FieldError, err)
	case ok && latest == period:
		return outcomeSkipped, false, nil
	case ok && period.MonthsSince(latest) > 1:
		// Missed months are not backfilled; only the current one is applied.
		lagging = true
		j.logger.WarnContext(ctx, "Debt accrual lagging",
			log.FieldDebtID, debt.ID,
			log.FieldPeriod, period.String(),
			"last_period", latest.String(),
			"missed_periods", period.MonthsSince(latest)-1)
	}

	snapshot, err := j.store.ApplyAccrual(ctx, debt.ID, period, accrueMonthlyInterest)
	switch {
	case errors.Is(err, storage.ErrAlreadyApplied):
		return outcomeSkipped, lagging, nil
	case errors.Is(err, storage.ErrNotFound):
		j.logger.InfoContext(ctx, "Debt deleted during accrual run", log.FieldDebtID, debt.ID)
		return outcomeSkipped, lagging, nil
	case err != nil:
		j.events.LogError(ctx, "Failed to apply monthly interest", err, log.OpAccrue,
			log.NewFields().WithDebt(debt))
		return outcomeFailed, lagging, err
	}

	j.events.LogAccrualApplied(ctx, snapshot)
	j.publish(ctx, snapshot)
	return outcomeApplied, lagging, nil
}

func (j *InterestAccrualJob) publish(ctx context.Context, s core.DebtMonthlySnapshot) {
	if j.publisher == nil {
		return
	}
	msg := amqp.NewSnapshotRecordedMessage(s.ID, s.DebtID, s.YearMonth.String())
	if err := j.publisher.PublishSnapshotRecorded(ctx, msg); err != nil {
		// The snapshot is committed; the export backfill picks it up later.
		j.logger.WarnContext(ctx, "Failed to publish snapshot event",
			log.FieldSnapshotID, s.ID,
			log.FieldError, err)
	}
}

func accrueMonthlyInterest(debt core.Debt, payments core.Money) core.Accrual {
	return core.ComputeAccrual(debt.Balance, debt.APR, payments)
}
