package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyApplied = errors.New("interest already applied for period")
)

// Writers serialise on BEGIN IMMEDIATE and wait on each other instead of
// failing with SQLITE_BUSY.
const dsnPragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

// Fixed-width so stored timestamps sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AccrualFunc computes the month's accrual from the debt as re-read inside the
// transaction and the payments netted for the period.
type AccrualFunc func(debt core.Debt, payments core.Money) core.Accrual

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + dsnPragmas
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
		logger:  log.Default(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// inTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(timeLayout)
}

// ListDebts returns every debt across all users, oldest first.
func (r *SQLiteRepository) ListDebts(ctx context.Context) ([]core.Debt, error) {
	rows, err := r.queries.ListDebts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	debts := make([]core.Debt, 0, len(rows))
	for _, row := range rows {
		d, err := toCoreDebt(row)
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, nil
}

func (r *SQLiteRepository) GetDebt(ctx context.Context, userID, debtID string) (core.Debt, error) {
	row, err := r.queries.GetDebtForUser(ctx, debtID, userID)
	if err != nil {
		return core.Debt{}, notFound(err, "get debt")
	}
	return toCoreDebt(row)
}

// LatestSnapshotPeriod returns the most recent period with a snapshot for the
// debt; ok is false when the debt has never accrued.
func (r *SQLiteRepository) LatestSnapshotPeriod(ctx context.Context, debtID string) (core.Period, bool, error) {
	month, err := r.queries.LatestSnapshotMonth(ctx, debtID)
	if err != nil {
		return core.Period{}, false, fmt.Errorf("latest snapshot month: %w", err)
	}
	if !month.Valid {
		return core.Period{}, false, nil
	}
	p, err := core.ParsePeriod(month.String)
	if err != nil {
		return core.Period{}, false, err
	}
	return p, true, nil
}

// ApplyAccrual records the period's snapshot and writes the new balance in a
// single transaction. It returns ErrAlreadyApplied when a snapshot for the
// debt and period exists, including one committed concurrently, and
// ErrNotFound when the debt was deleted.
func (r *SQLiteRepository) ApplyAccrual(ctx context.Context, debtID string, period core.Period, fn AccrualFunc) (core.DebtMonthlySnapshot, error) {
	var snapshot core.DebtMonthlySnapshot

	err := r.inTx(ctx, func(q *Queries) error {
		exists, err := q.SnapshotExists(ctx, debtID, period.Key())
		if err != nil {
			return fmt.Errorf("check snapshot: %w", err)
		}
		if exists {
			return ErrAlreadyApplied
		}

		row, err := q.GetDebt(ctx, debtID)
		if err != nil {
			return notFound(err, "read debt")
		}
		debt, err := toCoreDebt(row)
		if err != nil {
			return err
		}

		paid, err := q.SumLinkedPayments(ctx, debtID, period.Key(), period.Next().Key())
		if err != nil {
			return fmt.Errorf("sum linked payments: %w", err)
		}

		accrual := fn(debt, core.Money{Cents: paid})
		snapshot = accrual.Snapshot(debtID, period)
		snapshot.ID = uuid.NewString()
		snapshot.CreatedAt = r.now().UTC()

		inserted, err := q.InsertSnapshot(ctx, fromCoreSnapshot(snapshot))
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if inserted == 0 {
			return ErrAlreadyApplied
		}

		updated, err := q.UpdateDebtBalance(ctx, debtID, accrual.BalanceAfter.Cents, snapshot.CreatedAt.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if updated == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return core.DebtMonthlySnapshot{}, err
	}
	return snapshot, nil
}

// CreateDebtWithBill inserts a debt and its linked payment bill together.
func (r *SQLiteRepository) CreateDebtWithBill(ctx context.Context, debt core.Debt, bill core.Bill) error {
	now := r.timestamp()
	return r.inTx(ctx, func(q *Queries) error {
		if err := q.CreateDebt(ctx, CreateDebtParams{
			ID:               debt.ID,
			UserID:           debt.UserID,
			Name:             debt.Name,
			Apr:              debt.APR.String(),
			BalanceCents:     debt.Balance.Cents,
			MinPaymentCents:  debt.MinPayment.Cents,
			PaymentFrequency: string(debt.PaymentFrequency),
			CreatedAt:        now,
		}); err != nil {
			return fmt.Errorf("create debt: %w", err)
		}

		row := fromCoreBill(bill)
		row.CreatedAt = now
		if err := q.CreateBill(ctx, row); err != nil {
			return fmt.Errorf("create linked bill: %w", err)
		}

		return nil
	})
}

// UpdateDebtAndLinkedBills overwrites the debt and re-syncs every linked
// bill's name and monthly amount to the debt's normalised payment.
func (r *SQLiteRepository) UpdateDebtAndLinkedBills(ctx context.Context, debt core.Debt) error {
	now := r.timestamp()
	return r.inTx(ctx, func(q *Queries) error {
		n, err := q.UpdateDebt(ctx, UpdateDebtParams{
			Name:             debt.Name,
			Apr:              debt.APR.String(),
			BalanceCents:     debt.Balance.Cents,
			MinPaymentCents:  debt.MinPayment.Cents,
			PaymentFrequency: string(debt.PaymentFrequency),
			UpdatedAt:        now,
			ID:               debt.ID,
			UserID:           debt.UserID,
		})
		if err != nil {
			return fmt.Errorf("update debt: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		if err := q.SyncLinkedBills(ctx, debt.ID, debt.UserID, debt.Name, debt.MonthlyPayment().Cents); err != nil {
			return fmt.Errorf("sync linked bills: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteDebt(ctx context.Context, userID, debtID string) error {
	n, err := r.queries.DeleteDebt(ctx, debtID, userID)
	if err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) CreateBill(ctx context.Context, bill core.Bill) error {
	row := fromCoreBill(bill)
	row.CreatedAt = r.timestamp()
	if err := r.queries.CreateBill(ctx, row); err != nil {
		return fmt.Errorf("create bill: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetBill(ctx context.Context, userID, billID string) (core.Bill, error) {
	row, err := r.queries.GetBillForUser(ctx, billID, userID)
	if err != nil {
		return core.Bill{}, notFound(err, "get bill")
	}
	return toCoreBill(row)
}

func (r *SQLiteRepository) ListLinkedBills(ctx context.Context, debtID string) ([]core.Bill, error) {
	rows, err := r.queries.ListBillsByDebt(ctx, debtID)
	if err != nil {
		return nil, fmt.Errorf("list linked bills: %w", err)
	}
	bills := make([]core.Bill, 0, len(rows))
	for _, row := range rows {
		b, err := toCoreBill(row)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, nil
}

// BillPayment describes a paid/unpaid toggle. Amount nil means the bill's
// monthly amount.
type BillPayment struct {
	Paid   bool
	Amount *core.Money
	Month  core.Period
}

// SetBillPaid toggles the bill's paid state. Marking a debt-linked bill paid
// reduces the debt balance by the payment, floored at zero, in the same
// transaction. Unmarking clears the payment but leaves the balance as is.
func (r *SQLiteRepository) SetBillPaid(ctx context.Context, userID, billID string, p BillPayment) (core.Bill, error) {
	var result core.Bill

	err := r.inTx(ctx, func(q *Queries) error {
		row, err := q.GetBillForUser(ctx, billID, userID)
		if err != nil {
			return notFound(err, "get bill")
		}

		params := SetBillPaidParams{ID: billID, UserID: userID, Paid: p.Paid}
		if p.Paid {
			payment := core.Money{Cents: row.MonthlyAmountCents}
			if p.Amount != nil {
				payment = *p.Amount
			}
			params.AmountPaidCents = sql.NullInt64{Int64: payment.Cents, Valid: true}
			params.PaidMonth = sql.NullString{String: p.Month.Key(), Valid: true}

			if row.DebtID.Valid && payment.Cents > 0 {
				if err := r.reduceDebt(ctx, q, row.DebtID.String, payment); err != nil {
					return err
				}
			}
		}

		if err := q.SetBillPaid(ctx, params); err != nil {
			return fmt.Errorf("update bill: %w", err)
		}

		row.Paid = params.Paid
		row.AmountPaidCents = params.AmountPaidCents
		row.PaidMonth = params.PaidMonth
		result, err = toCoreBill(row)
		return err
	})
	if err != nil {
		return core.Bill{}, err
	}
	return result, nil
}

func (r *SQLiteRepository) reduceDebt(ctx context.Context, q *Queries, debtID string, payment core.Money) error {
	debt, err := q.GetDebt(ctx, debtID)
	if errors.Is(err, sql.ErrNoRows) {
		// Linked debt vanished between reads; the bill update still applies.
		return nil
	}
	if err != nil {
		return fmt.Errorf("read linked debt: %w", err)
	}
	balance := core.Money{Cents: debt.BalanceCents}.Sub(payment).FloorZero()
	if _, err := q.UpdateDebtBalance(ctx, debtID, balance.Cents, r.timestamp()); err != nil {
		return fmt.Errorf("reduce debt balance: %w", err)
	}
	r.logger.InfoContext(ctx, "Debt reduced by bill payment",
		log.FieldDebtID, debtID,
		log.FieldOperation, log.OpPay,
		log.FieldPayments, payment.String(),
		log.FieldNewBalance, balance.String())
	return nil
}

func (r *SQLiteRepository) GetSnapshot(ctx context.Context, id string) (core.DebtMonthlySnapshot, error) {
	row, err := r.queries.GetSnapshot(ctx, id)
	if err != nil {
		return core.DebtMonthlySnapshot{}, notFound(err, "get snapshot")
	}
	return toCoreSnapshot(row)
}

// ListSnapshotsByDebt returns the debt's accrual history, newest period first.
func (r *SQLiteRepository) ListSnapshotsByDebt(ctx context.Context, debtID string) ([]core.DebtMonthlySnapshot, error) {
	rows, err := r.queries.ListSnapshotsByDebt(ctx, debtID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return toCoreSnapshots(rows)
}

// ExportCursor is the position after a snapshot in export order. The zero
// value is the start.
type ExportCursor struct {
	CreatedAt time.Time
	ID        string
}

func CursorAfter(s core.DebtMonthlySnapshot) ExportCursor {
	return ExportCursor{CreatedAt: s.CreatedAt, ID: s.ID}
}

// ListUnexportedSnapshots returns up to limit snapshots not yet written to the
// external ledger, oldest first.
func (r *SQLiteRepository) ListUnexportedSnapshots(ctx context.Context, limit int) ([]core.DebtMonthlySnapshot, error) {
	return r.ListUnexportedSnapshotsAfter(ctx, ExportCursor{}, limit)
}

// ListUnexportedSnapshotsAfter continues ListUnexportedSnapshots past after,
// so callers can step over snapshots that keep failing.
func (r *SQLiteRepository) ListUnexportedSnapshotsAfter(ctx context.Context, after ExportCursor, limit int) ([]core.DebtMonthlySnapshot, error) {
	var createdAt string
	if after.ID != "" {
		createdAt = after.CreatedAt.UTC().Format(timeLayout)
	}
	rows, err := r.queries.ListUnexportedSnapshots(ctx, createdAt, after.ID, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list unexported snapshots: %w", err)
	}
	return toCoreSnapshots(rows)
}

func (r *SQLiteRepository) MarkSnapshotExported(ctx context.Context, id string) error {
	if err := r.queries.MarkSnapshotExported(ctx, id, r.timestamp()); err != nil {
		return fmt.Errorf("mark snapshot exported: %w", err)
	}
	return nil
}

func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toCoreDebt(row Debt) (core.Debt, error) {
	apr, err := decimal.NewFromString(row.Apr)
	if err != nil {
		return core.Debt{}, fmt.Errorf("debt %s: invalid apr %q: %w", row.ID, row.Apr, err)
	}
	return core.Debt{
		ID:               row.ID,
		UserID:           row.UserID,
		Name:             row.Name,
		APR:              apr,
		Balance:          core.Money{Cents: row.BalanceCents},
		MinPayment:       core.Money{Cents: row.MinPaymentCents},
		PaymentFrequency: core.PaymentFrequency(row.PaymentFrequency),
		CreatedAt:        parseTime(row.CreatedAt),
		UpdatedAt:        parseTime(row.UpdatedAt),
	}, nil
}

func toCoreBill(row Bill) (core.Bill, error) {
	b := core.Bill{
		ID:            row.ID,
		UserID:        row.UserID,
		Name:          row.Name,
		Category:      core.BillCategory(row.Category),
		DueDay:        int(row.DueDay),
		MonthlyAmount: core.Money{Cents: row.MonthlyAmountCents},
		Paid:          row.Paid,
		CreatedAt:     parseTime(row.CreatedAt),
	}
	if row.AmountPaidCents.Valid {
		b.AmountPaid = &core.Money{Cents: row.AmountPaidCents.Int64}
	}
	if row.PaidMonth.Valid {
		p, err := core.ParsePeriod(row.PaidMonth.String)
		if err != nil {
			return core.Bill{}, fmt.Errorf("bill %s: %w", row.ID, err)
		}
		b.PaidMonth = &p
	}
	if row.DebtID.Valid {
		id := row.DebtID.String
		b.DebtID = &id
	}
	return b, nil
}

func fromCoreBill(b core.Bill) Bill {
	row := Bill{
		ID:                 b.ID,
		UserID:             b.UserID,
		Name:               b.Name,
		Category:           string(b.Category),
		DueDay:             int64(b.DueDay),
		MonthlyAmountCents: b.MonthlyAmount.Cents,
		Paid:               b.Paid,
	}
	if b.AmountPaid != nil {
		row.AmountPaidCents = sql.NullInt64{Int64: b.AmountPaid.Cents, Valid: true}
	}
	if b.PaidMonth != nil {
		row.PaidMonth = sql.NullString{String: b.PaidMonth.Key(), Valid: true}
	}
	if b.LinkedToDebt() {
		row.DebtID = sql.NullString{String: *b.DebtID, Valid: true}
	}
	return row
}

func toCoreSnapshot(row DebtMonthlySnapshot) (core.DebtMonthlySnapshot, error) {
	p, err := core.ParsePeriod(row.YearMonth)
	if err != nil {
		return core.DebtMonthlySnapshot{}, fmt.Errorf("snapshot %s: %w", row.ID, err)
	}
	return core.DebtMonthlySnapshot{
		ID:              row.ID,
		DebtID:          row.DebtID,
		YearMonth:       p,
		BalanceBefore:   core.Money{Cents: row.BalanceBeforeCents},
		InterestApplied: core.Money{Cents: row.InterestAppliedCents},
		PaymentsApplied: core.Money{Cents: row.PaymentsAppliedCents},
		BalanceAfter:    core.Money{Cents: row.BalanceAfterCents},
		CreatedAt:       parseTime(row.CreatedAt),
	}, nil
}

func toCoreSnapshots(rows []DebtMonthlySnapshot) ([]core.DebtMonthlySnapshot, error) {
	out := make([]core.DebtMonthlySnapshot, 0, len(rows))
	for _, row := range rows {
		s, err := toCoreSnapshot(row)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func fromCoreSnapshot(s core.DebtMonthlySnapshot) DebtMonthlySnapshot {
	return DebtMonthlySnapshot{
		ID:                   s.ID,
		DebtID:               s.DebtID,
		YearMonth:            s.YearMonth.Key(),
		BalanceBeforeCents:   s.BalanceBefore.Cents,
		InterestAppliedCents: s.InterestApplied.Cents,
		PaymentsAppliedCents: s.PaymentsApplied.Cents,
		BalanceAfterCents:    s.BalanceAfter.Cents,
		CreatedAt:            s.CreatedAt.Format(timeLayout),
	}
}
