package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so the same queries run inside
// or outside a transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Debt struct {
	ID               string
	UserID           string
	Name             string
	Apr              string
	BalanceCents     int64
	MinPaymentCents  int64
	PaymentFrequency string
	CreatedAt        string
	UpdatedAt        string
}

type Bill struct {
	ID                 string
	UserID             string
	Name               string
	Category           string
	DueDay             int64
	MonthlyAmountCents int64
	Paid               bool
	AmountPaidCents    sql.NullInt64
	PaidMonth          sql.NullString
	DebtID             sql.NullString
	CreatedAt          string
}

type DebtMonthlySnapshot struct {
	ID                   string
	DebtID               string
	YearMonth            string
	BalanceBeforeCents   int64
	InterestAppliedCents int64
	PaymentsAppliedCents int64
	BalanceAfterCents    int64
	CreatedAt            string
	ExportedAt           sql.NullString
}

const debtColumns = `id, user_id, name, apr, balance_cents, min_payment_cents, payment_frequency, created_at, updated_at`

func scanDebt(row interface{ Scan(...interface{}) error }) (Debt, error) {
	var d Debt
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.Apr, &d.BalanceCents, &d.MinPaymentCents,
		&d.PaymentFrequency, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

const createDebt = `
INSERT INTO debts (` + debtColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type CreateDebtParams struct {
	ID               string
	UserID           string
	Name             string
	Apr              string
	BalanceCents     int64
	MinPaymentCents  int64
	PaymentFrequency string
	CreatedAt        string
}

func (q *Queries) CreateDebt(ctx context.Context, arg CreateDebtParams) error {
	_, err := q.db.ExecContext(ctx, createDebt,
		arg.ID, arg.UserID, arg.Name, arg.Apr, arg.BalanceCents, arg.MinPaymentCents,
		arg.PaymentFrequency, arg.CreatedAt, arg.CreatedAt)
	return err
}

const getDebt = `SELECT ` + debtColumns + ` FROM debts WHERE id = ?`

func (q *Queries) GetDebt(ctx context.Context, id string) (Debt, error) {
	return scanDebt(q.db.QueryRowContext(ctx, getDebt, id))
}

const getDebtForUser = `SELECT ` + debtColumns + ` FROM debts WHERE id = ? AND user_id = ?`

func (q *Queries) GetDebtForUser(ctx context.Context, id, userID string) (Debt, error) {
	return scanDebt(q.db.QueryRowContext(ctx, getDebtForUser, id, userID))
}

const listDebts = `SELECT ` + debtColumns + ` FROM debts ORDER BY created_at, id`

func (q *Queries) ListDebts(ctx context.Context) ([]Debt, error) {
	rows, err := q.db.QueryContext(ctx, listDebts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const updateDebt = `
UPDATE debts
SET name = ?, apr = ?, balance_cents = ?, min_payment_cents = ?, payment_frequency = ?, updated_at = ?
WHERE id = ? AND user_id = ?`

type UpdateDebtParams struct {
	Name             string
	Apr              string
	BalanceCents     int64
	MinPaymentCents  int64
	PaymentFrequency string
	UpdatedAt        string
	ID               string
	UserID           string
}

func (q *Queries) UpdateDebt(ctx context.Context, arg UpdateDebtParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateDebt,
		arg.Name, arg.Apr, arg.BalanceCents, arg.MinPaymentCents, arg.PaymentFrequency,
		arg.UpdatedAt, arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateDebtBalance = `UPDATE debts SET balance_cents = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateDebtBalance(ctx context.Context, id string, balanceCents int64, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateDebtBalance, balanceCents, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteDebt = `DELETE FROM debts WHERE id = ? AND user_id = ?`

func (q *Queries) DeleteDebt(ctx context.Context, id, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteDebt, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const billColumns = `id, user_id, name, category, due_day, monthly_amount_cents, paid, amount_paid_cents, paid_month, debt_id, created_at`

func scanBill(row interface{ Scan(...interface{}) error }) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Category, &b.DueDay, &b.MonthlyAmountCents,
		&b.Paid, &b.AmountPaidCents, &b.PaidMonth, &b.DebtID, &b.CreatedAt)
	return b, err
}

const createBill = `
INSERT INTO bills (` + billColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateBill(ctx context.Context, b Bill) error {
	_, err := q.db.ExecContext(ctx, createBill,
		b.ID, b.UserID, b.Name, b.Category, b.DueDay, b.MonthlyAmountCents,
		b.Paid, b.AmountPaidCents, b.PaidMonth, b.DebtID, b.CreatedAt)
	return err
}

const getBillForUser = `SELECT ` + billColumns + ` FROM bills WHERE id = ? AND user_id = ?`

func (q *Queries) GetBillForUser(ctx context.Context, id, userID string) (Bill, error) {
	return scanBill(q.db.QueryRowContext(ctx, getBillForUser, id, userID))
}

const listBillsByDebt = `SELECT ` + billColumns + ` FROM bills WHERE debt_id = ? ORDER BY created_at, id`

func (q *Queries) ListBillsByDebt(ctx context.Context, debtID string) ([]Bill, error) {
	rows, err := q.db.QueryContext(ctx, listBillsByDebt, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

const setBillPaid = `
UPDATE bills SET paid = ?, amount_paid_cents = ?, paid_month = ?
WHERE id = ? AND user_id = ?`

type SetBillPaidParams struct {
	Paid            bool
	AmountPaidCents sql.NullInt64
	PaidMonth       sql.NullString
	ID              string
	UserID          string
}

func (q *Queries) SetBillPaid(ctx context.Context, arg SetBillPaidParams) error {
	_, err := q.db.ExecContext(ctx, setBillPaid, arg.Paid, arg.AmountPaidCents, arg.PaidMonth, arg.ID, arg.UserID)
	return err
}

const syncLinkedBills = `
UPDATE bills SET name = ?, monthly_amount_cents = ?
WHERE debt_id = ? AND user_id = ?`

func (q *Queries) SyncLinkedBills(ctx context.Context, debtID, userID, name string, monthlyAmountCents int64) error {
	_, err := q.db.ExecContext(ctx, syncLinkedBills, name, monthlyAmountCents, debtID, userID)
	return err
}

const sumLinkedPayments = `
SELECT COALESCE(SUM(amount_paid_cents), 0)
FROM bills
WHERE debt_id = ?
  AND paid = 1
  AND amount_paid_cents IS NOT NULL
  AND paid_month >= ?
  AND paid_month < ?`

// SumLinkedPayments totals amount_paid for paid bills linked to debtID whose
// paid_month falls in [fromMonth, toMonth).
func (q *Queries) SumLinkedPayments(ctx context.Context, debtID, fromMonth, toMonth string) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumLinkedPayments, debtID, fromMonth, toMonth).Scan(&total)
	return total, err
}

const snapshotColumns = `id, debt_id, year_month, balance_before_cents, interest_applied_cents, payments_applied_cents, balance_after_cents, created_at, exported_at`

func scanSnapshot(row interface{ Scan(...interface{}) error }) (DebtMonthlySnapshot, error) {
	var s DebtMonthlySnapshot
	err := row.Scan(&s.ID, &s.DebtID, &s.YearMonth, &s.BalanceBeforeCents, &s.InterestAppliedCents,
		&s.PaymentsAppliedCents, &s.BalanceAfterCents, &s.CreatedAt, &s.ExportedAt)
	return s, err
}

const snapshotExists = `SELECT EXISTS (SELECT 1 FROM debt_monthly_snapshots WHERE debt_id = ? AND year_month = ?)`

func (q *Queries) SnapshotExists(ctx context.Context, debtID, yearMonth string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, snapshotExists, debtID, yearMonth).Scan(&exists)
	return exists, err
}

const latestSnapshotMonth = `SELECT MAX(year_month) FROM debt_monthly_snapshots WHERE debt_id = ?`

func (q *Queries) LatestSnapshotMonth(ctx context.Context, debtID string) (sql.NullString, error) {
	var month sql.NullString
	err := q.db.QueryRowContext(ctx, latestSnapshotMonth, debtID).Scan(&month)
	return month, err
}

const insertSnapshot = `
INSERT INTO debt_monthly_snapshots (
    id, debt_id, year_month, balance_before_cents, interest_applied_cents,
    payments_applied_cents, balance_after_cents, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (debt_id, year_month) DO NOTHING`

// InsertSnapshot returns the number of rows written: 0 means a snapshot for
// the same debt and month already exists.
func (q *Queries) InsertSnapshot(ctx context.Context, s DebtMonthlySnapshot) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertSnapshot,
		s.ID, s.DebtID, s.YearMonth, s.BalanceBeforeCents, s.InterestAppliedCents,
		s.PaymentsAppliedCents, s.BalanceAfterCents, s.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getSnapshot = `SELECT ` + snapshotColumns + ` FROM debt_monthly_snapshots WHERE id = ?`

func (q *Queries) GetSnapshot(ctx context.Context, id string) (DebtMonthlySnapshot, error) {
	return scanSnapshot(q.db.QueryRowContext(ctx, getSnapshot, id))
}

const listSnapshotsByDebt = `
SELECT ` + snapshotColumns + ` FROM debt_monthly_snapshots
WHERE debt_id = ? ORDER BY year_month DESC`

func (q *Queries) ListSnapshotsByDebt(ctx context.Context, debtID string) ([]DebtMonthlySnapshot, error) {
	return q.listSnapshots(ctx, listSnapshotsByDebt, debtID)
}

const listUnexportedSnapshots = `
SELECT ` + snapshotColumns + ` FROM debt_monthly_snapshots
WHERE exported_at IS NULL
  AND (created_at > ? OR (created_at = ? AND id > ?))
ORDER BY created_at, id LIMIT ?`

// ListUnexportedSnapshots pages through unexported snapshots in (created_at, id)
// order, starting after the given key. Empty strings start from the beginning.
func (q *Queries) ListUnexportedSnapshots(ctx context.Context, afterCreatedAt, afterID string, limit int64) ([]DebtMonthlySnapshot, error) {
	return q.listSnapshots(ctx, listUnexportedSnapshots, afterCreatedAt, afterCreatedAt, afterID, limit)
}

func (q *Queries) listSnapshots(ctx context.Context, query string, args ...interface{}) ([]DebtMonthlySnapshot, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DebtMonthlySnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const markSnapshotExported = `UPDATE debt_monthly_snapshots SET exported_at = ? WHERE id = ? AND exported_at IS NULL`

func (q *Queries) MarkSnapshotExported(ctx context.Context, id, exportedAt string) error {
	_, err := q.db.ExecContext(ctx, markSnapshotExported, exportedAt, id)
	return err
}
