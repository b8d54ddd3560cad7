package services

import (
	"context"
	"fmt"
	"strings"

	"cashflow/internal/core"
	"cashflow/internal/log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DebtStore interface {
	CreateDebtWithBill(ctx context.Context, debt core.Debt, bill core.Bill) error
	UpdateDebtAndLinkedBills(ctx context.Context, debt core.Debt) error
	DeleteDebt(ctx context.Context, userID, debtID string) error
	GetDebt(ctx context.Context, userID, debtID string) (core.Debt, error)
	ListSnapshotsByDebt(ctx context.Context, debtID string) ([]core.DebtMonthlySnapshot, error)
}

type DebtInput struct {
	Name             string                `json:"name"`
	APR              decimal.Decimal       `json:"apr"`
	Balance          core.Money            `json:"balance"`
	MinPayment       core.Money            `json:"min_payment"`
	PaymentFrequency core.PaymentFrequency `json:"payment_frequency"`
}

func (in DebtInput) apply(d *core.Debt) {
	d.Name = strings.TrimSpace(in.Name)
	d.APR = in.APR
	d.Balance = in.Balance
	d.MinPayment = in.MinPayment
	d.PaymentFrequency = in.PaymentFrequency
}

// DebtService manages the debt ledger and keeps each debt's linked payment
// bill in step with its minimum payment.
type DebtService struct {
	store  DebtStore
	logger *log.Logger
}

func NewDebtService(store DebtStore) *DebtService {
	return &DebtService{
		store:  store,
		logger: log.Default(log.ComponentDebt),
	}
}

// CreateDebt stores the debt together with a Debt-category bill due on the
// 1st for the cadence-normalised monthly payment.
func (s *DebtService) CreateDebt(ctx context.Context, userID string, in DebtInput) (core.Debt, error) {
	debt := core.Debt{ID: uuid.NewString(), UserID: userID}
	in.apply(&debt)
	if err := debt.Validate(); err != nil {
		return core.Debt{}, err
	}

	bill := core.Bill{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          debt.Name,
		Category:      core.CategoryDebt,
		DueDay:        1,
		MonthlyAmount: debt.MonthlyPayment(),
		DebtID:        &debt.ID,
	}

	if err := s.store.CreateDebtWithBill(ctx, debt, bill); err != nil {
		return core.Debt{}, fmt.Errorf("create debt: %w", err)
	}

	s.logger.InfoContext(ctx, "Debt created",
		log.FieldOperation, log.OpCreate,
		log.FieldDebtID, debt.ID,
		log.FieldBillID, bill.ID,
		log.FieldBalance, debt.Balance.String())
	return debt, nil
}

func (s *DebtService) UpdateDebt(ctx context.Context, userID, debtID string, in DebtInput) (core.Debt, error) {
	debt, err := s.store.GetDebt(ctx, userID, debtID)
	if err != nil {
		return core.Debt{}, err
	}
	in.apply(&debt)
	if err := debt.Validate(); err != nil {
		return core.Debt{}, err
	}

	if err := s.store.UpdateDebtAndLinkedBills(ctx, debt); err != nil {
		return core.Debt{}, fmt.Errorf("update debt: %w", err)
	}

	s.logger.InfoContext(ctx, "Debt updated",
		log.FieldOperation, log.OpUpdate,
		log.FieldDebtID, debt.ID,
		log.FieldBalance, debt.Balance.String(),
		"monthly_payment", debt.MonthlyPayment().String())
	return debt, nil
}

// DeleteDebt removes the debt with its snapshots; linked bills are kept but
// unlinked.
func (s *DebtService) DeleteDebt(ctx context.Context, userID, debtID string) error {
	if err := s.store.DeleteDebt(ctx, userID, debtID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Debt deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldDebtID, debtID,
		log.FieldUserID, userID)
	return nil
}

// ListSnapshots returns the debt's interest history, newest first.
func (s *DebtService) ListSnapshots(ctx context.Context, userID, debtID string) ([]core.DebtMonthlySnapshot, error) {
	if _, err := s.store.GetDebt(ctx, userID, debtID); err != nil {
		return nil, err
	}
	snaps, err := s.store.ListSnapshotsByDebt(ctx, debtID)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "Listed snapshots",
		log.FieldOperation, log.OpList,
		log.FieldDebtID, debtID,
		"count", len(snaps))
	return snaps, nil
}
