package services

import (
	"context"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/log"
	"cashflow/internal/storage"
)

type BillStore interface {
	SetBillPaid(ctx context.Context, userID, billID string, p storage.BillPayment) (core.Bill, error)
}

// PaymentInput marks a bill paid or unpaid. Amount nil means the bill's
// monthly amount; PaidOn zero means now.
type PaymentInput struct {
	Paid   bool
	Amount *core.Money
	PaidOn time.Time
}

type BillService struct {
	store    BillStore
	location *time.Location
	now      func() time.Time
	logger   *log.Logger
}

// NewBillService creates the service. loc decides the month a payment date
// belongs to and should match the accrual job's location.
func NewBillService(store BillStore, loc *time.Location) *BillService {
	if loc == nil {
		loc = time.Local
	}
	return &BillService{
		store:    store,
		location: loc,
		now:      time.Now,
		logger:   log.Default(log.ComponentBill),
	}
}

// SetPaid records the payment state. Paying a debt-linked bill reduces the
// debt balance by the payment, floored at zero, and stamps the payment month
// the accrual job nets against.
func (s *BillService) SetPaid(ctx context.Context, userID, billID string, in PaymentInput) (core.Bill, error) {
	if in.Amount != nil && in.Amount.Cents < 0 {
		return core.Bill{}, core.ErrInvalidAmount
	}

	paidOn := in.PaidOn
	if paidOn.IsZero() {
		paidOn = s.now()
	}

	bill, err := s.store.SetBillPaid(ctx, userID, billID, storage.BillPayment{
		Paid:   in.Paid,
		Amount: in.Amount,
		Month:  core.PeriodOf(paidOn.In(s.location)),
	})
	if err != nil {
		return core.Bill{}, err
	}

	args := []any{log.FieldOperation, log.OpPay, log.FieldBillID, bill.ID, "paid", bill.Paid}
	if bill.AmountPaid != nil {
		args = append(args, "amount_paid", bill.AmountPaid.String())
	}
	if bill.PaidMonth != nil {
		args = append(args, log.FieldPeriod, bill.PaidMonth.String())
	}
	s.logger.InfoContext(ctx, "Bill payment updated", args...)
	return bill, nil
}
