package core

import "github.com/shopspring/decimal"

var monthsPerYear = decimal.NewFromInt(12)

// Accrual is the outcome of applying one month of interest to a debt.
type Accrual struct {
	BalanceBefore   Money
	InterestApplied Money
	PaymentsApplied Money
	BalanceAfter    Money
}

// MonthlyInterest is simple monthly interest, balance × apr / 12, rounded to cents.
func MonthlyInterest(balance Money, apr decimal.Decimal) Money {
	return MoneyFromDecimal(balance.Decimal().Mul(apr).Div(monthsPerYear))
}

// ComputeAccrual applies interest to balance, nets out payments, and floors
// the result at zero.
func ComputeAccrual(balance Money, apr decimal.Decimal, payments Money) Accrual {
	interest := MonthlyInterest(balance, apr)
	return Accrual{
		BalanceBefore:   balance,
		InterestApplied: interest,
		PaymentsApplied: payments,
		BalanceAfter:    balance.Add(interest).Sub(payments).FloorZero(),
	}
}

// Snapshot turns the accrual into the audit record for debtID and period.
func (a Accrual) Snapshot(debtID string, period Period) DebtMonthlySnapshot {
	return DebtMonthlySnapshot{
		DebtID:          debtID,
		YearMonth:       period,
		BalanceBefore:   a.BalanceBefore,
		InterestApplied: a.InterestApplied,
		PaymentsApplied: a.PaymentsApplied,
		BalanceAfter:    a.BalanceAfter,
	}
}
