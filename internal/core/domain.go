package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Weekly   PaymentFrequency = "weekly"
	Biweekly PaymentFrequency = "biweekly"
	Monthly  PaymentFrequency = "monthly"
)

// Bill categories. CategoryDebt marks bills that pay down a linked debt.
const (
	CategoryHousing        BillCategory = "Housing"
	CategoryUtilities      BillCategory = "Utilities"
	CategoryInsurance      BillCategory = "Insurance"
	CategoryTransportation BillCategory = "Transportation"
	CategorySubscriptions  BillCategory = "Subscriptions"
	CategoryDebt           BillCategory = "Debt"
	CategoryOther          BillCategory = "Other"
)

type (
	PaymentFrequency string

	BillCategory string

	Money struct {
		Cents int64
	}

	Debt struct {
		ID               string
		UserID           string
		Name             string
		APR              decimal.Decimal // annual rate as a fraction, 0.2999 = 29.99%
		Balance          Money
		MinPayment       Money
		PaymentFrequency PaymentFrequency
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	Bill struct {
		ID            string
		UserID        string
		Name          string
		Category      BillCategory
		DueDay        int
		MonthlyAmount Money
		Paid          bool
		AmountPaid    *Money
		PaidMonth     *Period
		DebtID        *string
		CreatedAt     time.Time
	}

	DebtMonthlySnapshot struct {
		ID              string
		DebtID          string
		YearMonth       Period
		BalanceBefore   Money
		InterestApplied Money
		PaymentsApplied Money
		BalanceAfter    Money
		CreatedAt       time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidAPR       = errors.New("invalid apr")
	ErrInvalidFrequency = errors.New("invalid payment frequency")
	ErrInvalidCategory  = errors.New("invalid bill category")
	ErrInvalidDueDay    = errors.New("invalid due day")
	ErrEmptyName        = errors.New("empty name")
)

var billCategories = []BillCategory{
	CategoryHousing,
	CategoryUtilities,
	CategoryInsurance,
	CategoryTransportation,
	CategorySubscriptions,
	CategoryDebt,
	CategoryOther,
}

// BillCategories returns the fixed set of bill categories in display order.
func BillCategories() []BillCategory {
	return append([]BillCategory(nil), billCategories...)
}

func (c BillCategory) Validate() error {
	for _, known := range billCategories {
		if c == known {
			return nil
		}
	}
	return ErrInvalidCategory
}

func (f PaymentFrequency) Validate() error {
	switch f {
	case Weekly, Biweekly, Monthly:
		return nil
	default:
		return ErrInvalidFrequency
	}
}

// MonthlyPayment normalises a per-cadence minimum payment to a monthly amount,
// rounded to cents.
func (f PaymentFrequency) MonthlyPayment(minPayment Money) Money {
	var factor decimal.Decimal
	switch f {
	case Weekly:
		factor = decimal.RequireFromString("4.33")
	case Biweekly:
		factor = decimal.RequireFromString("2.17")
	default:
		factor = decimal.NewFromInt(1)
	}
	return MoneyFromDecimal(minPayment.Decimal().Mul(factor))
}

func (d Debt) Validate() error {
	if err := validateName(d.Name); err != nil {
		return err
	}
	if d.APR.IsNegative() || d.APR.GreaterThan(decimal.NewFromInt(10)) {
		return ErrInvalidAPR
	}
	if d.Balance.Cents < 0 || d.MinPayment.Cents < 0 {
		return ErrInvalidAmount
	}
	return d.PaymentFrequency.Validate()
}

// MonthlyPayment is the debt's minimum payment normalised to one month.
func (d Debt) MonthlyPayment() Money {
	return d.PaymentFrequency.MonthlyPayment(d.MinPayment)
}

func (b Bill) Validate() error {
	if err := validateName(b.Name); err != nil {
		return err
	}
	if err := b.Category.Validate(); err != nil {
		return err
	}
	if b.DueDay < 1 || b.DueDay > 31 {
		return ErrInvalidDueDay
	}
	if b.MonthlyAmount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// LinkedToDebt reports whether paying this bill pays down a debt.
func (b Bill) LinkedToDebt() bool {
	return b.DebtID != nil && *b.DebtID != ""
}

func validateName(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ErrEmptyName
	}
	if len(name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	return nil
}
