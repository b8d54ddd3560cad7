package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDebtValidate(t *testing.T) {
	good := Debt{
		Name:             "Visa",
		APR:              decimal.RequireFromString("0.2999"),
		Balance:          NewMoney(1000, 0),
		MinPayment:       NewMoney(35, 0),
		PaymentFrequency: Monthly,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		name string
		mut  func(d *Debt)
		want error
	}{
		{"empty name", func(d *Debt) { d.Name = "  " }, ErrEmptyName},
		{"negative apr", func(d *Debt) { d.APR = decimal.RequireFromString("-0.01") }, ErrInvalidAPR},
		{"negative balance", func(d *Debt) { d.Balance = Money{Cents: -1} }, ErrInvalidAmount},
		{"unknown frequency", func(d *Debt) { d.PaymentFrequency = "daily" }, ErrInvalidFrequency},
	}
	for _, tc := range bads {
		t.Run(tc.name, func(t *testing.T) {
			d := good
			tc.mut(&d)
			if err := d.Validate(); err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMonthlyPayment(t *testing.T) {
	tests := []struct {
		freq PaymentFrequency
		min  Money
		want Money
	}{
		{Weekly, NewMoney(25, 0), NewMoney(108, 25)},
		{Biweekly, NewMoney(100, 0), NewMoney(217, 0)},
		{Monthly, NewMoney(35, 50), NewMoney(35, 50)},
		{Weekly, NewMoney(10, 1), NewMoney(43, 34)}, // 43.3433 rounds down
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			if got := tt.freq.MonthlyPayment(tt.min); got != tt.want {
				t.Errorf("MonthlyPayment(%v) = %v, want %v", tt.min, got, tt.want)
			}
		})
	}
}

func TestBillValidate(t *testing.T) {
	debtID := "d1"
	good := Bill{Name: "Card", Category: CategoryDebt, DueDay: 1, MonthlyAmount: NewMoney(50, 0), DebtID: &debtID}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if !good.LinkedToDebt() {
		t.Fatalf("expected bill to be linked")
	}

	for _, day := range []int{0, 32} {
		b := good
		b.DueDay = day
		if err := b.Validate(); err != ErrInvalidDueDay {
			t.Fatalf("due day %d: expected ErrInvalidDueDay, got %v", day, err)
		}
	}

	b := good
	b.Category = "Groceries"
	if err := b.Validate(); err != ErrInvalidCategory {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}

	b = good
	b.DebtID = nil
	if b.LinkedToDebt() {
		t.Fatalf("expected unlinked bill")
	}
}

func TestPeriod(t *testing.T) {
	p := PeriodOf(time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC))
	if p.Key() != "2024-12-01" {
		t.Fatalf("unexpected key %s", p.Key())
	}
	if p.Next().Key() != "2025-01-01" {
		t.Fatalf("unexpected next %s", p.Next().Key())
	}
	if p.Prev().Key() != "2024-11-01" {
		t.Fatalf("unexpected prev %s", p.Prev().Key())
	}
	if got := p.Next().Next().MonthsSince(p); got != 2 {
		t.Fatalf("MonthsSince = %d, want 2", got)
	}
	if !p.Before(p.Next()) || p.Next().Before(p) {
		t.Fatalf("Before ordering is wrong")
	}

	parsed, err := ParsePeriod("2024-03-17")
	if err != nil || parsed != (Period{Year: 2024, Month: time.March}) {
		t.Fatalf("ParsePeriod = %v, %v", parsed, err)
	}
	if _, err := ParsePeriod("March"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestPeriodOfUsesLocation(t *testing.T) {
	// Half past midnight on 1 February at UTC+1 is still January in UTC.
	rome := time.FixedZone("CET", 3600)
	instant := time.Date(2024, 2, 1, 0, 30, 0, 0, rome)
	if got := PeriodOf(instant).Key(); got != "2024-02-01" {
		t.Fatalf("local period = %s", got)
	}
	if got := PeriodOf(instant.UTC()).Key(); got != "2024-01-01" {
		t.Fatalf("utc period = %s", got)
	}
}
