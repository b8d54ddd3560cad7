package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/storage"

	"github.com/shopspring/decimal"
)

func TestDebtService_CreateDebtAddsLinkedBill(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	svc := NewDebtService(repo)

	debt, err := svc.CreateDebt(ctx, "user-1", DebtInput{
		Name:             "  Car loan ",
		APR:              decimal.RequireFromString("0.069"),
		Balance:          core.NewMoney(12000, 0),
		MinPayment:       core.NewMoney(100, 0),
		PaymentFrequency: core.Biweekly,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if debt.Name != "Car loan" {
		t.Fatalf("name not trimmed: %q", debt.Name)
	}

	bills, err := repo.ListLinkedBills(ctx, debt.ID)
	if err != nil || len(bills) != 1 {
		t.Fatalf("linked bills = %d err=%v", len(bills), err)
	}
	b := bills[0]
	if b.Category != core.CategoryDebt || b.DueDay != 1 || b.MonthlyAmount != core.NewMoney(217, 0) || b.Name != "Car loan" {
		t.Fatalf("unexpected linked bill %+v", b)
	}
}

func TestDebtService_CreateDebtValidates(t *testing.T) {
	svc := NewDebtService(newTestRepo(t))
	tests := []struct {
		name string
		in   DebtInput
		want error
	}{
		{"empty name", DebtInput{Name: " ", PaymentFrequency: core.Monthly}, core.ErrEmptyName},
		{"bad frequency", DebtInput{Name: "x", PaymentFrequency: "daily"}, core.ErrInvalidFrequency},
		{"negative apr", DebtInput{Name: "x", APR: decimal.RequireFromString("-1"), PaymentFrequency: core.Monthly}, core.ErrInvalidAPR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateDebt(context.Background(), "user-1", tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDebtService_UpdateDebtResyncsBill(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	svc := NewDebtService(repo)
	debt := createDebt(t, svc, core.NewMoney(900, 0), "0.1")

	updated, err := svc.UpdateDebt(ctx, debt.UserID, debt.ID, DebtInput{
		Name:             "Store card",
		APR:              debt.APR,
		Balance:          debt.Balance,
		MinPayment:       core.NewMoney(25, 0),
		PaymentFrequency: core.Weekly,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.MonthlyPayment() != core.NewMoney(108, 25) {
		t.Fatalf("monthly payment = %v", updated.MonthlyPayment())
	}

	bills, _ := repo.ListLinkedBills(ctx, debt.ID)
	if len(bills) != 1 || bills[0].MonthlyAmount != core.NewMoney(108, 25) || bills[0].Name != "Store card" {
		t.Fatalf("linked bill not resynced: %+v", bills)
	}
}

func TestDebtService_OtherUsersDebtIsNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	svc := NewDebtService(repo)
	debt := createDebt(t, svc, core.NewMoney(900, 0), "0.1")

	if _, err := svc.UpdateDebt(ctx, "intruder", debt.ID, DebtInput{Name: "x", PaymentFrequency: core.Monthly}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update: expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteDebt(ctx, "intruder", debt.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ListSnapshots(ctx, "intruder", debt.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("snapshots: expected ErrNotFound, got %v", err)
	}
}

func TestDebtService_ListSnapshotsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	svc := NewDebtService(repo)
	debt := createDebt(t, svc, core.NewMoney(1000, 0), "0.12")
	job := newTestJob(repo, nil)

	for _, now := range []time.Time{march2025, march2025.AddDate(0, 1, 0)} {
		if _, err := job.Run(ctx, now); err != nil {
			t.Fatalf("run: %v", err)
		}
	}
	snaps, err := svc.ListSnapshots(ctx, debt.UserID, debt.ID)
	if err != nil || len(snaps) != 2 {
		t.Fatalf("snapshots = %d err=%v", len(snaps), err)
	}
	if snaps[0].YearMonth != (core.Period{Year: 2025, Month: time.April}) {
		t.Fatalf("expected April first, got %v", snaps[0].YearMonth)
	}
	if snaps[0].BalanceBefore != snaps[1].BalanceAfter {
		t.Fatalf("history does not chain: %+v", snaps)
	}
}
