package memory

import (
	"context"
	"testing"
	"time"

	"cashflow/internal/core"
)

func TestMemoryStoreAppendIsIdempotent(t *testing.T) {
	s := New()
	snap := core.DebtMonthlySnapshot{
		ID:           "snap-1",
		DebtID:       "debt-1",
		YearMonth:    core.Period{Year: 2025, Month: time.March},
		BalanceAfter: core.NewMoney(410, 0),
	}

	ref, err := s.AppendSnapshot(context.Background(), snap)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	ref, err = s.AppendSnapshot(context.Background(), snap)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected re-append: ref=%q err=%v", ref, err)
	}

	rows := s.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0][0] != "snap-1" || rows[0][2] != "2025-03" || rows[0][6] != "410.00" {
		t.Fatalf("unexpected row %v", rows[0])
	}
}

func TestMemoryStoreRejectsMissingID(t *testing.T) {
	if _, err := New().AppendSnapshot(context.Background(), core.DebtMonthlySnapshot{}); err == nil {
		t.Fatal("expected error")
	}
}
