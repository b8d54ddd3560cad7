package sheets

import (
	"context"

	"cashflow/internal/core"
)

// Ports for outbound adapters.
type (
	// SnapshotWriter appends accrual snapshots to an external ledger.
	// Writing the same snapshot twice must not add a second row.
	SnapshotWriter interface {
		AppendSnapshot(ctx context.Context, s core.DebtMonthlySnapshot) (rowRef string, err error)
	}
)

// LedgerHeader is the column layout of the exported interest ledger.
var LedgerHeader = []string{
	"Snapshot ID", "Debt ID", "Period", "Balance Before",
	"Interest", "Payments", "Balance After", "Recorded At",
}

// LedgerRow renders a snapshot in LedgerHeader order.
func LedgerRow(s core.DebtMonthlySnapshot) []string {
	return []string{
		s.ID,
		s.DebtID,
		s.YearMonth.String(),
		s.BalanceBefore.String(),
		s.InterestApplied.String(),
		s.PaymentsApplied.String(),
		s.BalanceAfter.String(),
		s.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}
