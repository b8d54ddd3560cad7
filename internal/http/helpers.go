package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/storage"

	"github.com/shopspring/decimal"
)

// HeaderUserID carries the authenticated user, set by the upstream auth proxy.
const HeaderUserID = "X-User-ID"

// bearerMatches compares the Authorization header against secret in
// constant time. An empty secret disables the check.
func bearerMatches(r *http.Request, secret string) bool {
	if secret == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	want := "Bearer " + secret
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func userIDFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderUserID))
}

// errorStatus maps domain and storage errors to an HTTP status and a message
// safe to return to the caller.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidAPR),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrInvalidDueDay),
		errors.Is(err, core.ErrEmptyName):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

type debtResponse struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	APR              decimal.Decimal       `json:"apr"`
	Balance          core.Money            `json:"balance"`
	MinPayment       core.Money            `json:"min_payment"`
	MonthlyPayment   core.Money            `json:"monthly_payment"`
	PaymentFrequency core.PaymentFrequency `json:"payment_frequency"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

func toDebtResponse(d core.Debt) debtResponse {
	return debtResponse{
		ID:               d.ID,
		Name:             d.Name,
		APR:              d.APR,
		Balance:          d.Balance,
		MinPayment:       d.MinPayment,
		MonthlyPayment:   d.MonthlyPayment(),
		PaymentFrequency: d.PaymentFrequency,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type billResponse struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Category      core.BillCategory `json:"category"`
	DueDay        int               `json:"due_day"`
	MonthlyAmount core.Money        `json:"monthly_amount"`
	Paid          bool              `json:"paid"`
	AmountPaid    *core.Money       `json:"amount_paid"`
	PaidMonth     *core.Period      `json:"paid_month"`
	DebtID        *string           `json:"debt_id"`
}

func toBillResponse(b core.Bill) billResponse {
	return billResponse{
		ID:            b.ID,
		Name:          b.Name,
		Category:      b.Category,
		DueDay:        b.DueDay,
		MonthlyAmount: b.MonthlyAmount,
		Paid:          b.Paid,
		AmountPaid:    b.AmountPaid,
		PaidMonth:     b.PaidMonth,
		DebtID:        b.DebtID,
	}
}

type snapshotResponse struct {
	ID              string      `json:"id"`
	DebtID          string      `json:"debt_id"`
	YearMonth       core.Period `json:"year_month"`
	BalanceBefore   core.Money  `json:"balance_before"`
	InterestApplied core.Money  `json:"interest_applied"`
	PaymentsApplied core.Money  `json:"payments_applied"`
	BalanceAfter    core.Money  `json:"balance_after"`
	CreatedAt       time.Time   `json:"created_at"`
}

func toSnapshotResponses(snaps []core.DebtMonthlySnapshot) []snapshotResponse {
	out := make([]snapshotResponse, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapshotResponse{
			ID:              s.ID,
			DebtID:          s.DebtID,
			YearMonth:       s.YearMonth,
			BalanceBefore:   s.BalanceBefore,
			InterestApplied: s.InterestApplied,
			PaymentsApplied: s.PaymentsApplied,
			BalanceAfter:    s.BalanceAfter,
			CreatedAt:       s.CreatedAt,
		})
	}
	return out
}
