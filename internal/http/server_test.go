package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cashflow/internal/services"
	"cashflow/internal/storage"
)

type fakeRunner struct {
	summary services.RunSummary
	err     error
	calls   int
}

func (f *fakeRunner) Run(ctx context.Context, now time.Time) (services.RunSummary, error) {
	f.calls++
	return f.summary, f.err
}

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "cashflow.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	job := services.NewInterestAccrualJob(repo, nil, services.InterestAccrualConfig{Workers: 2, Location: cfg.Location})
	srv := NewServer(cfg, job, services.NewDebtService(repo), services.NewBillService(repo, cfg.Location), repo)
	srv.now = func() time.Time { return time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	return srv, repo
}

func do(t *testing.T, srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := do(t, srv, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	rr := do(t, srv, http.MethodGet, "/healthz", "", nil)
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("X-Request-ID = %q", rr.Header().Get("X-Request-ID"))
	}
}

func TestReadyWithoutDatabase(t *testing.T) {
	srv := NewServer(ServerConfig{}, &fakeRunner{}, nil, nil, nil)
	defer srv.rateLimiter.Stop()

	rr := do(t, srv, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestApplyInterest_Authorization(t *testing.T) {
	runner := &fakeRunner{summary: services.RunSummary{Total: 1, Applied: 1}}
	srv := NewServer(ServerConfig{CronSecret: "s3cret"}, runner, nil, nil, nil)
	defer srv.rateLimiter.Stop()

	tests := []struct {
		name       string
		method     string
		auth       string
		wantStatus int
	}{
		{name: "missing header", method: http.MethodPost, wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", method: http.MethodPost, auth: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "bare secret", method: http.MethodGet, auth: "s3cret", wantStatus: http.StatusUnauthorized},
		{name: "post with secret", method: http.MethodPost, auth: "Bearer s3cret", wantStatus: http.StatusOK},
		{name: "get with secret", method: http.MethodGet, auth: "Bearer s3cret", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.auth != "" {
				headers["Authorization"] = tt.auth
			}
			rr := do(t, srv, tt.method, "/cron/apply-interest", "", headers)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			body := decode(t, rr)
			if tt.wantStatus == http.StatusUnauthorized && body["error"] != "Unauthorized" {
				t.Errorf("body = %v", body)
			}
			if tt.wantStatus == http.StatusOK && body["success"] != true {
				t.Errorf("body = %v", body)
			}
		})
	}

	if runner.calls != 2 {
		t.Errorf("runner called %d times, want 2", runner.calls)
	}
}

func TestApplyInterest_Failures(t *testing.T) {
	tests := []struct {
		name      string
		runner    *fakeRunner
		wantError string
	}{
		{
			name:      "run could not start",
			runner:    &fakeRunner{err: errors.New("list debts: database is locked")},
			wantError: "list debts: database is locked",
		},
		{
			name: "one debt failed",
			runner: &fakeRunner{summary: services.RunSummary{
				Total:   2,
				Applied: 1,
				Failed:  []services.DebtFailure{{DebtID: "d2", Error: "disk I/O error"}},
			}},
			wantError: "1 of 2 debts failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(ServerConfig{}, tt.runner, nil, nil, nil)
			defer srv.rateLimiter.Stop()

			rr := do(t, srv, http.MethodPost, "/cron/apply-interest", "", nil)
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d", rr.Code)
			}
			body := decode(t, rr)
			if body["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", body["error"], tt.wantError)
			}
			if _, ok := body["summary"].(map[string]any); !ok {
				t.Errorf("summary missing: %v", body)
			}
		})
	}
}

func TestInternalAPI_DebtLifecycle(t *testing.T) {
	srv, repo := newTestServer(t, ServerConfig{CronSecret: "s3cret"})
	user := map[string]string{"Authorization": "Bearer s3cret", HeaderUserID: "user-1"}

	// Missing user header.
	rr := do(t, srv, http.MethodPost, "/internal/debts", `{}`, map[string]string{"Authorization": "Bearer s3cret"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user, got %d", rr.Code)
	}

	// Validation error.
	rr = do(t, srv, http.MethodPost, "/internal/debts",
		`{"name":"  ","apr":"0.12","balance":"1000","min_payment":"50","payment_frequency":"monthly"}`, user)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty name, got %d (%s)", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodPost, "/internal/debts",
		`{"name":"Visa","apr":"0.12","balance":"1000","min_payment":"50","payment_frequency":"monthly"}`, user)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode(t, rr)
	debtID, _ := created["id"].(string)
	if debtID == "" || created["balance"] != "1000.00" || created["monthly_payment"] != "50.00" {
		t.Fatalf("unexpected debt %v", created)
	}

	bills, err := repo.ListLinkedBills(context.Background(), debtID)
	if err != nil || len(bills) != 1 {
		t.Fatalf("linked bills: %v, %v", bills, err)
	}

	// Pay 100 on 5 March: balance drops to 900 and March is stamped.
	rr = do(t, srv, http.MethodPost, "/internal/bills/"+bills[0].ID+"/paid", "amount=100&paid_on=2025-03-05", user)
	if rr.Code != http.StatusOK {
		t.Fatalf("pay status=%d body=%s", rr.Code, rr.Body.String())
	}
	paid := decode(t, rr)
	if paid["paid"] != true || paid["amount_paid"] != "100.00" || paid["paid_month"] != "2025-03-01" {
		t.Fatalf("unexpected bill %v", paid)
	}

	// Accrue March: 900 + 9.00 interest - 100 payments.
	rr = do(t, srv, http.MethodPost, "/cron/apply-interest", "", user)
	if rr.Code != http.StatusOK {
		t.Fatalf("accrual status=%d body=%s", rr.Code, rr.Body.String())
	}
	summary := decode(t, rr)["summary"].(map[string]any)
	if summary["applied"] != float64(1) {
		t.Fatalf("summary = %v", summary)
	}

	// Second trigger in the same month is a no-op.
	rr = do(t, srv, http.MethodPost, "/cron/apply-interest", "", user)
	summary = decode(t, rr)["summary"].(map[string]any)
	if rr.Code != http.StatusOK || summary["applied"] != float64(0) || summary["skipped"] != float64(1) {
		t.Fatalf("second run status=%d summary=%v", rr.Code, summary)
	}

	rr = do(t, srv, http.MethodGet, "/internal/debts/"+debtID+"/snapshots", "", user)
	if rr.Code != http.StatusOK {
		t.Fatalf("snapshots status=%d", rr.Code)
	}
	snaps := decode(t, rr)["snapshots"].([]any)
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %v", snaps)
	}
	snap := snaps[0].(map[string]any)
	if snap["balance_before"] != "900.00" || snap["interest_applied"] != "9.00" ||
		snap["payments_applied"] != "100.00" || snap["balance_after"] != "809.00" {
		t.Fatalf("unexpected snapshot %v", snap)
	}

	// Another user cannot see or change the debt.
	other := map[string]string{"Authorization": "Bearer s3cret", HeaderUserID: "user-2"}
	rr = do(t, srv, http.MethodGet, "/internal/debts/"+debtID+"/snapshots", "", other)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("other user status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodPut, "/internal/debts/"+debtID,
		`{"name":"Visa Gold","apr":"0.18","balance":"809","min_payment":"25","payment_frequency":"weekly"}`, user)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if updated := decode(t, rr); updated["name"] != "Visa Gold" || updated["monthly_payment"] != "108.25" {
		t.Fatalf("unexpected update %v", updated)
	}

	rr = do(t, srv, http.MethodDelete, "/internal/debts/"+debtID, "", user)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodDelete, "/internal/debts/"+debtID, "", user)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", rr.Code)
	}
}

func TestInternalAPI_BadPayment(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})
	user := map[string]string{HeaderUserID: "user-1"}

	rr := do(t, srv, http.MethodPost, "/internal/bills/unknown/paid", `{"amount":"abc"}`, user)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad amount status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodPost, "/internal/bills/unknown/paid", `{"amount":"10"}`, user)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown bill status=%d", rr.Code)
	}
}

func TestRateLimitOnMutatingRequests(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{RateLimitPerMinute: 1})

	if rr := do(t, srv, http.MethodPost, "/cron/apply-interest", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("first trigger status=%d", rr.Code)
	}
	rr := do(t, srv, http.MethodPost, "/cron/apply-interest", "", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second trigger status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}

	// Reads are not limited.
	for i := 0; i < 3; i++ {
		if rr := do(t, srv, http.MethodGet, "/healthz", "", nil); rr.Code != http.StatusOK {
			t.Fatalf("healthz status=%d", rr.Code)
		}
	}
}
