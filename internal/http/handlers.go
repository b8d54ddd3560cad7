package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cashflow/internal/log"
	"cashflow/internal/services"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Field("status", "ok").
		Field("timestamp", s.now().UTC().Format(time.RFC3339)).
		Field("uptime", time.Since(s.startedAt).Round(time.Second).String()).
		Write(w)
}

// handleReady reports whether the database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	switch {
	case s.db == nil:
		checks["database"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	default:
		if err := s.db.Ping(ctx); err != nil {
			checks["database"] = fmt.Sprintf("failed: %v", err)
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().
		Status(httpStatus).
		Field("status", status).
		Field("timestamp", s.now().UTC().Format(time.RFC3339)).
		Field("checks", checks).
		Write(w)
}

// handleMetrics writes counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	traceMetrics := s.traceMiddleware.GetMetrics()

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", s.rateLimiter.Hits())

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", s.securityDetector.SuspiciousRequests())

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", s.rateLimiter.ActiveClients())

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.startedAt).Seconds())
}

// handleApplyInterest runs the monthly accrual. Re-triggering within a month
// is safe: already-accrued debts are skipped.
func (s *Server) handleApplyInterest(w http.ResponseWriter, r *http.Request) {
	if !bearerMatches(r, s.config.CronSecret) {
		log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(), "Unauthorized accrual trigger",
			log.FieldClientIP, s.securityDetector.ExtractClientIP(r))
		UnauthorizedError().Write(w)
		return
	}

	// A dropped scheduler connection must not abort a run halfway.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.config.RunTimeout)
	defer cancel()

	summary, err := s.accrual.Run(ctx, s.now())
	if summary.Failed == nil {
		summary.Failed = []services.DebtFailure{}
	}

	logger := log.FromContext(r.Context()).WithComponent(log.ComponentAccrual)
	switch {
	case err != nil:
		logger.ErrorContext(r.Context(), "Accrual run failed", log.FieldError, err)
		InternalServerError(err.Error()).Field("summary", summary).Write(w)
	case summary.HasFailures():
		InternalServerError(fmt.Sprintf("%d of %d debts failed", len(summary.Failed), summary.Total)).
			Field("summary", summary).
			Write(w)
	default:
		NewJSONResponse().Field("success", true).Field("summary", summary).Write(w)
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, public := errorStatus(err)
	logger := log.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), msg, log.FieldError, err, log.FieldPath, r.URL.Path)
	} else {
		logger.DebugContext(r.Context(), msg, log.FieldError, err, log.FieldPath, r.URL.Path)
	}
	ErrorResponse(status, public).Write(w)
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request, userID string) {
	if s.debts == nil {
		ErrorResponse(http.StatusServiceUnavailable, "Debts not available").Write(w)
		return
	}
	in, err := DecodeDebtInput(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	debt, err := s.debts.CreateDebt(r.Context(), userID, in)
	if err != nil {
		s.writeServiceError(w, r, "Create debt failed", err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/internal/debts/"+debt.ID).
		Body(toDebtResponse(debt)).
		Write(w)
}

func (s *Server) handleUpdateDebt(w http.ResponseWriter, r *http.Request, userID string) {
	if s.debts == nil {
		ErrorResponse(http.StatusServiceUnavailable, "Debts not available").Write(w)
		return
	}
	in, err := DecodeDebtInput(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	debt, err := s.debts.UpdateDebt(r.Context(), userID, r.PathValue("id"), in)
	if err != nil {
		s.writeServiceError(w, r, "Update debt failed", err)
		return
	}
	NewJSONResponse().Body(toDebtResponse(debt)).Write(w)
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request, userID string) {
	if s.debts == nil {
		ErrorResponse(http.StatusServiceUnavailable, "Debts not available").Write(w)
		return
	}
	if err := s.debts.DeleteDebt(r.Context(), userID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, "Delete debt failed", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request, userID string) {
	if s.debts == nil {
		ErrorResponse(http.StatusServiceUnavailable, "Debts not available").Write(w)
		return
	}
	snaps, err := s.debts.ListSnapshots(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "List snapshots failed", err)
		return
	}
	NewJSONResponse().Field("snapshots", toSnapshotResponses(snaps)).Write(w)
}

func (s *Server) handleSetBillPaid(w http.ResponseWriter, r *http.Request, userID string) {
	if s.bills == nil {
		ErrorResponse(http.StatusServiceUnavailable, "Bills not available").Write(w)
		return
	}
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request body").Write(w)
		return
	}
	in, err := ParsePaymentInput(parser, s.config.Location)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	bill, err := s.bills.SetPaid(r.Context(), userID, r.PathValue("id"), in)
	if err != nil {
		s.writeServiceError(w, r, "Set bill paid failed", err)
		return
	}
	NewJSONResponse().Body(toBillResponse(bill)).Write(w)
}
