package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/log"
	"cashflow/internal/middleware/ratelimit"
	"cashflow/internal/middleware/security"
	"cashflow/internal/middleware/trace"
	"cashflow/internal/services"
)

// AccrualRunner runs one interest accrual pass.
type AccrualRunner interface {
	Run(ctx context.Context, now time.Time) (services.RunSummary, error)
}

type DebtManager interface {
	CreateDebt(ctx context.Context, userID string, in services.DebtInput) (core.Debt, error)
	UpdateDebt(ctx context.Context, userID, debtID string, in services.DebtInput) (core.Debt, error)
	DeleteDebt(ctx context.Context, userID, debtID string) error
	ListSnapshots(ctx context.Context, userID, debtID string) ([]core.DebtMonthlySnapshot, error)
}

type BillPayer interface {
	SetPaid(ctx context.Context, userID, billID string, in services.PaymentInput) (core.Bill, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type ServerConfig struct {
	Addr               string
	CronSecret         string
	RateLimitPerMinute int
	// Location interprets paid_on dates; it should match the accrual job's.
	Location *time.Location
	// RunTimeout bounds one triggered accrual run (default 5 minutes).
	RunTimeout time.Duration
}

type Server struct {
	http.Server

	accrual AccrualRunner
	debts   DebtManager
	bills   BillPayer
	db      Pinger
	config  ServerConfig

	logger           *log.Logger
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	startedAt    time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. debts, bills and db may be nil, in
// which case their routes answer 503.
func NewServer(config ServerConfig, accrual AccrualRunner, debts DebtManager, bills BillPayer, db Pinger) *Server {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 5 * time.Minute
	}

	logger := log.Default(log.ComponentHTTP)
	detector := security.NewDetector()

	s := &Server{
		accrual:          accrual,
		debts:            debts,
		bills:            bills,
		db:               db,
		config:           config,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: config.RateLimitPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		startedAt:        time.Now(),
		now:              time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /cron/apply-interest", s.handleApplyInterest)
	mux.HandleFunc("GET /cron/apply-interest", s.handleApplyInterest)

	mux.HandleFunc("POST /internal/debts", s.requireUser(s.handleCreateDebt))
	mux.HandleFunc("PUT /internal/debts/{id}", s.requireUser(s.handleUpdateDebt))
	mux.HandleFunc("DELETE /internal/debts/{id}", s.requireUser(s.handleDeleteDebt))
	mux.HandleFunc("GET /internal/debts/{id}/snapshots", s.requireUser(s.handleListSnapshots))
	mux.HandleFunc("POST /internal/bills/{id}/paid", s.requireUser(s.handleSetBillPaid))

	var handler http.Handler = mux
	handler = s.withRateLimit(handler)
	handler = s.withSuspiciousRequestLogging(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              config.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      config.RunTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// withRateLimit limits mutating requests per client address.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

func (s *Server) withSuspiciousRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(), "Suspicious request detected",
				log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// requireUser enforces the bearer secret and the X-User-ID header.
func (s *Server) requireUser(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !bearerMatches(r, s.config.CronSecret) {
			UnauthorizedError().Write(w)
			return
		}
		userID := userIDFrom(r)
		if userID == "" {
			UnauthorizedError().Write(w)
			return
		}
		next(w, r, userID)
	}
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
