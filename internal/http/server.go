package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/ledger"
	"bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
)

// Dependencies are the services the handlers call.
type Dependencies struct {
	Debts       ledger.DebtStore
	Summary     *services.DebtSummaryService
	DebtPlan    *services.DebtPlanService
	ZeroBased   *services.ZeroBasedService
	Payments    *services.PaymentService
	Sync        *services.SyncService
	Projections *services.ProjectionCache

	// Ready reports whether the backing store is reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// Config holds the server knobs taken from the application config.
type Config struct {
	Addr                string
	RateLimitPerMinute  int
	ProjectionMaxMonths int
}

type Server struct {
	http.Server
	deps   Dependencies
	config Config
	logger *log.Logger
	now    func() time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	startedAt        time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(config Config, deps Dependencies, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if config.ProjectionMaxMonths <= 0 {
		config.ProjectionMaxMonths = services.DefaultProjectionMaxMonths
	}

	s := &Server{
		deps:      deps,
		config:    config,
		logger:    logger.WithComponent(log.ComponentHTTP),
		now:       time.Now,
		startedAt: time.Now(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: config.RateLimitPerMinute,
		}),
		securityDetector: security.NewDetector(),
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP).
		OnComplete(func(ctx context.Context, r *http.Request, status int, durationMs int64, clientIP string) {
			log.NewStructuredLogger(s.logger.With(log.FieldRequestID, trace.GetRequestID(ctx))).
				LogHTTPEnd(ctx, r, status, durationMs, clientIP)
		})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/plans/{planID}/debts/summary", s.handleDebtSummary)
	mux.HandleFunc("GET /api/plans/{planID}/debts/plan", s.handleDebtPlan)
	mux.HandleFunc("GET /api/plans/{planID}/budget/zero-based", s.handleZeroBased)
	mux.HandleFunc("GET /api/plans/{planID}/debts/{debtID}/projection", s.handleProjection)
	mux.HandleFunc("POST /api/plans/{planID}/debts/{debtID}/payments", s.handleDebtPayment)
	mux.HandleFunc("POST /api/plans/{planID}/sync", s.handleSync)

	s.Server = http.Server{
		Addr:              config.Addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// middleware wraps the mux; the first entry is the outermost.
func (s *Server) middleware(h http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{
		s.traceMiddleware.Middleware,
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.securityDetector.Middleware,
		s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.writeRateLimited),
		log.Middleware(s.logger),
		log.RequestIDMiddleware(trace.RequestIDFromRequest),
	}
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, try again later").
		RequestID(trace.GetRequestID(r.Context())).
		Write(w)
}

// Shutdown stops the rate limiter and drains the HTTP server; safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
