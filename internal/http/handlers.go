package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).String(),
	}).Write(w)
}

// handleReady verifies the store is reachable
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.deps.Ready != nil {
		if err := s.deps.Ready(ctx); err != nil {
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.LimitedHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.startedAt).Seconds())
}

// writeError maps err to a status; unexpected errors are logged with the
// operation that produced them.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	b, known := FromError(err)
	logger := log.FromContext(r.Context())
	if known {
		logger.WarnContext(r.Context(), "Request rejected",
			log.FieldOperation, op,
			log.FieldPath, r.URL.Path,
			log.FieldError, err.Error())
	} else {
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithErrorType(log.ErrorTypeInternal).WithPlan(r.PathValue("planID"), r.PathValue("debtID")))
	}
	b.RequestID(trace.GetRequestID(r.Context())).Write(w)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	BadRequestError(err.Error()).RequestID(trace.GetRequestID(r.Context())).Write(w)
}

func (s *Server) handleDebtSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := services.DefaultSummaryOptions()
	var err error
	if opts.IncludeExpenseDebts, err = ParseBoolParam(query, "expenseDebts", true); err != nil {
		s.badRequest(w, r, err)
		return
	}
	if opts.EnsureSynced, err = ParseBoolParam(query, "sync", true); err != nil {
		s.badRequest(w, r, err)
		return
	}

	summary, err := s.deps.Summary.GetDebtSummaryForPlan(r.Context(), r.PathValue("planID"), opts)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(newDebtSummaryView(summary)).Write(w)
}

func (s *Server) handleDebtPlan(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	plan, err := s.deps.DebtPlan.GetMonthlyDebtPlan(r.Context(), r.PathValue("planID"), params.Year, params.Month)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(newDebtPlanView(plan)).Write(w)
}

func (s *Server) handleZeroBased(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	now := s.now()
	month := query.Get("month")
	if month == "" {
		month = strconv.Itoa(int(now.Month()))
	}
	year, err := ParseOptionalInt(query, "year")
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	summary, err := s.deps.ZeroBased.GetZeroBasedSummary(r.Context(), r.PathValue("planID"), month, year, now)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(newZeroBasedView(summary)).Write(w)
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	planned, err := ParseNonNegativeFloat(query, "planned")
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	maxMonths, err := ParseOptionalInt(query, "maxMonths")
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	planID, debtID := r.PathValue("planID"), r.PathValue("debtID")
	debt, err := s.deps.Debts.GetDebt(r.Context(), debtID)
	if err == nil && debt.PlanID != planID {
		err = fmt.Errorf("debt %s in plan %s: %w", debtID, planID, core.ErrNotFound)
	}
	if err != nil {
		s.writeError(w, r, log.OpProject, err)
		return
	}

	params := services.ProjectionParamsFromDebt(debt, planned)
	params.MaxMonths = s.config.ProjectionMaxMonths
	if maxMonths != nil && *maxMonths > 0 && *maxMonths < params.MaxMonths {
		params.MaxMonths = *maxMonths
	}
	params.Now = s.now()

	NewJSONResponse().Body(s.deps.Projections.Compute(params)).Write(w)
}

func (s *Server) handleDebtPayment(w http.ResponseWriter, r *http.Request) {
	planID, debtID := r.PathValue("planID"), r.PathValue("debtID")
	req, err := ParseDebtPaymentRequest(r, planID, debtID)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	payment, err := s.deps.Payments.RecordDebtPayment(r.Context(), req)
	if err != nil {
		s.writeError(w, r, log.OpPay, err)
		return
	}

	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogPaymentRecorded(r.Context(), planID, debtID, payment.Amount.Cents, string(payment.Source))
	NewJSONResponse().Status(http.StatusCreated).Body(newPaymentView(payment)).Write(w)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	planID := r.PathValue("planID")
	mode, err := s.deps.Sync.RequestSync(r.Context(), planID)
	if err != nil {
		s.writeError(w, r, log.OpSync, err)
		return
	}

	status := http.StatusOK
	if mode == services.SyncQueued {
		status = http.StatusAccepted
	}
	NewJSONResponse().Status(status).Body(syncView{PlanID: planID, Mode: string(mode)}).Write(w)
}
