package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"SynthLoans/internal/engine"
	"SynthLoans/internal/fixed"
	"SynthLoans/internal/guard"
	"SynthLoans/internal/loan"
	"SynthLoans/internal/manager"
	"SynthLoans/internal/observability"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes the read API and the admin surface over HTTP/JSON.
// All state reads go through the ledger lock, so responses are always
// a consistent snapshot.
type Server struct {
	engines map[string]*engine.Engine
	manager *manager.Manager
	guard   *guard.Static
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(engines map[string]*engine.Engine, mgr *manager.Manager, g *guard.Static, health *observability.HealthChecker, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{
		engines: engines,
		manager: mgr,
		guard:   g,
		health:  health,
		metrics: metrics,
		log:     log,
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/v1/engines/{engine}/loans", s.handleOpenLoans).Methods(http.MethodGet)
	r.HandleFunc("/v1/engines/{engine}/accounts/{account}/loans", s.handleAccountLoans).Methods(http.MethodGet)
	r.HandleFunc("/v1/engines/{engine}/accounts/{account}/loans/{id}", s.handleLoan).Methods(http.MethodGet)
	r.HandleFunc("/v1/aggregates", s.handleAggregates).Methods(http.MethodGet)
	r.HandleFunc("/v1/debt", s.handleDebt).Methods(http.MethodGet)
	r.HandleFunc("/v1/params", s.handleParams).Methods(http.MethodGet)

	r.HandleFunc("/v1/admin/params", s.handleSetParams).Methods(http.MethodPost)
	r.HandleFunc("/v1/admin/pause", s.handlePause).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.health.ReadinessHandler).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

func (s *Server) handleOpenLoans(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engines[mux.Vars(r)["engine"]]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown engine")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": loansPayload(eng.OpenLoans())})
}

func (s *Server) handleAccountLoans(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	eng, ok := s.engines[vars["engine"]]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown engine")
		return
	}
	account, err := uuid.Parse(vars["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": loansPayload(eng.AccountLoans(account))})
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	eng, ok := s.engines[vars["engine"]]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown engine")
		return
	}
	account, err := uuid.Parse(vars["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	l := eng.Loan(account, id)
	if l == nil {
		writeError(w, http.StatusNotFound, "loan not found")
		return
	}
	writeJSON(w, http.StatusOK, loanPayload(l))
}

func (s *Server) handleAggregates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"aggregates": s.manager.AggregateSnapshot(),
	})
}

func (s *Server) handleDebt(w http.ResponseWriter, r *http.Request) {
	long, longStale := s.manager.TotalLong()
	short, shortStale := s.manager.TotalShort()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_long":  long,
		"total_short": short,
		"stale":       longStale || shortStale,
		"max_debt":    s.manager.MaxDebt(),
	})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	params := s.manager.Params()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"base_borrow_rate":       params.BaseBorrowRate,
		"base_short_rate":        params.BaseShortRate,
		"utilisation_multiplier": params.UtilisationMultiplier,
		"max_debt":               s.manager.MaxDebt(),
	})
}

type setParamsRequest struct {
	Caller                uuid.UUID  `json:"caller"`
	MaxDebt               *fixed.Dec `json:"max_debt"`
	BaseBorrowRate        *fixed.Dec `json:"base_borrow_rate"`
	BaseShortRate         *fixed.Dec `json:"base_short_rate"`
	UtilisationMultiplier *fixed.Dec `json:"utilisation_multiplier"`
}

func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	var req setParamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	apply := func(err error) bool {
		if err != nil {
			writeDomainError(w, err)
			return false
		}
		return true
	}

	if req.MaxDebt != nil && !apply(s.manager.SetMaxDebt(req.Caller, *req.MaxDebt)) {
		return
	}
	if req.BaseBorrowRate != nil && !apply(s.manager.SetBaseBorrowRate(req.Caller, *req.BaseBorrowRate)) {
		return
	}
	if req.BaseShortRate != nil && !apply(s.manager.SetBaseShortRate(req.Caller, *req.BaseShortRate)) {
		return
	}
	if req.UtilisationMultiplier != nil && !apply(s.manager.SetUtilisationMultiplier(req.Caller, *req.UtilisationMultiplier)) {
		return
	}

	s.log.Info().Str("caller", req.Caller.String()).Msg("parameters updated")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pauseRequest struct {
	Caller uuid.UUID `json:"caller"`
	Paused bool      `json:"paused"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.guard.IsAdmin(req.Caller) {
		writeError(w, http.StatusForbidden, "unauthorized")
		return
	}

	s.guard.SetPaused(req.Paused)
	s.log.Info().Bool("paused", req.Paused).Str("caller", req.Caller.String()).Msg("pause flag changed")
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

// --- payloads ---

type loanResponse struct {
	ID              uint64    `json:"id"`
	Account         uuid.UUID `json:"account"`
	Collateral      fixed.Dec `json:"collateral"`
	Currency        string    `json:"currency"`
	Principal       fixed.Dec `json:"principal"`
	AccruedInterest fixed.Dec `json:"accrued_interest"`
	Debt            fixed.Dec `json:"debt"`
	LastInteraction int64     `json:"last_interaction"`
	IsShort         bool      `json:"is_short"`
	Open            bool      `json:"open"`
}

func loanPayload(l *loan.Loan) loanResponse {
	return loanResponse{
		ID:              l.ID,
		Account:         l.Account,
		Collateral:      l.Collateral,
		Currency:        l.Currency,
		Principal:       l.Principal,
		AccruedInterest: l.AccruedInterest,
		Debt:            l.Debt(),
		LastInteraction: l.LastInteraction,
		IsShort:         l.IsShort,
		Open:            l.Open,
	}
}

func loansPayload(loans []*loan.Loan) []loanResponse {
	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, loanPayload(l))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, loan.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, loan.ErrLoanNotFound):
		status = http.StatusNotFound
	}
	writeError(w, status, err.Error())
}
