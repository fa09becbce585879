package main

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stealth-launch/internal/auth"
	"stealth-launch/internal/domain"
	"stealth-launch/internal/executor"
	"stealth-launch/internal/launch"
	"stealth-launch/internal/observability"
	"stealth-launch/internal/venue"
)

// API exposes the orchestrator over HTTP. Every launch route is
// authenticated; the owner principal comes from the session token subject.
type API struct {
	service  *launch.Service
	verifier *auth.Verifier
	limits   *limiterRegistry
	metrics  *observability.Metrics
	logger   *log.Logger
}

// limiterRegistry hands out a token bucket per principal+route pair.
type limiterRegistry struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func newLimiterRegistry(perMinute int, burst int) *limiterRegistry {
	return &limiterRegistry{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
	}
}

func (r *limiterRegistry) allow(principal, route string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := principal + "|" + route
	lim, ok := r.buckets[key]
	if !ok {
		lim = rate.NewLimiter(r.limit, r.burst)
		r.buckets[key] = lim
	}
	return lim.Allow()
}

// Routes registers all endpoints on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /launch", a.authed("launch", a.handleCreate))
	mux.HandleFunc("GET /launch", a.authed("launch", a.handleList))
	mux.HandleFunc("GET /launch/{id}", a.authed("launch", a.handleGet))
	mux.HandleFunc("GET /launch/{id}/transitions", a.authed("launch", a.handleTransitions))
	mux.HandleFunc("POST /launch/{id}/withdraw", a.authed("withdraw", a.handleWithdraw))
	mux.HandleFunc("POST /launch/{id}/create", a.authed("create", a.handleCreateOnVenue))
	mux.HandleFunc("POST /launch/{id}/sell", a.authed("sell", a.handleSell))
	mux.HandleFunc("POST /launch/{id}/claim", a.authed("claim", a.handleClaimAndReturn))
	mux.HandleFunc("POST /launch/{id}/complete", a.authed("complete", a.handleComplete))
	mux.HandleFunc("GET /wallet", a.authed("wallet", a.handleWallet))
}

// authed wraps a handler with session verification and per-principal rate
// limiting. The route label feeds both the limiter and the request metrics.
func (a *API) authed(route string, next func(w http.ResponseWriter, r *http.Request, ownerID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := a.verifier.FromRequest(r)
		if err != nil {
			a.reject(w, route, "unauthorized", http.StatusUnauthorized, "invalid or missing session token")
			return
		}
		if !a.limits.allow(ownerID, route) {
			a.reject(w, route, "rate_limited", http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(&statusRecorder{ResponseWriter: w, route: route, metrics: a.metrics}, r, ownerID)
	}
}

func (a *API) reject(w http.ResponseWriter, route, reason string, status int, msg string) {
	if a.metrics != nil {
		a.metrics.RequestsRejected.WithLabelValues(route, reason).Inc()
	}
	writeError(w, status, msg)
}

// statusRecorder counts responses by route and status class.
type statusRecorder struct {
	http.ResponseWriter
	route   string
	metrics *observability.Metrics
	done    bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.done {
		s.done = true
		if s.metrics != nil {
			var class string
			switch {
			case code < 300:
				class = "2xx"
			case code < 400:
				class = "3xx"
			case code < 500:
				class = "4xx"
			default:
				class = "5xx"
			}
			s.metrics.RequestsTotal.WithLabelValues(s.route, class).Inc()
		}
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if !s.done {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(p)
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps orchestrator errors onto HTTP statuses. Stage-tagged
// errors surface the failing stage so callers can tell a claim failure from a
// return failure.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var stage *launch.StageError
	if errors.As(err, &stage) {
		a.logger.Printf("stage %s failed: %v", stage.Stage, err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: describeExecError(stage.Err), Stage: stage.Stage})
		return
	}

	switch {
	case errors.Is(err, launch.ErrNotFound):
		writeError(w, http.StatusNotFound, "launch not found")
	case errors.Is(err, launch.ErrAmountBelowMinimum),
		errors.Is(err, launch.ErrInvalidPercent),
		errors.Is(err, launch.ErrIncompleteMetadata),
		errors.Is(err, launch.ErrMintUnresolved),
		errors.Is(err, launch.ErrNoLaunchWallet):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, launch.ErrMintAlreadySet),
		errors.Is(err, launch.ErrNotWithdrawn),
		errors.Is(err, launch.ErrNoTokensToSell),
		errors.Is(err, launch.ErrInsufficientBalance),
		errors.Is(err, launch.ErrConcurrentTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		a.logger.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type createLaunchRequest struct {
	AmountSOL float64              `json:"amount_sol"`
	Metadata  domain.TokenMetadata `json:"metadata"`
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req createLaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AmountSOL <= 0 || math.IsNaN(req.AmountSOL) || math.IsInf(req.AmountSOL, 0) {
		writeError(w, http.StatusBadRequest, "amount_sol must be a positive number")
		return
	}
	lamports := uint64(req.AmountSOL * launch.LamportsPerSOL)

	start := time.Now()
	result, err := a.service.Create(r.Context(), ownerID, lamports, req.Metadata)
	a.observe("create", start, err)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request, ownerID string) {
	recs, err := a.service.List(r.Context(), ownerID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"launches": recs})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request, ownerID string) {
	rec, err := a.service.Get(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleTransitions(w http.ResponseWriter, r *http.Request, ownerID string) {
	events, err := a.service.Transitions(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []*domain.TransitionEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": events})
}

func (a *API) handleWithdraw(w http.ResponseWriter, r *http.Request, ownerID string) {
	start := time.Now()
	result, err := a.service.Withdraw(r.Context(), ownerID, r.PathValue("id"))
	a.observe("withdraw", start, err)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCreateOnVenue(w http.ResponseWriter, r *http.Request, ownerID string) {
	start := time.Now()
	result, err := a.service.CreateOnVenue(r.Context(), ownerID, r.PathValue("id"))
	a.observe("create_on_venue", start, err)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type sellRequest struct {
	Percent float64 `json:"percent"`
	Mint    string  `json:"mint,omitempty"`
}

func (a *API) handleSell(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start := time.Now()
	result, err := a.service.Sell(r.Context(), ownerID, r.PathValue("id"), req.Percent, req.Mint)
	a.observe("sell", start, err)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleClaimAndReturn(w http.ResponseWriter, r *http.Request, ownerID string) {
	start := time.Now()
	result, err := a.service.ClaimAndReturn(r.Context(), ownerID, r.PathValue("id"))
	a.observe("claim_and_return", start, err)
	if err != nil {
		// A claim may have settled before the failure; surface the partial
		// result alongside the error.
		var stage *launch.StageError
		if result != nil && errors.As(err, &stage) {
			a.logger.Printf("stage %s failed after claim: %v", stage.Stage, err)
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":              describeExecError(stage.Err),
				"stage":              stage.Stage,
				"claim_tx_signature": result.ClaimTxSignature,
			})
			return
		}
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type completeRequest struct {
	TxSignature string `json:"tx_signature,omitempty"`
	MintAddress string `json:"mint_address,omitempty"`
}

func (a *API) handleComplete(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TxSignature == "" && req.MintAddress == "" {
		writeError(w, http.StatusBadRequest, "tx_signature or mint_address required")
		return
	}

	if err := a.service.Complete(r.Context(), ownerID, r.PathValue("id"), req.TxSignature, req.MintAddress); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "launched"})
}

func (a *API) handleWallet(w http.ResponseWriter, r *http.Request, ownerID string) {
	address, balance, err := a.service.PlatformWallet(r.Context(), ownerID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":          address,
		"balance_lamports": balance,
	})
}

func (a *API) observe(operation string, start time.Time, err error) {
	if a.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	a.metrics.RecordOperation(operation, outcome)
	a.metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// describeExecError condenses executor failures for log lines; the full
// simulation logs stay out of responses.
func describeExecError(err error) string {
	var sim *executor.SimulateFailedError
	if errors.As(err, &sim) {
		return "simulation failed"
	}
	var send *executor.SendFailedError
	if errors.As(err, &send) {
		return "submission failed"
	}
	var portal *venue.PortalError
	if errors.As(err, &portal) {
		return "venue portal error"
	}
	return err.Error()
}
