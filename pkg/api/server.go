// Package api exposes the governance service over HTTP. Authentication is
// an upstream concern: the caller's identity arrives as the X-User-Id
// header, and admin rights are checked against the user directory.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/realumlabs/realum-dao/pkg/governance"
)

// UserIDHeader carries the authenticated caller's id, set by the upstream
// gateway.
const UserIDHeader = "X-User-Id"

// Server represents the governance web server instance.
type Server struct {
	service  *governance.Service
	logger   *slog.Logger
	registry *prometheus.Registry
	router   *mux.Router
	server   *http.Server

	requests *prometheus.CounterVec
}

// NewServer creates a new web server for the governance service.
func NewServer(
	service *governance.Service,
	logger *slog.Logger,
	registry *prometheus.Registry,
	addr string,
) *Server {
	s := &Server{
		service:  service,
		logger:   logger,
		registry: registry,
		router:   mux.NewRouter(),
	}
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realum_http_requests_total",
		Help: "Total HTTP requests by route, method and status code",
	}, []string{"route", "method", "code"})
	if registry != nil {
		registry.MustRegister(s.requests)
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// enableCORS enables CORS for all routes
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(enableCORS)
	s.router.Use(s.countRequests)

	// Proposal routes
	s.router.HandleFunc("/api/proposals", s.createProposal).Methods("POST")
	s.router.HandleFunc("/api/proposals", s.listProposals).Methods("GET")
	s.router.HandleFunc("/api/proposals/{id}", s.getProposal).Methods("GET")
	s.router.HandleFunc("/api/proposals/{id}/vote", s.castVote).Methods("POST")
	s.router.HandleFunc("/api/proposals/{id}/quadratic-vote", s.castQuadraticVote).Methods("POST")
	s.router.HandleFunc("/api/proposals/{id}/finalize", s.finalizeProposal).Methods("POST")
	s.router.HandleFunc("/api/proposals/{id}/execute", s.executeProposal).Methods("POST")

	// Delegation routes
	s.router.HandleFunc("/api/delegations", s.createDelegation).Methods("POST")
	s.router.HandleFunc("/api/delegations", s.revokeDelegation).Methods("DELETE")
	s.router.HandleFunc("/api/delegations/status", s.getDelegationStatus).Methods("GET")

	// Treasury routes
	s.router.HandleFunc("/api/treasury", s.getTreasury).Methods("GET")
	s.router.HandleFunc("/api/treasury/allocations", s.allocateFunds).Methods("POST")

	// Governance parameters
	s.router.HandleFunc("/api/governance/parameters", s.getParameters).Methods("GET")

	// Health check
	s.router.HandleFunc("/api/health", s.getHealthCheck).Methods("GET")
}

// MetricsHandler returns the prometheus scrape handler for the server's
// registry, served on the dedicated metrics listener.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Router returns the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the web server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("web server listening", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

var kindStatus = map[governance.Kind]int{
	governance.KindPermissionDenied:  http.StatusForbidden,
	governance.KindNotFound:          http.StatusNotFound,
	governance.KindInvalidState:      http.StatusConflict,
	governance.KindConflict:          http.StatusConflict,
	governance.KindInvalidArgument:   http.StatusBadRequest,
	governance.KindInsufficientFunds: http.StatusBadRequest,
	governance.KindInternal:          http.StatusInternalServerError,
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := governance.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	message := err.Error()
	if kind == governance.KindInternal {
		s.logger.Error("request failed", "error", err)
		message = "internal error"
	}
	s.writeJSON(w, status, map[string]any{
		"error": message,
		"code":  string(kind),
	})
}

// callerID extracts the authenticated user id from the request.
func callerID(r *http.Request) (string, error) {
	id := r.Header.Get(UserIDHeader)
	if id == "" {
		return "", &governance.Error{
			Kind:   governance.KindPermissionDenied,
			Reason: "missing " + UserIDHeader + " header",
		}
	}
	return id, nil
}

func (s *Server) getHealthCheck(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) getParameters(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Params())
}

func (s *Server) createProposal(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Title               string  `json:"title"`
		Description         string  `json:"description"`
		Type                string  `json:"proposal_type"`
		VotingMode          string  `json:"voting_mode"`
		BudgetRequest       float64 `json:"budget_request"`
		VotingDurationDays  int     `json:"voting_duration_days"`
		QuorumPercentage    float64 `json:"quorum_percentage"`
		ExecutionDelayHours int     `json:"execution_delay_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &governance.Error{
			Kind:   governance.KindInvalidArgument,
			Reason: "invalid request body",
		})
		return
	}
	proposal, err := s.service.CreateProposal(r.Context(), governance.CreateProposalRequest{
		ProposerID:          caller,
		Title:               req.Title,
		Description:         req.Description,
		Type:                governance.ProposalType(req.Type),
		VotingMode:          governance.VotingMode(req.VotingMode),
		BudgetRequest:       req.BudgetRequest,
		VotingDurationDays:  req.VotingDurationDays,
		QuorumPercentage:    req.QuorumPercentage,
		ExecutionDelayHours: req.ExecutionDelayHours,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"proposal_id":    proposal.ID,
		"status":         proposal.Status,
		"voting_ends_at": proposal.VotingEndsAt,
	})
}

func (s *Server) listProposals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := governance.ProposalFilter{
		Status:     governance.ProposalStatus(query.Get("status")),
		Type:       governance.ProposalType(query.Get("proposal_type")),
		ProposerID: query.Get("creator_id"),
	}
	var err error
	if v := query.Get("skip"); v != "" {
		if filter.Skip, err = strconv.Atoi(v); err != nil {
			s.writeError(w, &governance.Error{
				Kind:   governance.KindInvalidArgument,
				Reason: "invalid skip parameter",
			})
			return
		}
	}
	if v := query.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			s.writeError(w, &governance.Error{
				Kind:   governance.KindInvalidArgument,
				Reason: "invalid limit parameter",
			})
			return
		}
	}
	proposals, total, err := s.service.ListProposals(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"proposals": proposals,
		"total":     total,
	})
}

func (s *Server) getProposal(w http.ResponseWriter, r *http.Request) {
	detail, err := s.service.GetProposal(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"proposal":        detail.Proposal,
		"votes":           detail.Votes,
		"quadratic_votes": detail.QuadraticVotes,
		"participation":   detail.Participation,
	})
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Approve bool `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &governance.Error{
			Kind:   governance.KindInvalidArgument,
			Reason: "invalid request body",
		})
		return
	}
	receipt, err := s.service.CastVote(r.Context(), mux.Vars(r)["id"], caller, req.Approve)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"voting_power":   receipt.Power,
		"delegated_from": receipt.DelegatedFrom,
		"delegations":    len(receipt.DelegatedFrom),
	})
}

func (s *Server) castQuadraticVote(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Votes   int64 `json:"votes"`
		Approve bool  `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &governance.Error{
			Kind:   governance.KindInvalidArgument,
			Reason: "invalid request body",
		})
		return
	}
	receipt, err := s.service.CastQuadraticVote(r.Context(), mux.Vars(r)["id"], caller, req.Votes, req.Approve)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"votes": receipt.Votes,
		"cost":  receipt.Cost,
	})
}

func (s *Server) finalizeProposal(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Passed bool `json:"passed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &governance.Error{
			Kind:   governance.KindInvalidArgument,
			Reason: "invalid request body",
		})
		return
	}
	proposal, err := s.service.FinalizeProposal(r.Context(), mux.Vars(r)["id"], caller, req.Passed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id": proposal.ID,
		"status":      proposal.Status,
	})
}

func (s *Server) executeProposal(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	receipt, err := s.service.ExecuteProposal(r.Context(), mux.Vars(r)["id"], caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id":      receipt.ProposalID,
		"executed_at":      receipt.ExecutedAt,
		"allocation_id":    receipt.AllocationID,
		"allocated_amount": receipt.AllocatedAmount,
	})
}

func (s *Server) createDelegation(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		DelegateTo string     `json:"delegate_to"`
		Categories []string   `json:"categories"`
		ExpiresAt  *time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &governance.Error{
			Kind:   governance.KindInvalidArgument,
			Reason: "invalid request body",
		})
		return
	}
	categories := make([]governance.ProposalType, 0, len(req.Categories))
	for _, c := range req.Categories {
		categories = append(categories, governance.ProposalType(c))
	}
	delegation, err := s.service.Delegate(r.Context(), caller, req.DelegateTo, categories, req.ExpiresAt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"delegation_id": delegation.ID,
		"delegate_to":   delegation.DelegateTo,
	})
}

func (s *Server) revokeDelegation(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.service.RevokeDelegation(r.Context(), caller); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (s *Server) getDelegationStatus(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status, err := s.service.GetDelegationStatus(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"delegation":           status.Outgoing,
		"incoming_delegations": status.Incoming,
		"incoming_count":       status.IncomingCount,
		"incoming_power":       status.IncomingPower,
	})
}

func (s *Server) getTreasury(w http.ResponseWriter, r *http.Request) {
	balance, err := s.service.GetTreasuryBalance(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_balance":      balance.Treasury.TotalBalance,
		"allocated":          balance.Treasury.Allocated,
		"available":          balance.Treasury.Available,
		"recent_allocations": balance.Recent,
		"by_category":        balance.ByCategory,
	})
}

func (s *Server) allocateFunds(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Category      string  `json:"category"`
		Amount        float64 `json:"amount"`
		Description   string  `json:"description"`
		RecipientType string  `json:"recipient_type"`
		RecipientID   string  `json:"recipient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &governance.Error{
			Kind:   governance.KindInvalidArgument,
			Reason: "invalid request body",
		})
		return
	}
	allocation, err := s.service.AllocateFunds(r.Context(), governance.AllocateFundsRequest{
		Category:      req.Category,
		Amount:        req.Amount,
		Description:   req.Description,
		RecipientType: req.RecipientType,
		RecipientID:   req.RecipientID,
	}, caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"allocation_id": allocation.ID,
		"amount":        allocation.Amount,
		"category":      allocation.Category,
	})
}
