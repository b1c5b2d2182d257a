// Package api exposes the governance facade over HTTP. Every externally
// callable operation and read query has a JSON endpoint here; treasury
// withdrawal deliberately has none, since it is only reachable through
// proposal execution.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parolabs/governor/pkg/governance"
	"github.com/parolabs/governor/pkg/treasury"
)

// Server represents the governance HTTP server.
type Server struct {
	service  *governance.Service
	ledger   *treasury.Ledger
	router   *mux.Router
	server   *http.Server
	logger   *slog.Logger
	registry *prometheus.Registry
}

// NewServer creates a server for the given facade and custody ledger.
// registry may be nil to disable the metrics endpoint.
func NewServer(addr string, service *governance.Service, ledger *treasury.Ledger, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Server{
		service:  service,
		ledger:   ledger,
		router:   mux.NewRouter(),
		logger:   logger,
		registry: registry,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("api server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(enableCORS)
	s.router.Use(s.requestLogging)

	// Proposal routes
	s.router.HandleFunc("/api/proposals", s.createProposal).Methods("POST")
	s.router.HandleFunc("/api/proposals", s.listProposals).Methods("GET")
	s.router.HandleFunc("/api/proposals/active", s.listActiveProposals).Methods("GET")
	s.router.HandleFunc("/api/proposals/{id}", s.getProposal).Methods("GET")
	s.router.HandleFunc("/api/proposals/{id}/state", s.getState).Methods("GET")
	s.router.HandleFunc("/api/proposals/{id}/tally", s.getTally).Methods("GET")
	s.router.HandleFunc("/api/proposals/{id}/receipts/{voter}", s.getReceipt).Methods("GET")
	s.router.HandleFunc("/api/proposals/{id}/votes", s.castVote).Methods("POST")
	s.router.HandleFunc("/api/proposals/{id}/cancel", s.cancelProposal).Methods("POST")
	s.router.HandleFunc("/api/proposals/{id}/execute", s.executeProposal).Methods("POST")
	s.router.HandleFunc("/api/proposals/{id}/guardian-cancel", s.guardianCancel).Methods("POST")

	// Guardian routes
	s.router.HandleFunc("/api/guardians", s.listGuardians).Methods("GET")
	s.router.HandleFunc("/api/guardians/add", s.addGuardian).Methods("POST")
	s.router.HandleFunc("/api/guardians/remove", s.removeGuardian).Methods("POST")

	// Parameter routes
	s.router.HandleFunc("/api/params", s.getParams).Methods("GET")
	s.router.HandleFunc("/api/params/pending", s.getPendingChange).Methods("GET")
	s.router.HandleFunc("/api/params/schedule", s.scheduleChange).Methods("POST")
	s.router.HandleFunc("/api/params/execute", s.executeChange).Methods("POST")
	s.router.HandleFunc("/api/params/cancel", s.cancelChange).Methods("POST")

	// Treasury routes
	s.router.HandleFunc("/api/treasury/deposit", s.depositToTreasury).Methods("POST")
	s.router.HandleFunc("/api/treasury/{asset}", s.getTreasuryBalance).Methods("GET")

	// Voting power
	s.router.HandleFunc("/api/power/{account}", s.getVotingPower).Methods("GET")

	// Health check
	s.router.HandleFunc("/api/health", s.getHealthCheck).Methods("GET")

	if s.registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
}

// enableCORS enables CORS for all routes.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogging tags each request with an id and logs it.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
		)
	})
}

type proposalView struct {
	ID           uint64              `json:"id"`
	Proposer     string              `json:"proposer"`
	Description  string              `json:"description"`
	Actions      []governance.Action `json:"actions"`
	CreatedAt    time.Time           `json:"created_at"`
	StartTime    time.Time           `json:"start_time"`
	EndTime      time.Time           `json:"end_time"`
	ForVotes     *big.Int            `json:"for_votes"`
	AgainstVotes *big.Int            `json:"against_votes"`
	AbstainVotes *big.Int            `json:"abstain_votes"`
	Executed     bool                `json:"executed"`
	Canceled     bool                `json:"canceled"`
	ETA          *time.Time          `json:"eta,omitempty"`
	State        string              `json:"state"`
}

func (s *Server) proposalView(p *governance.Proposal) (*proposalView, error) {
	state, err := s.service.State(p.ID)
	if err != nil {
		return nil, err
	}
	view := &proposalView{
		ID:           p.ID,
		Proposer:     p.Proposer,
		Description:  p.Description,
		Actions:      p.Actions,
		CreatedAt:    p.CreatedAt,
		StartTime:    p.StartTime,
		EndTime:      p.EndTime,
		ForVotes:     p.ForVotes,
		AgainstVotes: p.AgainstVotes,
		AbstainVotes: p.AbstainVotes,
		Executed:     p.Executed,
		Canceled:     p.Canceled,
		State:        state.String(),
	}
	if !p.ETA.IsZero() {
		eta := p.ETA
		view.ETA = &eta
	}
	return view, nil
}

func (s *Server) createProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Proposer     string              `json:"proposer"`
		Description  string              `json:"description"`
		VotingPeriod string              `json:"voting_period"`
		Actions      []governance.Action `json:"actions"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	period, err := time.ParseDuration(req.VotingPeriod)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid voting_period: %w", err))
		return
	}

	id, err := s.service.CreateProposal(req.Proposer, req.Actions, req.Description, period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) listProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.service.ListProposals()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeProposalList(w, proposals)
}

func (s *Server) listActiveProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.service.ActiveProposals()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeProposalList(w, proposals)
}

func (s *Server) writeProposalList(w http.ResponseWriter, proposals []*governance.Proposal) {
	views := make([]*proposalView, 0, len(proposals))
	for _, p := range proposals {
		view, err := s.proposalView(p)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	proposal, err := s.service.GetProposal(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view, err := s.proposalView(proposal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	state, err := s.service.State(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": state.String()})
}

func (s *Server) getTally(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	tally, err := s.service.Tally(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tally)
}

func (s *Server) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	voter := mux.Vars(r)["voter"]
	receipt, err := s.service.GetReceipt(id, voter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id": receipt.ProposalID,
		"voter":       receipt.Voter,
		"choice":      receipt.Choice.String(),
		"votes":       receipt.Votes,
		"reason":      receipt.Reason,
		"cast_at":     receipt.CastAt,
	})
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var req struct {
		Voter  string `json:"voter"`
		Choice string `json:"choice"`
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	choice, err := parseVoteType(req.Choice)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.service.CastVote(req.Voter, id, choice, req.Reason); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "vote recorded"})
}

func (s *Server) cancelProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.service.CancelProposal(req.Caller, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (s *Server) executeProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.service.ExecuteProposal(req.Caller, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "executed"})
}

func (s *Server) guardianCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var req struct {
		Guardian string `json:"guardian"`
		Reason   string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.service.VoteToCancel(req.Guardian, id, req.Reason); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancel vote recorded"})
}

func (s *Server) listGuardians(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"guardians": s.service.Guardians(),
	})
}

func (s *Server) addGuardian(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller   string `json:"caller"`
		Guardian string `json:"guardian"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.service.AddGuardian(req.Caller, req.Guardian); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "guardian added"})
}

func (s *Server) removeGuardian(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller   string `json:"caller"`
		Guardian string `json:"guardian"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.service.RemoveGuardian(req.Caller, req.Guardian); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "guardian removed"})
}

func (s *Server) getParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Parameters())
}

func (s *Server) getPendingChange(w http.ResponseWriter, r *http.Request) {
	change := s.service.PendingParameterChange()
	if change == nil {
		writeError(w, http.StatusNotFound, governance.ErrNoChangePending)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (s *Server) scheduleChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string                `json:"caller"`
		Params governance.Parameters `json:"params"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	change, err := s.service.ScheduleParameterChange(req.Caller, req.Params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, change)
}

func (s *Server) executeChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	params, err := s.service.ExecuteParameterChange(req.Caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (s *Server) cancelChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.service.CancelParameterChange(req.Caller); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "change canceled"})
}

func (s *Server) depositToTreasury(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From   string `json:"from"`
		Asset  string `json:"asset"`
		Amount string `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid amount %q", req.Amount))
		return
	}
	if err := s.ledger.Deposit(req.From, req.Asset, amount); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "deposited",
		"balance": s.ledger.Balance(req.Asset),
	})
}

func (s *Server) getTreasuryBalance(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":   asset,
		"balance": s.ledger.Balance(asset),
		"allowed": s.ledger.Allowed(asset),
	})
}

func (s *Server) getVotingPower(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	power, err := s.service.VotingPower(account)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"power":   power,
	})
}

func (s *Server) getHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseVoteType maps the wire choice to a VoteType.
func parseVoteType(choice string) (governance.VoteType, error) {
	switch strings.ToLower(choice) {
	case "for":
		return governance.VoteFor, nil
	case "against":
		return governance.VoteAgainst, nil
	case "abstain":
		return governance.VoteAbstain, nil
	default:
		return 0, fmt.Errorf("%w: %q", governance.ErrInvalidVoteType, choice)
	}
}

func proposalID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid proposal id"))
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps engine errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, governance.ErrProposalNotFound),
		errors.Is(err, governance.ErrReceiptNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, governance.ErrNotAdmin),
		errors.Is(err, governance.ErrNotGuardian),
		errors.Is(err, governance.ErrNotProposer),
		errors.Is(err, governance.ErrBelowProposalThreshold):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, governance.ErrProposalNotActive),
		errors.Is(err, governance.ErrProposalNotQueued),
		errors.Is(err, governance.ErrAlreadyVoted),
		errors.Is(err, governance.ErrAlreadyExecuted),
		errors.Is(err, governance.ErrAlreadyCanceled),
		errors.Is(err, governance.ErrNotCancelable),
		errors.Is(err, governance.ErrGuardianAlreadyVoted),
		errors.Is(err, governance.ErrEmergencyWindowClosed),
		errors.Is(err, governance.ErrChangePending),
		errors.Is(err, governance.ErrNoChangePending),
		errors.Is(err, governance.ErrChangeNotReady),
		errors.Is(err, governance.ErrExecutionInProgress):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, governance.ErrNoActions),
		errors.Is(err, governance.ErrInvalidAction),
		errors.Is(err, governance.ErrInvalidVoteType),
		errors.Is(err, governance.ErrInvalidVotingPeriod),
		errors.Is(err, governance.ErrInvalidParameters),
		errors.Is(err, treasury.ErrAssetNotAllowed),
		errors.Is(err, treasury.ErrNonPositiveAmount),
		errors.Is(err, treasury.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
