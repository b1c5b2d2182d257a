package governance

import (
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"
)

// ServiceConfig configures the governance service.
type ServiceConfig struct {
	// Admin is the account allowed to manage guardians and use the
	// parameter timelock fast path.
	Admin string

	// Params is the initial governance parameter set. Defaults to
	// DefaultParameters when nil.
	Params *Parameters

	// WeightPolicy selects live or window-start weight evaluation.
	WeightPolicy WeightPolicy

	// Guardians, RequiredGuardians and EmergencyPeriod configure the
	// emergency brake.
	Guardians         []string
	RequiredGuardians int
	EmergencyPeriod   time.Duration

	// ParameterChangeDelay is the mandatory timelock delay on the
	// administrative parameter fast path.
	ParameterChangeDelay time.Duration

	// Logger defaults to a discard handler; Metrics to unregistered
	// metrics; Now to time.Now.
	Logger  *slog.Logger
	Metrics *Metrics
	Now     func() time.Time
}

// Service is the governance facade: the only externally callable surface.
// It orchestrates the proposal store, the voting power oracle, the
// executor, the guardian brake and the parameter timelock.
type Service struct {
	store    ProposalStore
	executor ProposalExecutor
	tokens   TokenSystem
	oracle   *VotingPowerOracle
	brake    *GuardianBrake
	timelock *ParameterTimelock

	admin        string
	weightPolicy WeightPolicy
	logger       *slog.Logger
	metrics      *Metrics
	now          func() time.Time

	mu        sync.Mutex
	params    *Parameters
	executing map[uint64]bool
}

// NewService creates a governance service over the given collaborators.
// staking may be nil, in which case voting weight is the bare balance.
func NewService(
	store ProposalStore,
	executor ProposalExecutor,
	tokens TokenSystem,
	staking StakingSystem,
	cfg ServiceConfig,
) *Service {
	params := cfg.Params
	if params == nil {
		params = DefaultParameters()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		store:        store,
		executor:     executor,
		tokens:       tokens,
		oracle:       NewVotingPowerOracle(tokens, staking),
		brake:        NewGuardianBrake(cfg.Guardians, cfg.RequiredGuardians, cfg.EmergencyPeriod),
		timelock:     NewParameterTimelock(cfg.ParameterChangeDelay, now),
		admin:        cfg.Admin,
		weightPolicy: cfg.WeightPolicy,
		logger:       logger,
		metrics:      metrics,
		now:          now,
		params:       params.clone(),
		executing:    make(map[uint64]bool),
	}
	s.metrics.parameterVersion.Set(float64(s.params.Version))
	return s
}

// CreateProposal validates and records a new proposal. The caller's current
// voting power must meet the proposal threshold, the action list must be
// non-empty and well formed, and the requested voting period must lie
// within the configured bounds. Voting opens immediately.
func (s *Service) CreateProposal(proposer string, actions []Action, description string, votingPeriod time.Duration) (uint64, error) {
	params := s.Parameters()
	now := s.now()

	power, err := s.oracle.Power(proposer, now)
	if err != nil {
		return 0, fmt.Errorf("failed to get voting power: %w", err)
	}
	if power.Cmp(params.ProposalThreshold) < 0 {
		return 0, ErrBelowProposalThreshold
	}

	if len(actions) == 0 {
		return 0, ErrNoActions
	}
	for i := range actions {
		if err := actions[i].Validate(); err != nil {
			return 0, fmt.Errorf("action %d: %w", i, err)
		}
	}

	if votingPeriod < params.MinVotingPeriod || votingPeriod > params.MaxVotingPeriod {
		return 0, ErrInvalidVotingPeriod
	}

	proposal := &Proposal{
		Proposer:     proposer,
		Actions:      actions,
		Description:  description,
		CreatedAt:    now,
		StartTime:    now,
		EndTime:      now.Add(votingPeriod),
		ForVotes:     new(big.Int),
		AgainstVotes: new(big.Int),
		AbstainVotes: new(big.Int),
	}

	id, err := s.store.InsertProposal(proposal)
	if err != nil {
		return 0, fmt.Errorf("failed to save proposal: %w", err)
	}

	s.metrics.proposalsCreated.Inc()
	s.logger.Info("proposal created",
		"proposal_id", id,
		"proposer", proposer,
		"actions", len(actions),
		"end_time", proposal.EndTime,
	)
	return id, nil
}

// CastVote records a vote on an active proposal. The voter's weight is
// evaluated by the configured weight policy, snapshotted into the receipt
// and added to the matching tally. One receipt per (proposal, voter).
func (s *Service) CastVote(voter string, proposalID uint64, choice VoteType, reason string) error {
	if !choice.Valid() {
		return ErrInvalidVoteType
	}

	proposal, state, err := s.proposalState(proposalID)
	if err != nil {
		return err
	}
	if state != StateActive {
		return fmt.Errorf("%w: proposal is %s", ErrProposalNotActive, state)
	}

	now := s.now()
	var weight *big.Int
	switch s.weightPolicy {
	case WeightPolicyWindowStart:
		weight, err = s.oracle.PowerAt(voter, proposal.StartTime)
	default:
		weight, err = s.oracle.Power(voter, now)
	}
	if err != nil {
		return fmt.Errorf("failed to get voting power: %w", err)
	}

	receipt := &VoteReceipt{
		ProposalID: proposalID,
		Voter:      voter,
		Choice:     choice,
		Votes:      weight,
		Reason:     reason,
		CastAt:     now,
	}
	if err := s.store.AddVote(receipt); err != nil {
		return err
	}

	s.metrics.votesCast.WithLabelValues(choice.String()).Inc()
	s.logger.Info("vote cast",
		"proposal_id", proposalID,
		"voter", voter,
		"choice", choice.String(),
		"weight", weight.String(),
	)
	return nil
}

// CancelProposal cancels a pending or active proposal. Only the proposer
// may cancel, unless the proposer's current voting power has fallen below
// the proposal threshold, in which case any account may cancel on their
// behalf.
func (s *Service) CancelProposal(caller string, proposalID uint64) error {
	proposal, state, err := s.proposalState(proposalID)
	if err != nil {
		return err
	}
	if proposal.Canceled {
		return ErrAlreadyCanceled
	}
	if state != StatePending && state != StateActive {
		return fmt.Errorf("%w: proposal is %s", ErrNotCancelable, state)
	}

	if caller != proposal.Proposer {
		power, err := s.oracle.Power(proposal.Proposer, s.now())
		if err != nil {
			return fmt.Errorf("failed to get voting power: %w", err)
		}
		if power.Cmp(s.Parameters().ProposalThreshold) >= 0 {
			return ErrNotProposer
		}
	}

	if err := s.store.MarkCanceled(proposalID); err != nil {
		return err
	}
	if err := s.store.RemoveActiveID(proposalID); err != nil {
		return err
	}

	s.metrics.proposalsCanceled.Inc()
	s.logger.Info("proposal canceled", "proposal_id", proposalID, "caller", caller)
	return nil
}

// ExecuteProposal performs a queued proposal's action list. Execution is
// all-or-nothing: the first failing action rolls everything back and the
// proposal stays queued until its execution period lapses. The executed
// flag and local ledger mutations are committed before any outbound module
// call, and a reentrancy guard blocks nested execution of the same id.
func (s *Service) ExecuteProposal(caller string, proposalID uint64) error {
	proposal, state, err := s.proposalState(proposalID)
	if err != nil {
		return err
	}
	switch state {
	case StateQueued:
	case StateExecuted:
		return ErrAlreadyExecuted
	default:
		return fmt.Errorf("%w: proposal is %s", ErrProposalNotQueued, state)
	}

	s.mu.Lock()
	if s.executing[proposalID] {
		s.mu.Unlock()
		return ErrExecutionInProgress
	}
	s.executing[proposalID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.executing, proposalID)
		s.mu.Unlock()
	}()

	if err := s.executor.Validate(proposal); err != nil {
		return fmt.Errorf("proposal validation failed: %w", err)
	}

	eta := proposal.ETA
	if eta.IsZero() {
		eta = proposal.EndTime.Add(s.Parameters().ExecutionDelay)
	}
	if err := s.store.MarkExecuted(proposalID, eta); err != nil {
		return err
	}

	result, err := s.executor.Execute(proposal)
	if err != nil {
		// The executor has already rolled back its own mutations; revert
		// the executed flag so the proposal remains queued.
		if clearErr := s.store.ClearExecuted(proposalID); clearErr != nil {
			s.logger.Error("failed to clear executed flag after rollback",
				"proposal_id", proposalID, "error", clearErr)
		}
		s.metrics.executionFailures.Inc()
		return fmt.Errorf("proposal execution failed: %w", err)
	}

	if result != nil && result.UpdatedParameters != nil {
		s.installParameters(*result.UpdatedParameters)
	}
	if err := s.store.RemoveActiveID(proposalID); err != nil {
		return err
	}

	s.metrics.proposalsExecuted.Inc()
	s.logger.Info("proposal executed", "proposal_id", proposalID, "caller", caller)
	return nil
}

// VoteToCancel records a guardian's emergency cancel vote. Accepted only
// from guardians, once per guardian per proposal, inside the emergency
// window measured from proposal creation, and only while the proposal is
// pending or active. Reaching the guardian quorum cancels the proposal
// immediately.
func (s *Service) VoteToCancel(guardian string, proposalID uint64, reason string) error {
	if !s.brake.IsGuardian(guardian) {
		return ErrNotGuardian
	}

	proposal, state, err := s.proposalState(proposalID)
	if err != nil {
		return err
	}
	if state != StatePending && state != StateActive {
		return fmt.Errorf("%w: proposal is %s", ErrNotCancelable, state)
	}

	now := s.now()
	if !s.brake.WindowOpen(proposal.CreatedAt, now) {
		return ErrEmergencyWindowClosed
	}

	count, err := s.store.AddGuardianVote(&GuardianCancelVote{
		ProposalID: proposalID,
		Guardian:   guardian,
		Reason:     reason,
		CastAt:     now,
	})
	if err != nil {
		return err
	}

	s.metrics.guardianVotes.Inc()
	s.logger.Info("guardian cancel vote",
		"proposal_id", proposalID,
		"guardian", guardian,
		"votes", count,
		"required", s.brake.Required(),
	)

	if count >= s.brake.Required() {
		if err := s.store.MarkCanceled(proposalID); err != nil {
			return err
		}
		if err := s.store.RemoveActiveID(proposalID); err != nil {
			return err
		}
		s.metrics.guardianCancels.Inc()
		s.logger.Warn("proposal canceled by guardians", "proposal_id", proposalID)
	}
	return nil
}

// ScheduleParameterChange schedules a parameter change on the timelock
// fast path. Admin only.
func (s *Service) ScheduleParameterChange(caller string, params Parameters) (*ParameterChange, error) {
	if caller != s.admin {
		return nil, ErrNotAdmin
	}
	change, err := s.timelock.Schedule(params)
	if err != nil {
		return nil, err
	}
	s.logger.Info("parameter change scheduled", "eta", change.ETA)
	return change, nil
}

// ExecuteParameterChange applies the scheduled parameter change once its
// delay has elapsed, installing a new parameter version. Admin only.
func (s *Service) ExecuteParameterChange(caller string) (*Parameters, error) {
	if caller != s.admin {
		return nil, ErrNotAdmin
	}
	params, err := s.timelock.Execute()
	if err != nil {
		return nil, err
	}
	installed := s.installParameters(*params)
	s.logger.Info("parameter change executed", "version", installed.Version)
	return installed, nil
}

// CancelParameterChange clears the scheduled parameter change. Admin only.
func (s *Service) CancelParameterChange(caller string) error {
	if caller != s.admin {
		return ErrNotAdmin
	}
	if err := s.timelock.Cancel(); err != nil {
		return err
	}
	s.logger.Info("parameter change canceled")
	return nil
}

// PendingParameterChange returns the in-flight scheduled change, or nil.
func (s *Service) PendingParameterChange() *ParameterChange {
	return s.timelock.Pending()
}

// AddGuardian adds an account to the guardian set. Admin only.
func (s *Service) AddGuardian(caller, guardian string) error {
	if caller != s.admin {
		return ErrNotAdmin
	}
	s.brake.AddGuardian(guardian)
	s.logger.Info("guardian added", "guardian", guardian)
	return nil
}

// RemoveGuardian removes an account from the guardian set. Admin only.
// Already-counted cancel votes are unaffected.
func (s *Service) RemoveGuardian(caller, guardian string) error {
	if caller != s.admin {
		return ErrNotAdmin
	}
	s.brake.RemoveGuardian(guardian)
	s.logger.Info("guardian removed", "guardian", guardian)
	return nil
}

// SetRequiredGuardians updates the guardian cancel quorum. Admin only.
func (s *Service) SetRequiredGuardians(caller string, n int) error {
	if caller != s.admin {
		return ErrNotAdmin
	}
	s.brake.SetRequired(n)
	return nil
}

// Guardians returns the current guardian set.
func (s *Service) Guardians() []string {
	return s.brake.Guardians()
}

// State returns the proposal's derived lifecycle state.
func (s *Service) State(proposalID uint64) (ProposalState, error) {
	_, state, err := s.proposalState(proposalID)
	return state, err
}

// GetProposal returns a proposal by id.
func (s *Service) GetProposal(proposalID uint64) (*Proposal, error) {
	proposal, err := s.store.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, ErrProposalNotFound
	}
	return proposal, nil
}

// ListProposals returns all proposals.
func (s *Service) ListProposals() ([]*Proposal, error) {
	return s.store.ListProposals()
}

// ActiveProposals returns the proposals on the discovery index.
func (s *Service) ActiveProposals() ([]*Proposal, error) {
	ids, err := s.store.ActiveProposalIDs()
	if err != nil {
		return nil, err
	}
	proposals := make([]*Proposal, 0, len(ids))
	for _, id := range ids {
		proposal, err := s.store.GetProposal(id)
		if err != nil {
			return nil, err
		}
		if proposal != nil {
			proposals = append(proposals, proposal)
		}
	}
	return proposals, nil
}

// GetReceipt returns a voter's receipt for a proposal.
func (s *Service) GetReceipt(proposalID uint64, voter string) (*VoteReceipt, error) {
	return s.store.GetReceipt(proposalID, voter)
}

// GuardianVotes returns the guardian cancel votes recorded on a proposal.
func (s *Service) GuardianVotes(proposalID uint64) ([]*GuardianCancelVote, error) {
	return s.store.GuardianVotes(proposalID)
}

// Tally returns the proposal's current tallies against the quorum derived
// from the live total supply.
func (s *Service) Tally(proposalID uint64) (*VoteTally, error) {
	proposal, err := s.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	supply, err := s.tokens.TotalSupply()
	if err != nil {
		return nil, fmt.Errorf("failed to get total supply: %w", err)
	}

	participation := proposal.Participation()
	quorum := s.Parameters().QuorumVotes(supply)
	return &VoteTally{
		ProposalID:    proposalID,
		ForVotes:      proposal.ForVotes,
		AgainstVotes:  proposal.AgainstVotes,
		AbstainVotes:  proposal.AbstainVotes,
		Participation: participation,
		QuorumVotes:   quorum,
		QuorumReached: participation.Cmp(quorum) >= 0,
	}, nil
}

// VotingPower returns an account's current voting weight.
func (s *Service) VotingPower(account string) (*big.Int, error) {
	return s.oracle.Power(account, s.now())
}

// Parameters returns a copy of the active governance parameter set.
func (s *Service) Parameters() *Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.clone()
}

// installParameters installs a new parameter version, bumping the version
// counter regardless of the version carried by the incoming set.
func (s *Service) installParameters(params Parameters) *Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()

	params.Version = s.params.Version + 1
	s.params = params.clone()
	s.metrics.parameterVersion.Set(float64(s.params.Version))
	return s.params.clone()
}

// proposalState loads a proposal and derives its state at the current time
// against the active parameters and live total supply.
func (s *Service) proposalState(proposalID uint64) (*Proposal, ProposalState, error) {
	proposal, err := s.GetProposal(proposalID)
	if err != nil {
		return nil, 0, err
	}
	supply, err := s.tokens.TotalSupply()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get total supply: %w", err)
	}
	state := DeriveState(proposal, s.Parameters(), supply, s.now())
	return proposal, state, nil
}
