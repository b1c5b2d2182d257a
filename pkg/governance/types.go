package governance

import (
	"math/big"
	"time"
)

// ProposalState represents the derived lifecycle state of a proposal. It is
// never stored directly; it is recomputed from the proposal's timestamps,
// tallies and one-shot flags plus the current time and parameters.
type ProposalState int

const (
	StatePending ProposalState = iota
	StateActive
	StateCanceled
	StateDefeated
	StateSucceeded
	StateQueued
	StateExecuted
	StateExpired
)

// String returns a human-readable state name.
func (s ProposalState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StateCanceled:
		return "CANCELED"
	case StateDefeated:
		return "DEFEATED"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateQueued:
		return "QUEUED"
	case StateExecuted:
		return "EXECUTED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// VoteType represents a voter's choice on a proposal.
type VoteType uint8

const (
	VoteAgainst VoteType = iota
	VoteFor
	VoteAbstain
)

// Valid reports whether the vote type is one of the three known choices.
func (v VoteType) Valid() bool {
	return v <= VoteAbstain
}

// String returns the vote choice name.
func (v VoteType) String() string {
	switch v {
	case VoteAgainst:
		return "AGAINST"
	case VoteFor:
		return "FOR"
	case VoteAbstain:
		return "ABSTAIN"
	default:
		return "UNKNOWN"
	}
}

// ActionKind identifies the variant carried by an Action.
type ActionKind string

const (
	ActionKindTreasuryWithdraw ActionKind = "treasury_withdraw"
	ActionKindParameterUpdate  ActionKind = "parameter_update"
	ActionKindModuleCall       ActionKind = "module_call"
)

// TreasuryWithdraw releases custodied funds to a recipient.
type TreasuryWithdraw struct {
	Asset     string   `json:"asset"`
	Recipient string   `json:"recipient"`
	Amount    *big.Int `json:"amount"`
}

// ParameterUpdate installs a new governance parameter set on success.
type ParameterUpdate struct {
	Parameters Parameters `json:"parameters"`
}

// ModuleCall invokes a method on a registered module.
type ModuleCall struct {
	Module string `json:"module"`
	Method string `json:"method"`
	Args   []byte `json:"args,omitempty"`
}

// Action is a single operation performed when a proposal executes. Exactly
// one of the variant fields, selected by Kind, must be set.
type Action struct {
	Kind             ActionKind        `json:"kind"`
	TreasuryWithdraw *TreasuryWithdraw `json:"treasury_withdraw,omitempty"`
	ParameterUpdate  *ParameterUpdate  `json:"parameter_update,omitempty"`
	ModuleCall       *ModuleCall       `json:"module_call,omitempty"`
}

// Validate checks that the action is well formed.
func (a *Action) Validate() error {
	switch a.Kind {
	case ActionKindTreasuryWithdraw:
		w := a.TreasuryWithdraw
		if w == nil {
			return ErrInvalidAction
		}
		if w.Asset == "" || w.Recipient == "" {
			return ErrInvalidAction
		}
		if w.Amount == nil || w.Amount.Sign() <= 0 {
			return ErrInvalidAction
		}
	case ActionKindParameterUpdate:
		if a.ParameterUpdate == nil {
			return ErrInvalidAction
		}
		return a.ParameterUpdate.Parameters.Validate()
	case ActionKindModuleCall:
		c := a.ModuleCall
		if c == nil {
			return ErrInvalidAction
		}
		if c.Module == "" || c.Method == "" {
			return ErrInvalidAction
		}
	default:
		return ErrInvalidAction
	}
	return nil
}

// Proposal represents a governance proposal. Proposals are append-only:
// once created they are never deleted, and only the tallies, the one-shot
// flags and the execution timestamp ever change.
type Proposal struct {
	ID           uint64
	Proposer     string
	Actions      []Action
	Description  string
	CreatedAt    time.Time
	StartTime    time.Time
	EndTime      time.Time
	ForVotes     *big.Int
	AgainstVotes *big.Int
	AbstainVotes *big.Int
	Executed     bool
	Canceled     bool
	// ETA is the earliest execution time, materialized when the proposal is
	// first executed from the queued state. Zero until then.
	ETA time.Time
}

// Participation returns the total weight cast across all three choices.
func (p *Proposal) Participation() *big.Int {
	total := new(big.Int).Add(p.ForVotes, p.AgainstVotes)
	return total.Add(total, p.AbstainVotes)
}

// VoteReceipt records a single account's vote on a proposal. Receipts are
// created on first vote and immutable afterward; Votes is the weight
// snapshot taken at the moment of casting.
type VoteReceipt struct {
	ProposalID uint64
	Voter      string
	Choice     VoteType
	Votes      *big.Int
	Reason     string
	CastAt     time.Time
}

// VoteTally summarizes voting on a proposal against the quorum requirement.
type VoteTally struct {
	ProposalID    uint64   `json:"proposal_id"`
	ForVotes      *big.Int `json:"for_votes"`
	AgainstVotes  *big.Int `json:"against_votes"`
	AbstainVotes  *big.Int `json:"abstain_votes"`
	Participation *big.Int `json:"participation"`
	QuorumVotes   *big.Int `json:"quorum_votes"`
	QuorumReached bool     `json:"quorum_reached"`
}

// GuardianCancelVote records one guardian's emergency cancel vote.
type GuardianCancelVote struct {
	ProposalID uint64
	Guardian   string
	Reason     string
	CastAt     time.Time
}

// bpsDenominator is the divisor for basis-point parameters.
const bpsDenominator = 10_000

// Parameters is an immutable, versioned governance parameter set. A new
// version is installed by an executed parameter-update action or by the
// parameter timelock; fields are never mutated in place.
type Parameters struct {
	Version           uint64        `json:"version"`
	ProposalThreshold *big.Int      `json:"proposal_threshold"`
	MinVotingPeriod   time.Duration `json:"min_voting_period"`
	MaxVotingPeriod   time.Duration `json:"max_voting_period"`
	QuorumBps         uint64        `json:"quorum_bps"`
	ExecutionDelay    time.Duration `json:"execution_delay"`
	ExecutionPeriod   time.Duration `json:"execution_period"`
}

// DefaultParameters returns the default governance parameter set.
func DefaultParameters() *Parameters {
	return &Parameters{
		Version:           1,
		ProposalThreshold: big.NewInt(100_000),
		MinVotingPeriod:   24 * time.Hour,
		MaxVotingPeriod:   14 * 24 * time.Hour,
		QuorumBps:         400, // 4% of total supply
		ExecutionDelay:    24 * time.Hour,
		ExecutionPeriod:   7 * 24 * time.Hour,
	}
}

// Validate checks the parameter set for internal consistency.
func (p *Parameters) Validate() error {
	if p.ProposalThreshold == nil || p.ProposalThreshold.Sign() < 0 {
		return ErrInvalidParameters
	}
	if p.MinVotingPeriod <= 0 || p.MaxVotingPeriod < p.MinVotingPeriod {
		return ErrInvalidParameters
	}
	if p.QuorumBps == 0 || p.QuorumBps > bpsDenominator {
		return ErrInvalidParameters
	}
	if p.ExecutionDelay < 0 || p.ExecutionPeriod <= 0 {
		return ErrInvalidParameters
	}
	return nil
}

// QuorumVotes returns the participation weight required for quorum given
// the current total supply.
func (p *Parameters) QuorumVotes(totalSupply *big.Int) *big.Int {
	q := new(big.Int).Mul(totalSupply, new(big.Int).SetUint64(p.QuorumBps))
	return q.Div(q, big.NewInt(bpsDenominator))
}

// clone returns a deep copy of the parameter set.
func (p *Parameters) clone() *Parameters {
	cp := *p
	if p.ProposalThreshold != nil {
		cp.ProposalThreshold = new(big.Int).Set(p.ProposalThreshold)
	}
	return &cp
}
