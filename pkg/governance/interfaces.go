package governance

import (
	"math/big"
	"time"

	"github.com/parolabs/governor/pkg/staking"
)

// TokenSystem defines the value-token collaborator consumed by the engine.
// The engine never performs token accounting of its own; it only reads
// balances and supply and asks the token to move funds.
type TokenSystem interface {
	BalanceOf(address string) (*big.Int, error)
	TotalSupply() (*big.Int, error)
	Transfer(from, to string, amount *big.Int) error
}

// BalanceHistory is an optional extension of TokenSystem for tokens that
// keep balance checkpoints. It enables the window-start weight policy.
type BalanceHistory interface {
	BalanceOfAt(address string, at time.Time) (*big.Int, error)
}

// StakingSystem defines the staking collaborator consumed by the voting
// power oracle.
type StakingSystem interface {
	// Positions returns the account's open stake positions.
	Positions(address string) ([]staking.Position, error)

	// MaxMultiplierBps is the maximum total weight multiplier in basis
	// points (e.g. 25000 means a fully aged stake counts 2.5x).
	MaxMultiplierBps() uint64

	// MaxStakingPeriod is the stake age at which the multiplier caps out.
	MaxStakingPeriod() time.Duration
}

// ModuleRegistry resolves module names to addresses. Implementations must
// never block on an unavailable upstream; they fall back to the last known
// address instead.
type ModuleRegistry interface {
	Resolve(module string) (string, error)
}

// CallDispatcher performs the outbound call for a module-call action and
// reports success or failure. Calls must be treated as potentially
// reentrant into the engine.
type CallDispatcher interface {
	Call(target, method string, args []byte) ([]byte, error)
}

// ProposalStore owns the canonical proposal, receipt and guardian-vote
// records. Implementations enforce the append-only and one-shot invariants;
// phase legality is the service's concern.
type ProposalStore interface {
	// InsertProposal assigns the next monotonic id, records the proposal
	// and appends it to the active index.
	InsertProposal(p *Proposal) (uint64, error)

	GetProposal(id uint64) (*Proposal, error)
	ListProposals() ([]*Proposal, error)

	// ActiveProposalIDs returns the discovery index of proposals that have
	// not been executed or canceled, in insertion order.
	ActiveProposalIDs() ([]uint64, error)
	RemoveActiveID(id uint64) error

	// AddVote atomically records the receipt and adds its weight to the
	// matching tally. Fails with ErrAlreadyVoted on a duplicate voter.
	AddVote(r *VoteReceipt) error
	GetReceipt(id uint64, voter string) (*VoteReceipt, error)

	// MarkExecuted sets the one-shot executed flag and stamps the ETA.
	MarkExecuted(id uint64, eta time.Time) error
	// ClearExecuted rolls back a failed execution, restoring the proposal
	// to its pre-execution state. Only the executor path may use it.
	ClearExecuted(id uint64) error

	// MarkCanceled sets the one-shot canceled flag.
	MarkCanceled(id uint64) error

	// AddGuardianVote records a guardian's cancel vote and returns the
	// number of distinct guardians that have voted so far.
	AddGuardianVote(v *GuardianCancelVote) (int, error)
	GuardianVotes(id uint64) ([]*GuardianCancelVote, error)
}

// ExecutionResult reports the side effects of a successful execution that
// the service itself must apply.
type ExecutionResult struct {
	// UpdatedParameters is non-nil when a parameter-update action ran; the
	// last update in the action list wins.
	UpdatedParameters *Parameters
}

// ProposalExecutor validates and performs a proposal's action list.
// Execute is all-or-nothing: on failure every local mutation it made has
// been rolled back before it returns.
type ProposalExecutor interface {
	Validate(p *Proposal) error
	Execute(p *Proposal) (*ExecutionResult, error)
}
