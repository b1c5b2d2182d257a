package governance

import "errors"

var (
	// ErrProposalNotFound indicates the proposal id is unknown.
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrReceiptNotFound indicates the voter has no receipt for the proposal.
	ErrReceiptNotFound = errors.New("vote receipt not found")

	// ErrNoActions indicates a proposal was submitted with an empty action list.
	ErrNoActions = errors.New("proposal has no actions")

	// ErrInvalidAction indicates a malformed action in a proposal.
	ErrInvalidAction = errors.New("invalid proposal action")

	// ErrInvalidVotingPeriod indicates the requested voting period is outside
	// the configured bounds.
	ErrInvalidVotingPeriod = errors.New("voting period out of bounds")

	// ErrBelowProposalThreshold indicates the caller's voting power is below
	// the proposal creation threshold.
	ErrBelowProposalThreshold = errors.New("voting power below proposal threshold")

	// ErrProposalNotActive indicates a vote outside the active voting window.
	ErrProposalNotActive = errors.New("proposal is not active")

	// ErrAlreadyVoted indicates the voter already holds a receipt.
	ErrAlreadyVoted = errors.New("voter has already voted")

	// ErrInvalidVoteType indicates an unknown vote choice.
	ErrInvalidVoteType = errors.New("invalid vote type")

	// ErrProposalNotQueued indicates execution was attempted outside the
	// queued phase.
	ErrProposalNotQueued = errors.New("proposal is not queued for execution")

	// ErrAlreadyExecuted indicates the proposal's one-shot executed flag is set.
	ErrAlreadyExecuted = errors.New("proposal already executed")

	// ErrAlreadyCanceled indicates the proposal's one-shot canceled flag is set.
	ErrAlreadyCanceled = errors.New("proposal already canceled")

	// ErrNotCancelable indicates cancellation was attempted outside the
	// pending or active phases.
	ErrNotCancelable = errors.New("proposal can no longer be canceled")

	// ErrNotProposer indicates a cancel attempt by a third party while the
	// proposer still meets the proposal threshold.
	ErrNotProposer = errors.New("caller is not the proposer")

	// ErrExecutionInProgress indicates a reentrant execution attempt on a
	// proposal whose execution is already in flight.
	ErrExecutionInProgress = errors.New("proposal execution already in progress")

	// ErrNotGuardian indicates an emergency cancel vote from a non-guardian.
	ErrNotGuardian = errors.New("caller is not a guardian")

	// ErrGuardianAlreadyVoted indicates a guardian's second cancel vote on
	// the same proposal.
	ErrGuardianAlreadyVoted = errors.New("guardian has already voted to cancel")

	// ErrEmergencyWindowClosed indicates a cancel vote after the emergency
	// window measured from proposal creation.
	ErrEmergencyWindowClosed = errors.New("emergency cancellation window closed")

	// ErrNotAdmin indicates an admin-only operation by a non-admin caller.
	ErrNotAdmin = errors.New("caller is not the admin")

	// ErrInvalidParameters indicates an inconsistent governance parameter set.
	ErrInvalidParameters = errors.New("invalid governance parameters")

	// ErrChangePending indicates a parameter change is already scheduled.
	ErrChangePending = errors.New("parameter change already pending")

	// ErrNoChangePending indicates no parameter change is scheduled.
	ErrNoChangePending = errors.New("no parameter change pending")

	// ErrChangeNotReady indicates the pending change's delay has not elapsed.
	ErrChangeNotReady = errors.New("parameter change delay has not elapsed")
)
