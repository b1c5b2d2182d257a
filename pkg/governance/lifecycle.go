package governance

import (
	"math/big"
	"time"
)

// DeriveState computes a proposal's lifecycle state from its stored fields,
// the current time, the parameter set and the token supply in effect at
// call time. It is a pure function: nothing is mutated and no transition is
// stored, except for the one-shot executed/canceled flags which are set
// elsewhere and merely observed here.
//
//	Pending -> Active -> {Defeated | Succeeded} -> Queued -> {Executed | Expired}
//
// Canceled short-circuits everything below it; Executed and Expired are
// terminal.
func DeriveState(p *Proposal, params *Parameters, totalSupply *big.Int, now time.Time) ProposalState {
	if p.Canceled {
		return StateCanceled
	}
	if p.Executed {
		return StateExecuted
	}
	if now.Before(p.StartTime) {
		return StatePending
	}
	if now.Before(p.EndTime) {
		return StateActive
	}
	if !resolvedSucceeded(p, params, totalSupply) {
		return StateDefeated
	}
	eta := p.ETA
	if eta.IsZero() {
		eta = p.EndTime.Add(params.ExecutionDelay)
	}
	if now.Before(eta) {
		return StateSucceeded
	}
	if now.Before(eta.Add(params.ExecutionPeriod)) {
		return StateQueued
	}
	return StateExpired
}

// resolvedSucceeded applies the once-at-end resolution rule: the proposal
// succeeded iff forVotes strictly exceed againstVotes and total
// participation meets the quorum threshold.
func resolvedSucceeded(p *Proposal, params *Parameters, totalSupply *big.Int) bool {
	if p.ForVotes.Cmp(p.AgainstVotes) <= 0 {
		return false
	}
	return p.Participation().Cmp(params.QuorumVotes(totalSupply)) >= 0
}
