// Package store provides the in-memory implementation of the governance
// proposal store. Records are append-only: proposals, receipts and guardian
// votes are never deleted, and the store enforces the one-shot and
// double-vote invariants regardless of what the caller asks for.
package store

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/parolabs/governor/pkg/governance"
)

// MemoryStore is an in-memory implementation of governance.ProposalStore.
// All reads return copies so callers can never mutate canonical state.
type MemoryStore struct {
	mutex     sync.RWMutex
	nextID    uint64
	proposals map[uint64]*governance.Proposal
	receipts  map[uint64]map[string]*governance.VoteReceipt
	guardians map[uint64]map[string]*governance.GuardianCancelVote
	activeIDs []uint64
}

// NewMemoryStore creates a new memory store. IDs start at 1 and are never
// reused.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:    1,
		proposals: make(map[uint64]*governance.Proposal),
		receipts:  make(map[uint64]map[string]*governance.VoteReceipt),
		guardians: make(map[uint64]map[string]*governance.GuardianCancelVote),
	}
}

// InsertProposal assigns the next monotonic id, records the proposal and
// appends it to the active index.
func (s *MemoryStore) InsertProposal(proposal *governance.Proposal) (uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := s.nextID
	s.nextID++

	cp := copyProposal(proposal)
	cp.ID = id
	s.proposals[id] = cp
	s.activeIDs = append(s.activeIDs, id)
	return id, nil
}

// GetProposal retrieves a proposal by id. Returns (nil, nil) when unknown.
func (s *MemoryStore) GetProposal(id uint64) (*governance.Proposal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if proposal, exists := s.proposals[id]; exists {
		return copyProposal(proposal), nil
	}
	return nil, nil
}

// ListProposals lists all proposals in id order.
func (s *MemoryStore) ListProposals() ([]*governance.Proposal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	proposals := make([]*governance.Proposal, 0, len(s.proposals))
	for id := uint64(1); id < s.nextID; id++ {
		if proposal, exists := s.proposals[id]; exists {
			proposals = append(proposals, copyProposal(proposal))
		}
	}
	return proposals, nil
}

// ActiveProposalIDs returns the discovery index in insertion order.
func (s *MemoryStore) ActiveProposalIDs() ([]uint64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]uint64, len(s.activeIDs))
	copy(ids, s.activeIDs)
	return ids, nil
}

// RemoveActiveID drops a proposal from the discovery index. Removing an id
// that is not on the index is a no-op.
func (s *MemoryStore) RemoveActiveID(id uint64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, active := range s.activeIDs {
		if active == id {
			s.activeIDs = append(s.activeIDs[:i], s.activeIDs[i+1:]...)
			break
		}
	}
	return nil
}

// AddVote atomically records the receipt and adds its weight to the
// matching tally. A second receipt for the same (proposal, voter) pair is
// rejected, which also guarantees tallies are never double-counted.
func (s *MemoryStore) AddVote(receipt *governance.VoteReceipt) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	proposal, exists := s.proposals[receipt.ProposalID]
	if !exists {
		return governance.ErrProposalNotFound
	}

	voters := s.receipts[receipt.ProposalID]
	if voters == nil {
		voters = make(map[string]*governance.VoteReceipt)
		s.receipts[receipt.ProposalID] = voters
	}
	if _, voted := voters[receipt.Voter]; voted {
		return governance.ErrAlreadyVoted
	}

	cp := copyReceipt(receipt)
	voters[receipt.Voter] = cp

	switch cp.Choice {
	case governance.VoteFor:
		proposal.ForVotes.Add(proposal.ForVotes, cp.Votes)
	case governance.VoteAgainst:
		proposal.AgainstVotes.Add(proposal.AgainstVotes, cp.Votes)
	case governance.VoteAbstain:
		proposal.AbstainVotes.Add(proposal.AbstainVotes, cp.Votes)
	default:
		delete(voters, receipt.Voter)
		return governance.ErrInvalidVoteType
	}
	return nil
}

// GetReceipt retrieves a voter's receipt for a proposal.
func (s *MemoryStore) GetReceipt(id uint64, voter string) (*governance.VoteReceipt, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if _, exists := s.proposals[id]; !exists {
		return nil, governance.ErrProposalNotFound
	}
	if receipt, exists := s.receipts[id][voter]; exists {
		return copyReceipt(receipt), nil
	}
	return nil, governance.ErrReceiptNotFound
}

// MarkExecuted sets the one-shot executed flag and stamps the ETA.
func (s *MemoryStore) MarkExecuted(id uint64, eta time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	proposal, exists := s.proposals[id]
	if !exists {
		return governance.ErrProposalNotFound
	}
	if proposal.Executed {
		return governance.ErrAlreadyExecuted
	}
	if proposal.Canceled {
		return governance.ErrAlreadyCanceled
	}

	proposal.Executed = true
	proposal.ETA = eta
	return nil
}

// ClearExecuted rolls back a failed execution. The ETA stamp is kept: the
// proposal did reach the queued phase.
func (s *MemoryStore) ClearExecuted(id uint64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	proposal, exists := s.proposals[id]
	if !exists {
		return governance.ErrProposalNotFound
	}
	if !proposal.Executed {
		return fmt.Errorf("proposal %d is not executed", id)
	}

	proposal.Executed = false
	return nil
}

// MarkCanceled sets the one-shot canceled flag.
func (s *MemoryStore) MarkCanceled(id uint64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	proposal, exists := s.proposals[id]
	if !exists {
		return governance.ErrProposalNotFound
	}
	if proposal.Canceled {
		return governance.ErrAlreadyCanceled
	}
	if proposal.Executed {
		return governance.ErrAlreadyExecuted
	}

	proposal.Canceled = true
	return nil
}

// AddGuardianVote records a guardian's cancel vote and returns the number
// of distinct guardians that have voted on the proposal so far.
func (s *MemoryStore) AddGuardianVote(vote *governance.GuardianCancelVote) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.proposals[vote.ProposalID]; !exists {
		return 0, governance.ErrProposalNotFound
	}

	votes := s.guardians[vote.ProposalID]
	if votes == nil {
		votes = make(map[string]*governance.GuardianCancelVote)
		s.guardians[vote.ProposalID] = votes
	}
	if _, voted := votes[vote.Guardian]; voted {
		return len(votes), governance.ErrGuardianAlreadyVoted
	}

	cp := *vote
	votes[vote.Guardian] = &cp
	return len(votes), nil
}

// GuardianVotes returns the guardian cancel votes recorded on a proposal.
func (s *MemoryStore) GuardianVotes(id uint64) ([]*governance.GuardianCancelVote, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if _, exists := s.proposals[id]; !exists {
		return nil, governance.ErrProposalNotFound
	}

	votes := make([]*governance.GuardianCancelVote, 0, len(s.guardians[id]))
	for _, vote := range s.guardians[id] {
		cp := *vote
		votes = append(votes, &cp)
	}
	return votes, nil
}

func copyProposal(proposal *governance.Proposal) *governance.Proposal {
	cp := *proposal
	cp.Actions = make([]governance.Action, len(proposal.Actions))
	copy(cp.Actions, proposal.Actions)
	cp.ForVotes = bigCopy(proposal.ForVotes)
	cp.AgainstVotes = bigCopy(proposal.AgainstVotes)
	cp.AbstainVotes = bigCopy(proposal.AbstainVotes)
	return &cp
}

func copyReceipt(receipt *governance.VoteReceipt) *governance.VoteReceipt {
	cp := *receipt
	cp.Votes = bigCopy(receipt.Votes)
	return &cp
}

func bigCopy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
