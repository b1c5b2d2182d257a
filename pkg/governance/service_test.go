package governance_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parolabs/governor/pkg/governance"
	"github.com/parolabs/governor/pkg/governance/executor"
	"github.com/parolabs/governor/pkg/governance/store"
	"github.com/parolabs/governor/pkg/registry"
	"github.com/parolabs/governor/pkg/token"
	"github.com/parolabs/governor/pkg/treasury"
)

// fakeClock is a manually advanced clock shared by the fixture components.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// stubDispatcher records module calls and fails on demand.
type stubDispatcher struct {
	calls []string
	err   error
}

func (d *stubDispatcher) Call(target, method string, args []byte) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.calls = append(d.calls, target+"/"+method)
	return []byte(`{}`), nil
}

type fixture struct {
	service    *governance.Service
	tokens     *token.System
	ledger     *treasury.Ledger
	dispatcher *stubDispatcher
	clock      *fakeClock
}

// newFixture builds a service over a 10M supply: alice 500k, bob 300k,
// carol 200k, whale 9M. Quorum is 4% (400k), threshold 100k.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newFakeClock()
	tokens := token.NewSystem("GOV")
	tokens.SetClock(clock.Now)

	for account, amount := range map[string]int64{
		"alice": 500_000,
		"bob":   300_000,
		"carol": 200_000,
		"whale": 9_000_000,
	} {
		require.NoError(t, tokens.Mint(account, big.NewInt(amount)))
	}

	ledger := treasury.NewLedger("treasury", tokens, nil)
	ledger.AllowAsset("GOV")

	dispatcher := &stubDispatcher{}
	modules := registry.NewRegistry(nil, map[string]string{
		"oracle": "http://oracle.local",
	}, nil)
	exec := executor.NewExecutor(ledger, modules, dispatcher, nil)

	service := governance.NewService(store.NewMemoryStore(), exec, tokens, nil, governance.ServiceConfig{
		Admin:                "admin",
		Guardians:            []string{"g1", "g2", "g3"},
		RequiredGuardians:    2,
		EmergencyPeriod:      48 * time.Hour,
		ParameterChangeDelay: 24 * time.Hour,
		Now:                  clock.Now,
	})

	return &fixture{
		service:    service,
		tokens:     tokens,
		ledger:     ledger,
		dispatcher: dispatcher,
		clock:      clock,
	}
}

func textActions() []governance.Action {
	return []governance.Action{{
		Kind: governance.ActionKindModuleCall,
		ModuleCall: &governance.ModuleCall{
			Module: "oracle",
			Method: "refresh",
		},
	}}
}

func (f *fixture) createProposal(t *testing.T) uint64 {
	t.Helper()

	id, err := f.service.CreateProposal("alice", textActions(), "test proposal", 24*time.Hour)
	require.NoError(t, err)
	return id
}

func TestCreateProposal(t *testing.T) {
	t.Run("assigns monotonic ids", func(t *testing.T) {
		f := newFixture(t)
		first := f.createProposal(t)
		second := f.createProposal(t)
		assert.Equal(t, first+1, second)
	})

	t.Run("rejects proposer below threshold", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateProposal("nobody", textActions(), "x", 24*time.Hour)
		assert.ErrorIs(t, err, governance.ErrBelowProposalThreshold)
	})

	t.Run("rejects empty action list", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateProposal("alice", nil, "x", 24*time.Hour)
		assert.ErrorIs(t, err, governance.ErrNoActions)
	})

	t.Run("rejects malformed action", func(t *testing.T) {
		f := newFixture(t)
		actions := []governance.Action{{Kind: governance.ActionKindTreasuryWithdraw}}
		_, err := f.service.CreateProposal("alice", actions, "x", 24*time.Hour)
		assert.ErrorIs(t, err, governance.ErrInvalidAction)
	})

	t.Run("rejects voting period out of bounds", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateProposal("alice", textActions(), "x", time.Hour)
		assert.ErrorIs(t, err, governance.ErrInvalidVotingPeriod)

		_, err = f.service.CreateProposal("alice", textActions(), "x", 30*24*time.Hour)
		assert.ErrorIs(t, err, governance.ErrInvalidVotingPeriod)
	})

	t.Run("new proposal is active immediately", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)
		state, err := f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateActive, state)
	})
}

func TestVoting(t *testing.T) {
	t.Run("succeeds with quorum and majority", func(t *testing.T) {
		// Scenario: 500k for, 300k against, 200k abstain against a 400k
		// quorum resolves to succeeded.
		f := newFixture(t)
		id := f.createProposal(t)

		require.NoError(t, f.service.CastVote("alice", id, governance.VoteFor, ""))
		require.NoError(t, f.service.CastVote("bob", id, governance.VoteAgainst, ""))
		require.NoError(t, f.service.CastVote("carol", id, governance.VoteAbstain, "no opinion"))

		tally, err := f.service.Tally(id)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(500_000), tally.ForVotes)
		assert.Equal(t, big.NewInt(300_000), tally.AgainstVotes)
		assert.Equal(t, big.NewInt(200_000), tally.AbstainVotes)
		assert.True(t, tally.QuorumReached)

		f.clock.Advance(25 * time.Hour)
		state, err := f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateSucceeded, state)
	})

	t.Run("defeated without quorum", func(t *testing.T) {
		// Only the 200k abstain voter participates; 200k < 400k quorum.
		f := newFixture(t)
		id := f.createProposal(t)

		require.NoError(t, f.service.CastVote("carol", id, governance.VoteAbstain, ""))

		f.clock.Advance(25 * time.Hour)
		state, err := f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateDefeated, state)
	})

	t.Run("defeated when against wins", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		require.NoError(t, f.service.CastVote("bob", id, governance.VoteFor, ""))
		require.NoError(t, f.service.CastVote("alice", id, governance.VoteAgainst, ""))

		f.clock.Advance(25 * time.Hour)
		state, err := f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateDefeated, state)
	})

	t.Run("rejects double vote", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		require.NoError(t, f.service.CastVote("alice", id, governance.VoteFor, ""))
		err := f.service.CastVote("alice", id, governance.VoteAgainst, "changed my mind")
		assert.ErrorIs(t, err, governance.ErrAlreadyVoted)

		// The tally still reflects only the first vote.
		tally, tallyErr := f.service.Tally(id)
		require.NoError(t, tallyErr)
		assert.Equal(t, big.NewInt(500_000), tally.ForVotes)
		assert.Equal(t, int64(0), tally.AgainstVotes.Int64())
	})

	t.Run("rejects invalid vote type", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)
		err := f.service.CastVote("alice", id, governance.VoteType(9), "")
		assert.ErrorIs(t, err, governance.ErrInvalidVoteType)
	})

	t.Run("rejects vote after the window", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		f.clock.Advance(25 * time.Hour)
		err := f.service.CastVote("alice", id, governance.VoteFor, "")
		assert.ErrorIs(t, err, governance.ErrProposalNotActive)
	})

	t.Run("receipt snapshots weight at cast", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		require.NoError(t, f.service.CastVote("alice", id, governance.VoteFor, ""))
		// Moving tokens after voting does not change the receipt.
		require.NoError(t, f.tokens.Transfer("alice", "bob", big.NewInt(400_000)))

		receipt, err := f.service.GetReceipt(id, "alice")
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(500_000), receipt.Votes)
		assert.Equal(t, governance.VoteFor, receipt.Choice)
	})

	t.Run("unknown proposal", func(t *testing.T) {
		f := newFixture(t)
		err := f.service.CastVote("alice", 42, governance.VoteFor, "")
		assert.ErrorIs(t, err, governance.ErrProposalNotFound)
	})
}

func TestExecution(t *testing.T) {
	// fundTreasury moves 100k from the whale into custody.
	fundTreasury := func(t *testing.T, f *fixture) {
		t.Helper()
		require.NoError(t, f.ledger.Deposit("whale", "GOV", big.NewInt(100_000)))
	}

	withdrawActions := func(amount int64) []governance.Action {
		return []governance.Action{{
			Kind: governance.ActionKindTreasuryWithdraw,
			TreasuryWithdraw: &governance.TreasuryWithdraw{
				Asset:     "GOV",
				Recipient: "carol",
				Amount:    big.NewInt(amount),
			},
		}}
	}

	// passProposal votes it through and advances past the execution delay.
	passProposal := func(t *testing.T, f *fixture, id uint64) {
		t.Helper()
		require.NoError(t, f.service.CastVote("alice", id, governance.VoteFor, ""))
		require.NoError(t, f.service.CastVote("whale", id, governance.VoteFor, ""))
		f.clock.Advance(24*time.Hour + 25*time.Hour) // past endTime + executionDelay
	}

	t.Run("queued proposal executes once", func(t *testing.T) {
		f := newFixture(t)
		fundTreasury(t, f)

		id, err := f.service.CreateProposal("alice", withdrawActions(60_000), "grant", 24*time.Hour)
		require.NoError(t, err)
		passProposal(t, f, id)

		state, err := f.service.State(id)
		require.NoError(t, err)
		require.Equal(t, governance.StateQueued, state)

		require.NoError(t, f.service.ExecuteProposal("anyone", id))

		balance, err := f.tokens.BalanceOf("carol")
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(260_000), balance)
		assert.Equal(t, big.NewInt(40_000), f.ledger.Balance("GOV"))

		state, err = f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateExecuted, state)

		// One-shot: a second execution fails.
		err = f.service.ExecuteProposal("anyone", id)
		assert.ErrorIs(t, err, governance.ErrAlreadyExecuted)
	})

	t.Run("execution is all or nothing", func(t *testing.T) {
		f := newFixture(t)
		fundTreasury(t, f)

		actions := append(withdrawActions(60_000), governance.Action{
			Kind: governance.ActionKindModuleCall,
			ModuleCall: &governance.ModuleCall{
				Module: "oracle",
				Method: "refresh",
			},
		})
		id, err := f.service.CreateProposal("alice", actions, "grant+call", 24*time.Hour)
		require.NoError(t, err)
		passProposal(t, f, id)

		f.dispatcher.err = errors.New("module unavailable")
		err = f.service.ExecuteProposal("anyone", id)
		require.Error(t, err)

		// The withdrawal was rolled back and the proposal stays queued.
		assert.Equal(t, big.NewInt(100_000), f.ledger.Balance("GOV"))
		balance, err := f.tokens.BalanceOf("carol")
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(200_000), balance)

		state, err := f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateQueued, state)

		// Retrying after the downstream recovers succeeds.
		f.dispatcher.err = nil
		require.NoError(t, f.service.ExecuteProposal("anyone", id))
		assert.Equal(t, big.NewInt(40_000), f.ledger.Balance("GOV"))
	})

	t.Run("expired proposal is unexecutable", func(t *testing.T) {
		f := newFixture(t)
		fundTreasury(t, f)

		id, err := f.service.CreateProposal("alice", withdrawActions(60_000), "grant", 24*time.Hour)
		require.NoError(t, err)
		passProposal(t, f, id)

		f.clock.Advance(8 * 24 * time.Hour) // past eta + executionPeriod

		state, err := f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateExpired, state)

		err = f.service.ExecuteProposal("anyone", id)
		assert.ErrorIs(t, err, governance.ErrProposalNotQueued)
	})

	t.Run("cannot execute before the delay", func(t *testing.T) {
		f := newFixture(t)
		fundTreasury(t, f)

		id, err := f.service.CreateProposal("alice", withdrawActions(60_000), "grant", 24*time.Hour)
		require.NoError(t, err)
		require.NoError(t, f.service.CastVote("alice", id, governance.VoteFor, ""))
		require.NoError(t, f.service.CastVote("whale", id, governance.VoteFor, ""))
		f.clock.Advance(25 * time.Hour) // past endTime, inside executionDelay

		err = f.service.ExecuteProposal("anyone", id)
		assert.ErrorIs(t, err, governance.ErrProposalNotQueued)
	})

	t.Run("parameter update installs a new version", func(t *testing.T) {
		f := newFixture(t)

		params := *f.service.Parameters()
		params.QuorumBps = 1000
		id, err := f.service.CreateProposal("alice", []governance.Action{{
			Kind:            governance.ActionKindParameterUpdate,
			ParameterUpdate: &governance.ParameterUpdate{Parameters: params},
		}}, "raise quorum", 24*time.Hour)
		require.NoError(t, err)
		passProposal(t, f, id)

		require.NoError(t, f.service.ExecuteProposal("anyone", id))

		installed := f.service.Parameters()
		assert.Equal(t, uint64(1000), installed.QuorumBps)
		assert.Equal(t, uint64(2), installed.Version)
	})
}

func TestCancellation(t *testing.T) {
	t.Run("proposer cancels while active", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		require.NoError(t, f.service.CancelProposal("alice", id))

		state, err := f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateCanceled, state)

		// Canceled proposals reject votes and re-cancellation.
		assert.ErrorIs(t, f.service.CastVote("bob", id, governance.VoteFor, ""), governance.ErrProposalNotActive)
		assert.ErrorIs(t, f.service.CancelProposal("alice", id), governance.ErrAlreadyCanceled)
	})

	t.Run("third party cannot cancel while proposer holds threshold", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		err := f.service.CancelProposal("bob", id)
		assert.ErrorIs(t, err, governance.ErrNotProposer)
	})

	t.Run("anyone cancels once proposer drops below threshold", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		// The proposer squats with almost no remaining weight.
		require.NoError(t, f.tokens.Transfer("alice", "bob", big.NewInt(450_000)))

		require.NoError(t, f.service.CancelProposal("bob", id))
		state, err := f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateCanceled, state)
	})

	t.Run("cannot cancel after resolution", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		f.clock.Advance(25 * time.Hour)
		err := f.service.CancelProposal("alice", id)
		assert.ErrorIs(t, err, governance.ErrNotCancelable)
	})

	t.Run("cancel removes from active index", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)
		keep := f.createProposal(t)

		require.NoError(t, f.service.CancelProposal("alice", id))

		active, err := f.service.ActiveProposals()
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, keep, active[0].ID)
	})
}

func TestGuardianCancel(t *testing.T) {
	t.Run("two of three guardians cancel", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		require.NoError(t, f.service.VoteToCancel("g1", id, "compromised proposer"))
		state, err := f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateActive, state)

		require.NoError(t, f.service.VoteToCancel("g2", id, "agreed"))
		state, err = f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateCanceled, state)

		// A third vote arrives after cancellation took effect.
		err = f.service.VoteToCancel("g3", id, "late")
		assert.ErrorIs(t, err, governance.ErrNotCancelable)

		votes, err := f.service.GuardianVotes(id)
		require.NoError(t, err)
		assert.Len(t, votes, 2)
	})

	t.Run("rejects non-guardian", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		err := f.service.VoteToCancel("alice", id, "")
		assert.ErrorIs(t, err, governance.ErrNotGuardian)
	})

	t.Run("rejects duplicate guardian vote", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		require.NoError(t, f.service.VoteToCancel("g1", id, ""))
		err := f.service.VoteToCancel("g1", id, "again")
		assert.ErrorIs(t, err, governance.ErrGuardianAlreadyVoted)
	})

	t.Run("rejects vote after emergency window", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.CreateProposal("alice", textActions(), "slow one", 72*time.Hour)
		require.NoError(t, err)

		f.clock.Advance(49 * time.Hour) // still active, window is 48h

		state, err := f.service.State(id)
		require.NoError(t, err)
		require.Equal(t, governance.StateActive, state)

		err = f.service.VoteToCancel("g1", id, "")
		assert.ErrorIs(t, err, governance.ErrEmergencyWindowClosed)
	})

	t.Run("guardian management is admin only", func(t *testing.T) {
		f := newFixture(t)

		assert.ErrorIs(t, f.service.AddGuardian("alice", "g4"), governance.ErrNotAdmin)
		assert.ErrorIs(t, f.service.RemoveGuardian("alice", "g1"), governance.ErrNotAdmin)
		assert.ErrorIs(t, f.service.SetRequiredGuardians("alice", 1), governance.ErrNotAdmin)

		require.NoError(t, f.service.AddGuardian("admin", "g4"))
		assert.Contains(t, f.service.Guardians(), "g4")

		require.NoError(t, f.service.RemoveGuardian("admin", "g4"))
		assert.NotContains(t, f.service.Guardians(), "g4")
	})

	t.Run("quorum change applies to later votes", func(t *testing.T) {
		f := newFixture(t)
		id := f.createProposal(t)

		require.NoError(t, f.service.SetRequiredGuardians("admin", 1))
		require.NoError(t, f.service.VoteToCancel("g1", id, ""))

		state, err := f.service.State(id)
		require.NoError(t, err)
		assert.Equal(t, governance.StateCanceled, state)
	})
}

func TestParameterFastPath(t *testing.T) {
	newParams := func(f *fixture) governance.Parameters {
		params := *f.service.Parameters()
		params.QuorumBps = 800
		return params
	}

	t.Run("schedule and execute after the delay", func(t *testing.T) {
		f := newFixture(t)

		change, err := f.service.ScheduleParameterChange("admin", newParams(f))
		require.NoError(t, err)
		assert.Equal(t, f.clock.Now().Add(24*time.Hour), change.ETA)
		require.NotNil(t, f.service.PendingParameterChange())

		// Too early.
		_, err = f.service.ExecuteParameterChange("admin")
		assert.ErrorIs(t, err, governance.ErrChangeNotReady)

		f.clock.Advance(25 * time.Hour)
		installed, err := f.service.ExecuteParameterChange("admin")
		require.NoError(t, err)
		assert.Equal(t, uint64(800), installed.QuorumBps)
		assert.Equal(t, uint64(2), installed.Version)
		assert.Nil(t, f.service.PendingParameterChange())
	})

	t.Run("single slot", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.ScheduleParameterChange("admin", newParams(f))
		require.NoError(t, err)

		_, err = f.service.ScheduleParameterChange("admin", newParams(f))
		assert.ErrorIs(t, err, governance.ErrChangePending)

		// Canceling frees the slot.
		require.NoError(t, f.service.CancelParameterChange("admin"))
		_, err = f.service.ScheduleParameterChange("admin", newParams(f))
		assert.NoError(t, err)
	})

	t.Run("admin only", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.ScheduleParameterChange("alice", newParams(f))
		assert.ErrorIs(t, err, governance.ErrNotAdmin)
		_, err = f.service.ExecuteParameterChange("alice")
		assert.ErrorIs(t, err, governance.ErrNotAdmin)
		assert.ErrorIs(t, f.service.CancelParameterChange("alice"), governance.ErrNotAdmin)
	})

	t.Run("rejects invalid parameter set", func(t *testing.T) {
		f := newFixture(t)

		params := newParams(f)
		params.QuorumBps = 20_000
		_, err := f.service.ScheduleParameterChange("admin", params)
		assert.ErrorIs(t, err, governance.ErrInvalidParameters)
	})

	t.Run("nothing scheduled", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.ExecuteParameterChange("admin")
		assert.ErrorIs(t, err, governance.ErrNoChangePending)
		assert.ErrorIs(t, f.service.CancelParameterChange("admin"), governance.ErrNoChangePending)
	})
}

func TestWindowStartWeightPolicy(t *testing.T) {
	clock := newFakeClock()
	tokens := token.NewSystem("GOV")
	tokens.SetClock(clock.Now)
	require.NoError(t, tokens.Mint("alice", big.NewInt(500_000)))
	require.NoError(t, tokens.Mint("bob", big.NewInt(9_500_000)))

	ledger := treasury.NewLedger("treasury", tokens, nil)
	exec := executor.NewExecutor(ledger, nil, nil, nil)

	service := governance.NewService(store.NewMemoryStore(), exec, tokens, nil, governance.ServiceConfig{
		Admin:        "admin",
		WeightPolicy: governance.WeightPolicyWindowStart,
		Now:          clock.Now,
	})

	id, err := service.CreateProposal("alice", []governance.Action{{
		Kind:            governance.ActionKindParameterUpdate,
		ParameterUpdate: &governance.ParameterUpdate{Parameters: *governance.DefaultParameters()},
	}}, "x", 24*time.Hour)
	require.NoError(t, err)

	// alice moves her tokens to bob after the window opened; bob votes with
	// his window-start balance, not the inflated live one.
	clock.Advance(time.Hour)
	require.NoError(t, tokens.Transfer("alice", "bob", big.NewInt(500_000)))

	require.NoError(t, service.CastVote("bob", id, governance.VoteFor, ""))
	receipt, err := service.GetReceipt(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(9_500_000), receipt.Votes)
}
