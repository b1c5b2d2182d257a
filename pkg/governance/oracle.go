package governance

import (
	"fmt"
	"math/big"
	"time"

	"github.com/parolabs/governor/pkg/staking"
)

// WeightPolicy selects when a voter's weight is evaluated.
type WeightPolicy int

const (
	// WeightPolicyLive evaluates balance and stake at the moment the vote
	// is cast. This matches the original behavior and is the default; it
	// is exposed to the known hazard that weight can be moved between
	// accounts mid-vote.
	WeightPolicyLive WeightPolicy = iota

	// WeightPolicyWindowStart evaluates weight as of the proposal's
	// startTime, using the token's balance checkpoints when available.
	WeightPolicyWindowStart
)

// VotingPowerOracle computes an account's effective voting weight: token
// balance plus a bounded staking-duration bonus. It holds no state of its
// own and only reads the two collaborators.
type VotingPowerOracle struct {
	tokens  TokenSystem
	staking StakingSystem // nil when staking integration is not configured
}

// NewVotingPowerOracle creates an oracle over the given collaborators.
// staking may be nil, in which case weight is the bare balance.
func NewVotingPowerOracle(tokens TokenSystem, staking StakingSystem) *VotingPowerOracle {
	return &VotingPowerOracle{
		tokens:  tokens,
		staking: staking,
	}
}

// Power returns the account's live voting weight.
func (o *VotingPowerOracle) Power(account string, now time.Time) (*big.Int, error) {
	balance, err := o.tokens.BalanceOf(account)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return o.withBonus(account, balance, now)
}

// PowerAt returns the account's voting weight as of the given instant.
// The balance is read from the token's checkpoints when the token supports
// historical queries; otherwise the live balance is used.
func (o *VotingPowerOracle) PowerAt(account string, at time.Time) (*big.Int, error) {
	if history, ok := o.tokens.(BalanceHistory); ok {
		balance, err := history.BalanceOfAt(account, at)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance at %s: %w", at, err)
		}
		return o.withBonus(account, balance, at)
	}
	return o.Power(account, at)
}

// withBonus adds the staking bonus, aged to the given instant, to balance.
func (o *VotingPowerOracle) withBonus(account string, balance *big.Int, at time.Time) (*big.Int, error) {
	weight := new(big.Int).Set(balance)
	if o.staking == nil {
		return weight, nil
	}

	positions, err := o.staking.Positions(account)
	if err != nil {
		return nil, fmt.Errorf("failed to get stake positions: %w", err)
	}
	maxBps := o.staking.MaxMultiplierBps()
	maxPeriod := o.staking.MaxStakingPeriod()
	if maxBps <= bpsDenominator || maxPeriod <= 0 {
		return weight, nil
	}

	for _, pos := range positions {
		weight.Add(weight, stakeBonus(pos, maxBps, maxPeriod, at))
	}
	return weight, nil
}

// stakeBonus computes the bonus for one position: it scales linearly from
// zero at the stake start to amount*(maxMultiplier-1) once the stake has
// aged maxPeriod, capped at that maximum afterward.
func stakeBonus(pos staking.Position, maxBps uint64, maxPeriod time.Duration, at time.Time) *big.Int {
	if pos.Amount == nil || pos.Amount.Sign() <= 0 {
		return new(big.Int)
	}
	elapsed := at.Sub(pos.StartTime)
	if elapsed <= 0 {
		return new(big.Int)
	}
	if elapsed > maxPeriod {
		elapsed = maxPeriod
	}

	// amount * (maxBps - 10000) * elapsed / (10000 * maxPeriod)
	bonus := new(big.Int).Mul(pos.Amount, new(big.Int).SetUint64(maxBps-bpsDenominator))
	bonus.Mul(bonus, big.NewInt(int64(elapsed)))
	bonus.Div(bonus, big.NewInt(int64(maxPeriod)))
	return bonus.Div(bonus, big.NewInt(bpsDenominator))
}
