// Package staking provides the reference staking collaborator consumed by
// the voting power oracle: per-account stake positions plus the multiplier
// parameters. Pool accounting, rewards and unbonding live elsewhere; the
// oracle only needs amounts and start times.
package staking

import (
	"errors"
	"math/big"
	"sync"
	"time"
)

// Position is a single stake held by an account.
type Position struct {
	Amount    *big.Int
	StartTime time.Time
}

// Manager manages stake positions and the bonus multiplier parameters.
type Manager struct {
	mutex            sync.RWMutex
	positions        map[string][]Position
	maxMultiplierBps uint64
	maxStakingPeriod time.Duration
}

// NewManager creates a staking manager. maxMultiplierBps is the fully aged
// weight multiplier in basis points (e.g. 25000 for 2.5x); maxStakingPeriod
// is the stake age at which it caps out.
func NewManager(maxMultiplierBps uint64, maxStakingPeriod time.Duration) *Manager {
	return &Manager{
		positions:        make(map[string][]Position),
		maxMultiplierBps: maxMultiplierBps,
		maxStakingPeriod: maxStakingPeriod,
	}
}

// Stake opens a new position for an account.
func (m *Manager) Stake(account string, amount *big.Int, startTime time.Time) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("stake amount must be positive")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.positions[account] = append(m.positions[account], Position{
		Amount:    new(big.Int).Set(amount),
		StartTime: startTime,
	})
	return nil
}

// Unstake removes all positions for an account.
func (m *Manager) Unstake(account string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.positions, account)
}

// Positions returns the account's open stake positions.
func (m *Manager) Positions(account string) ([]Position, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	positions := m.positions[account]
	out := make([]Position, len(positions))
	for i, pos := range positions {
		out[i] = Position{
			Amount:    new(big.Int).Set(pos.Amount),
			StartTime: pos.StartTime,
		}
	}
	return out, nil
}

// MaxMultiplierBps returns the fully aged multiplier in basis points.
func (m *Manager) MaxMultiplierBps() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.maxMultiplierBps
}

// MaxStakingPeriod returns the age at which the multiplier caps out.
func (m *Manager) MaxStakingPeriod() time.Duration {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.maxStakingPeriod
}

// SetMultiplier updates the multiplier parameters.
func (m *Manager) SetMultiplier(maxBps uint64, maxPeriod time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.maxMultiplierBps = maxBps
	m.maxStakingPeriod = maxPeriod
}
