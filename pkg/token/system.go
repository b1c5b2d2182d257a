// Package token provides the reference value-token collaborator: big.Int
// balances, explicit supply tracking and per-account balance checkpoints
// for historical weight queries. The governance engine only consumes the
// interfaces this package happens to satisfy; it never depends on the
// internals.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"
)

// ErrInsufficientBalance indicates a transfer exceeding the sender's balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// checkpoint records an account's balance as of a point in time.
type checkpoint struct {
	at      time.Time
	balance *big.Int
}

// System represents the token system for a single fungible asset.
type System struct {
	symbol      string
	mutex       sync.RWMutex
	balances    map[string]*big.Int
	totalSupply *big.Int
	checkpoints map[string][]checkpoint
	now         func() time.Time
}

// NewSystem creates a token system for the asset identified by symbol.
func NewSystem(symbol string) *System {
	return &System{
		symbol:      symbol,
		balances:    make(map[string]*big.Int),
		totalSupply: new(big.Int),
		checkpoints: make(map[string][]checkpoint),
		now:         time.Now,
	}
}

// SetClock overrides the checkpoint clock. Intended for tests.
func (s *System) SetClock(now func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
}

// Symbol returns the asset symbol this system manages.
func (s *System) Symbol() string {
	return s.symbol
}

// BalanceOf returns the balance of an address.
func (s *System) BalanceOf(address string) (*big.Int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if balance, exists := s.balances[address]; exists {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int), nil
}

// BalanceOfAt returns the balance an address held at the given instant,
// read from the checkpoint history. Accounts with no checkpoint before the
// instant held zero.
func (s *System) BalanceOfAt(address string, at time.Time) (*big.Int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	history := s.checkpoints[address]
	// First checkpoint strictly after the instant; the one before it holds.
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].at.After(at)
	})
	if idx == 0 {
		return new(big.Int), nil
	}
	return new(big.Int).Set(history[idx-1].balance), nil
}

// TotalSupply returns the minted supply.
func (s *System) TotalSupply() (*big.Int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return new(big.Int).Set(s.totalSupply), nil
}

// Mint creates new tokens for an address, growing the total supply.
func (s *System) Mint(address string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("mint amount must be positive")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.setBalance(address, new(big.Int).Add(s.balance(address), amount))
	s.totalSupply.Add(s.totalSupply, amount)
	return nil
}

// Transfer moves tokens between addresses.
func (s *System) Transfer(from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("transfer amount must be positive")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	fromBalance := s.balance(from)
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	s.setBalance(from, new(big.Int).Sub(fromBalance, amount))
	s.setBalance(to, new(big.Int).Add(s.balance(to), amount))
	return nil
}

// TransferAsset implements the treasury asset-transfer primitive for the
// one asset this system manages.
func (s *System) TransferAsset(asset, from, to string, amount *big.Int) error {
	if asset != s.symbol {
		return fmt.Errorf("unknown asset %q", asset)
	}
	return s.Transfer(from, to, amount)
}

// balance returns the live balance without copying. Caller holds the lock.
func (s *System) balance(address string) *big.Int {
	if balance, exists := s.balances[address]; exists {
		return balance
	}
	return new(big.Int)
}

// setBalance updates a balance and appends a checkpoint. Caller holds the
// lock.
func (s *System) setBalance(address string, balance *big.Int) {
	s.balances[address] = balance
	s.checkpoints[address] = append(s.checkpoints[address], checkpoint{
		at:      s.now(),
		balance: new(big.Int).Set(balance),
	})
}
