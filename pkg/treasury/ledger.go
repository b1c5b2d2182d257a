// Package treasury implements the custody ledger for assets deposited
// under the governance engine. Deposits are permissionless for allowed
// assets; withdrawals are only reachable through successful proposal
// execution, never through a direct external call path.
package treasury

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
)

var (
	// ErrAssetNotAllowed indicates a deposit of an asset that has not been
	// flagged for custody.
	ErrAssetNotAllowed = errors.New("asset not allowed for deposit")

	// ErrNonPositiveAmount indicates a zero or negative amount.
	ErrNonPositiveAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds indicates a withdrawal exceeding the custodied
	// balance.
	ErrInsufficientFunds = errors.New("insufficient treasury balance")
)

// AssetTransfer moves an asset between accounts. The value-token
// collaborator provides this primitive; the ledger never performs asset
// accounting of its own beyond the custody balances.
type AssetTransfer interface {
	TransferAsset(asset, from, to string, amount *big.Int) error
}

// Ledger tracks per-asset custodied balances and the allowed-asset flags.
type Ledger struct {
	mutex    sync.RWMutex
	account  string
	balances map[string]*big.Int
	allowed  map[string]bool
	mover    AssetTransfer
	logger   *slog.Logger
}

// NewLedger creates a ledger whose custody account is the given address.
func NewLedger(account string, mover AssetTransfer, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Ledger{
		account:  account,
		balances: make(map[string]*big.Int),
		allowed:  make(map[string]bool),
		mover:    mover,
		logger:   logger,
	}
}

// Account returns the ledger's custody account address.
func (l *Ledger) Account() string {
	return l.account
}

// AllowAsset flags an asset as accepted for deposit.
func (l *Ledger) AllowAsset(asset string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.allowed[asset] = true
}

// DisallowAsset clears an asset's deposit flag. Existing custody balances
// are unaffected.
func (l *Ledger) DisallowAsset(asset string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.allowed, asset)
}

// Allowed reports whether the asset is accepted for deposit.
func (l *Ledger) Allowed(asset string) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.allowed[asset]
}

// Balance returns the custodied balance for an asset.
func (l *Ledger) Balance(asset string) *big.Int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if balance, exists := l.balances[asset]; exists {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// Deposit pulls funds from the depositor into custody. Permissionless for
// allowed assets.
func (l *Ledger) Deposit(from, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.allowed[asset] {
		return ErrAssetNotAllowed
	}
	if err := l.mover.TransferAsset(asset, from, l.account, amount); err != nil {
		return err
	}
	l.credit(asset, amount)

	l.logger.Info("treasury deposit", "asset", asset, "from", from, "amount", amount.String())
	return nil
}

// Withdraw releases custodied funds to a recipient. This is only reachable
// as the effect of an executed proposal's action list; the HTTP facade has
// no route to it. The balance can never go negative.
func (l *Ledger) Withdraw(recipient, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	balance := l.balances[asset]
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	if err := l.mover.TransferAsset(asset, l.account, recipient, amount); err != nil {
		return err
	}
	balance.Sub(balance, amount)

	l.logger.Info("treasury withdrawal", "asset", asset, "recipient", recipient, "amount", amount.String())
	return nil
}

// Reclaim pulls a previous withdrawal back into custody. Used by the
// executor to roll back a failed execution; the allowed-asset flag is
// deliberately not checked.
func (l *Ledger) Reclaim(from, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if err := l.mover.TransferAsset(asset, from, l.account, amount); err != nil {
		return err
	}
	l.credit(asset, amount)

	l.logger.Warn("treasury reclaim", "asset", asset, "from", from, "amount", amount.String())
	return nil
}

// credit increases a custody balance. Caller holds the lock.
func (l *Ledger) credit(asset string, amount *big.Int) {
	balance := l.balances[asset]
	if balance == nil {
		balance = new(big.Int)
		l.balances[asset] = balance
	}
	balance.Add(balance, amount)
}
