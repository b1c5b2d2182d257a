// Package executor performs the action lists of queued proposals.
// Execution is all-or-nothing: treasury mutations are applied locally and
// undone if a later action fails, so a half-executed proposal can never be
// observed.
package executor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/parolabs/governor/pkg/governance"
	"github.com/parolabs/governor/pkg/treasury"
)

// ErrNilProposal indicates Execute or Validate was called without a proposal.
var ErrNilProposal = errors.New("proposal is nil")

// Executor implements governance.ProposalExecutor over the treasury ledger,
// the module registry and the outbound call dispatcher.
type Executor struct {
	ledger     *treasury.Ledger
	registry   governance.ModuleRegistry
	dispatcher governance.CallDispatcher
	logger     *slog.Logger
}

// NewExecutor creates an executor. registry and dispatcher may be nil when
// module-call actions are not in use; such actions then fail validation.
func NewExecutor(ledger *treasury.Ledger, registry governance.ModuleRegistry, dispatcher governance.CallDispatcher, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Executor{
		ledger:     ledger,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Validate checks that every action in the proposal could be performed
// right now: treasury withdrawals fit the custodied balances (cumulatively
// per asset), parameter updates are consistent, and module calls resolve.
func (e *Executor) Validate(proposal *governance.Proposal) error {
	if proposal == nil {
		return ErrNilProposal
	}
	if len(proposal.Actions) == 0 {
		return governance.ErrNoActions
	}

	needed := make(map[string]*big.Int)
	for i := range proposal.Actions {
		action := &proposal.Actions[i]
		if err := action.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}

		switch action.Kind {
		case governance.ActionKindTreasuryWithdraw:
			w := action.TreasuryWithdraw
			total := needed[w.Asset]
			if total == nil {
				total = new(big.Int)
				needed[w.Asset] = total
			}
			total.Add(total, w.Amount)
			if e.ledger.Balance(w.Asset).Cmp(total) < 0 {
				return fmt.Errorf("action %d: %w", i, treasury.ErrInsufficientFunds)
			}
		case governance.ActionKindModuleCall:
			if e.registry == nil || e.dispatcher == nil {
				return fmt.Errorf("action %d: module calls are not configured", i)
			}
			if _, err := e.registry.Resolve(action.ModuleCall.Module); err != nil {
				return fmt.Errorf("action %d: %w", i, err)
			}
		}
	}
	return nil
}

// Execute performs the proposal's actions in index order. The first failure
// rolls back every treasury mutation made so far and returns the cause;
// parameter updates are returned to the caller for installation so they
// become visible only on full success.
func (e *Executor) Execute(proposal *governance.Proposal) (*governance.ExecutionResult, error) {
	if proposal == nil {
		return nil, ErrNilProposal
	}

	result := &governance.ExecutionResult{}
	var undo []func() error

	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			if err := undo[i](); err != nil {
				e.logger.Error("execution rollback step failed",
					"proposal_id", proposal.ID, "error", err)
			}
		}
	}

	for i := range proposal.Actions {
		action := &proposal.Actions[i]

		var err error
		switch action.Kind {
		case governance.ActionKindTreasuryWithdraw:
			err = e.executeTreasuryWithdraw(action.TreasuryWithdraw, &undo)
		case governance.ActionKindParameterUpdate:
			params := action.ParameterUpdate.Parameters
			result.UpdatedParameters = &params
		case governance.ActionKindModuleCall:
			err = e.executeModuleCall(action.ModuleCall)
		default:
			err = governance.ErrInvalidAction
		}
		if err != nil {
			rollback()
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
	}
	return result, nil
}

func (e *Executor) executeTreasuryWithdraw(w *governance.TreasuryWithdraw, undo *[]func() error) error {
	if err := e.ledger.Withdraw(w.Recipient, w.Asset, w.Amount); err != nil {
		return err
	}

	asset, recipient := w.Asset, w.Recipient
	amount := new(big.Int).Set(w.Amount)
	*undo = append(*undo, func() error {
		return e.ledger.Reclaim(recipient, asset, amount)
	})
	return nil
}

func (e *Executor) executeModuleCall(c *governance.ModuleCall) error {
	if e.registry == nil || e.dispatcher == nil {
		return errors.New("module calls are not configured")
	}

	target, err := e.registry.Resolve(c.Module)
	if err != nil {
		return fmt.Errorf("failed to resolve module %q: %w", c.Module, err)
	}
	if _, err := e.dispatcher.Call(target, c.Method, c.Args); err != nil {
		return fmt.Errorf("call to %s.%s failed: %w", c.Module, c.Method, err)
	}
	return nil
}
