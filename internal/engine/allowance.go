// Package engine implements the signed offer fill engine: proportional
// fill arithmetic, the ordered preflight validation that mirrors the
// settlement contract's checks, and the allowance gate that sizes and
// requests spending authorization before a fill is submitted.
//
// The engine is synchronous and stateless between invocations. It holds no
// locks and caches nothing: every input is fetched fresh by the caller, and
// a race lost between preflight and submission is detected by the
// settlement contract's own authoritative re-check.
package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// allowanceBuffer is added on top of the required amount when requesting an
// allowance increase. The settlement contract recomputes the maker amount
// with its own integer division; the one-unit buffer absorbs any rounding
// discrepancy between that recomputation and ours.
const allowanceBuffer = 1

// AllowanceManager is the ERC20-style collaborator the gate drives. Approve
// acts for the wallet the implementation holds and blocks until the
// increase is acknowledged on chain.
type AllowanceManager interface {
	Allowance(ctx context.Context, owner, spender common.Address) (domain.Amount, error)
	Approve(ctx context.Context, spender common.Address, value domain.Amount) error
}

// AllowanceGate ensures a party has authorized the settlement contract to
// spend at least the required amount before a fill is attempted.
type AllowanceGate struct {
	mgr AllowanceManager
}

// NewAllowanceGate creates a gate over the given manager.
func NewAllowanceGate(mgr AllowanceManager) *AllowanceGate {
	return &AllowanceGate{mgr: mgr}
}

// EnsureAllowance checks the owner's current allowance for spender and, if
// it is below required, requests an increase to required+allowanceBuffer,
// blocks until the request is acknowledged, and re-reads. It is idempotent:
// with an already-sufficient allowance no state-changing action is taken.
// The returned value is the allowance in effect after the call. A failed
// increase surfaces as ErrAllowanceRequestFailed and is never retried here.
func (g *AllowanceGate) EnsureAllowance(ctx context.Context, owner, spender common.Address, required domain.Amount) (domain.Amount, error) {
	current, err := g.mgr.Allowance(ctx, owner, spender)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("engine: read allowance: %w", err)
	}
	if !current.Lt(required) {
		return current, nil
	}

	target, err := required.Add(domain.NewAmount(allowanceBuffer))
	if err != nil {
		return domain.Amount{}, fmt.Errorf("engine: size allowance increase: %w", err)
	}

	if err := g.mgr.Approve(ctx, spender, target); err != nil {
		return domain.Amount{}, fmt.Errorf("engine: approve %s for %s: %v: %w",
			target, spender.Hex(), err, domain.ErrAllowanceRequestFailed)
	}

	current, err = g.mgr.Allowance(ctx, owner, spender)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("engine: re-read allowance: %w", err)
	}
	if current.Lt(required) {
		return domain.Amount{}, fmt.Errorf("engine: allowance %s still below required %s after increase: %w",
			current, required, domain.ErrAllowanceRequestFailed)
	}
	return current, nil
}
