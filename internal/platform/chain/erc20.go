package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// erc20ABIJSON covers the subset of the ERC20 interface the fill engine
// needs: balance and allowance reads, token metadata, and approve.
const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ERC20 is the collateral token bound contract. Approve transacts with the
// configured wallet and blocks until the transaction is mined, so a
// returned nil error means the allowance increase is acknowledged on chain.
type ERC20 struct {
	client   *Client
	wallet   *Wallet
	address  common.Address
	contract *bind.BoundContract
}

// NewERC20 binds the ERC20 at the given address. wallet may be nil for
// read-only use; Approve then fails.
func NewERC20(client *Client, wallet *Wallet, address common.Address) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parse erc20 abi: %w", err)
	}
	return &ERC20{
		client:   client,
		wallet:   wallet,
		address:  address,
		contract: bind.NewBoundContract(address, parsed, client.eth, client.eth, client.eth),
	}, nil
}

// Address returns the token contract address.
func (t *ERC20) Address() common.Address {
	return t.address
}

// BalanceOf reads the owner's token balance.
func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (domain.Amount, error) {
	var out []any
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return domain.Amount{}, fmt.Errorf("chain: balanceOf %s: %w", owner.Hex(), err)
	}
	return amountFromOutput(out, "balanceOf")
}

// Allowance reads the spending authorization owner has granted spender.
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (domain.Amount, error) {
	var out []any
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender); err != nil {
		return domain.Amount{}, fmt.Errorf("chain: allowance %s->%s: %w", owner.Hex(), spender.Hex(), err)
	}
	return amountFromOutput(out, "allowance")
}

// Decimals reads the token's decimal precision. Queried once per run and
// treated as constant for the session.
func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	var out []any
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("chain: decimals: %w", err)
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chain: decimals: unexpected output type %T", out[0])
	}
	return d, nil
}

// Symbol reads the token's display symbol.
func (t *ERC20) Symbol(ctx context.Context) (string, error) {
	var out []any
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "symbol"); err != nil {
		return "", fmt.Errorf("chain: symbol: %w", err)
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("chain: symbol: unexpected output type %T", out[0])
	}
	return s, nil
}

// Approve sets the wallet's allowance for spender to value and waits until
// the transaction is mined. One blocking round trip, no retry.
func (t *ERC20) Approve(ctx context.Context, spender common.Address, value domain.Amount) error {
	if t.wallet == nil {
		return fmt.Errorf("chain: approve: no wallet configured")
	}

	opts, err := t.client.transactOpts(ctx, t.wallet)
	if err != nil {
		return err
	}

	tx, err := t.contract.Transact(opts, "approve", spender, value.Big())
	if err != nil {
		return fmt.Errorf("chain: approve %s for %s: %w", value, spender.Hex(), err)
	}

	if _, err := t.client.waitMined(ctx, tx); err != nil {
		return fmt.Errorf("chain: approve %s for %s: %w", value, spender.Hex(), err)
	}
	return nil
}

// amountFromOutput converts the single uint256 output of a view call.
func amountFromOutput(out []any, method string) (domain.Amount, error) {
	if len(out) != 1 {
		return domain.Amount{}, fmt.Errorf("chain: %s: expected 1 output, got %d", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return domain.Amount{}, fmt.Errorf("chain: %s: unexpected output type %T", method, out[0])
	}
	a, err := domain.AmountFromBig(v)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("chain: %s: %w", method, err)
	}
	return a, nil
}
