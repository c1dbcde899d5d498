package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// settlementABIJSON is the external surface of the deployed Meridian
// settlement contract used by this bot: per-kind offer state views and fill
// methods, plus the OfferFilled event carrying the resulting pool id.
const settlementABIJSON = `[
	{"type":"function","name":"getOfferStateCreatePool","stateMutability":"view","inputs":[
		{"name":"offer","type":"tuple","components":[
			{"name":"maker","type":"address"},{"name":"taker","type":"address"},
			{"name":"makerCollateralAmount","type":"uint256"},{"name":"takerCollateralAmount","type":"uint256"},
			{"name":"minimumTakerFillAmount","type":"uint256"},{"name":"expiry","type":"uint256"},
			{"name":"salt","type":"uint256"}]},
		{"name":"signature","type":"bytes"}],
	"outputs":[{"name":"status","type":"uint8"},{"name":"takerFilledAmount","type":"uint256"},{"name":"actualTakerFillableAmount","type":"uint256"},{"name":"isValidInputParams","type":"bool"}]},
	{"type":"function","name":"getOfferStateAddLiquidity","stateMutability":"view","inputs":[
		{"name":"offer","type":"tuple","components":[
			{"name":"maker","type":"address"},{"name":"taker","type":"address"},
			{"name":"makerCollateralAmount","type":"uint256"},{"name":"takerCollateralAmount","type":"uint256"},
			{"name":"minimumTakerFillAmount","type":"uint256"},{"name":"expiry","type":"uint256"},
			{"name":"poolId","type":"uint256"},{"name":"salt","type":"uint256"}]},
		{"name":"signature","type":"bytes"}],
	"outputs":[{"name":"status","type":"uint8"},{"name":"takerFilledAmount","type":"uint256"},{"name":"actualTakerFillableAmount","type":"uint256"},{"name":"isValidInputParams","type":"bool"}]},
	{"type":"function","name":"getOfferStateRemoveLiquidity","stateMutability":"view","inputs":[
		{"name":"offer","type":"tuple","components":[
			{"name":"maker","type":"address"},{"name":"taker","type":"address"},
			{"name":"makerCollateralAmount","type":"uint256"},{"name":"positionTokenAmount","type":"uint256"},
			{"name":"minimumTakerFillAmount","type":"uint256"},{"name":"expiry","type":"uint256"},
			{"name":"poolId","type":"uint256"},{"name":"salt","type":"uint256"}]},
		{"name":"signature","type":"bytes"}],
	"outputs":[{"name":"status","type":"uint8"},{"name":"takerFilledAmount","type":"uint256"},{"name":"actualTakerFillableAmount","type":"uint256"},{"name":"isValidInputParams","type":"bool"}]},
	{"type":"function","name":"fillOfferCreatePool","stateMutability":"nonpayable","inputs":[
		{"name":"offer","type":"tuple","components":[
			{"name":"maker","type":"address"},{"name":"taker","type":"address"},
			{"name":"makerCollateralAmount","type":"uint256"},{"name":"takerCollateralAmount","type":"uint256"},
			{"name":"minimumTakerFillAmount","type":"uint256"},{"name":"expiry","type":"uint256"},
			{"name":"salt","type":"uint256"}]},
		{"name":"signature","type":"bytes"},{"name":"takerFillAmount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"fillOfferAddLiquidity","stateMutability":"nonpayable","inputs":[
		{"name":"offer","type":"tuple","components":[
			{"name":"maker","type":"address"},{"name":"taker","type":"address"},
			{"name":"makerCollateralAmount","type":"uint256"},{"name":"takerCollateralAmount","type":"uint256"},
			{"name":"minimumTakerFillAmount","type":"uint256"},{"name":"expiry","type":"uint256"},
			{"name":"poolId","type":"uint256"},{"name":"salt","type":"uint256"}]},
		{"name":"signature","type":"bytes"},{"name":"takerFillAmount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"fillOfferRemoveLiquidity","stateMutability":"nonpayable","inputs":[
		{"name":"offer","type":"tuple","components":[
			{"name":"maker","type":"address"},{"name":"taker","type":"address"},
			{"name":"makerCollateralAmount","type":"uint256"},{"name":"positionTokenAmount","type":"uint256"},
			{"name":"minimumTakerFillAmount","type":"uint256"},{"name":"expiry","type":"uint256"},
			{"name":"poolId","type":"uint256"},{"name":"salt","type":"uint256"}]},
		{"name":"signature","type":"bytes"},{"name":"takerFillAmount","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"OfferFilled","inputs":[
		{"name":"offerHash","type":"bytes32","indexed":true},
		{"name":"taker","type":"address","indexed":true},
		{"name":"takerFillAmount","type":"uint256","indexed":false},
		{"name":"poolId","type":"uint256","indexed":false}],"anonymous":false}
]`

// createPoolOffer mirrors the settlement contract's create-pool offer tuple.
type createPoolOffer struct {
	Maker                  common.Address
	Taker                  common.Address
	MakerCollateralAmount  *big.Int
	TakerCollateralAmount  *big.Int
	MinimumTakerFillAmount *big.Int
	Expiry                 *big.Int
	Salt                   *big.Int
}

// addLiquidityOffer mirrors the add-liquidity offer tuple.
type addLiquidityOffer struct {
	Maker                  common.Address
	Taker                  common.Address
	MakerCollateralAmount  *big.Int
	TakerCollateralAmount  *big.Int
	MinimumTakerFillAmount *big.Int
	Expiry                 *big.Int
	PoolId                 *big.Int
	Salt                   *big.Int
}

// removeLiquidityOffer mirrors the remove-liquidity offer tuple.
type removeLiquidityOffer struct {
	Maker                  common.Address
	Taker                  common.Address
	MakerCollateralAmount  *big.Int
	PositionTokenAmount    *big.Int
	MinimumTakerFillAmount *big.Int
	Expiry                 *big.Int
	PoolId                 *big.Int
	Salt                   *big.Int
}

// Settlement is the deployed settlement contract. It implements the fill
// engine's state reader (OfferState) and the fill submitter (FillOffer).
// The contract is authoritative for offer status and cumulative fills; this
// type never caches a view result.
type Settlement struct {
	client   *Client
	wallet   *Wallet
	address  common.Address
	contract *bind.BoundContract
	parsed   abi.ABI
}

// NewSettlement binds the settlement contract at the given address. wallet
// may be nil for read-only use; FillOffer then fails.
func NewSettlement(client *Client, wallet *Wallet, address common.Address) (*Settlement, error) {
	parsed, err := abi.JSON(strings.NewReader(settlementABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parse settlement abi: %w", err)
	}
	return &Settlement{
		client:   client,
		wallet:   wallet,
		address:  address,
		contract: bind.NewBoundContract(address, parsed, client.eth, client.eth, client.eth),
		parsed:   parsed,
	}, nil
}

// Address returns the settlement contract address. It doubles as the
// EIP-712 verifying contract and the ERC20 spender in allowance checks.
func (s *Settlement) Address() common.Address {
	return s.address
}

// OfferState reads the contract's authoritative view of an offer: lifecycle
// status, cumulative taker-filled amount, remaining fillable amount, and
// the structural-validity flag. Always a fresh view call.
func (s *Settlement) OfferState(ctx context.Context, offer domain.Offer) (domain.OfferState, error) {
	tuple, err := offerTuple(offer)
	if err != nil {
		return domain.OfferState{}, err
	}
	sig, err := decodeSignature(offer.Signature)
	if err != nil {
		return domain.OfferState{}, err
	}

	var out []any
	method := "getOfferState" + methodSuffix(offer.Kind)
	if err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, tuple, sig); err != nil {
		return domain.OfferState{}, fmt.Errorf("chain: %s for offer %s: %w", method, offer.ID, err)
	}
	if len(out) != 4 {
		return domain.OfferState{}, fmt.Errorf("chain: %s: expected 4 outputs, got %d", method, len(out))
	}

	status, ok := out[0].(uint8)
	if !ok {
		return domain.OfferState{}, fmt.Errorf("chain: %s: unexpected status type %T", method, out[0])
	}
	filled, err := amountFromOutput(out[1:2], method)
	if err != nil {
		return domain.OfferState{}, err
	}
	remaining, err := amountFromOutput(out[2:3], method)
	if err != nil {
		return domain.OfferState{}, err
	}
	validParams, ok := out[3].(bool)
	if !ok {
		return domain.OfferState{}, fmt.Errorf("chain: %s: unexpected validity type %T", method, out[3])
	}

	return domain.OfferState{
		Status:                domain.OfferStatus(status),
		CumulativeTakerFilled: filled,
		RemainingFillable:     remaining,
		ValidParams:           validParams,
	}, nil
}

// FillOffer submits a fill for the requested taker amount and waits for the
// receipt. The contract performs its own authoritative re-check of every
// condition the preflight mirrored; a revert surfaces as
// ErrSettlementRejected and is never retried here. On success the returned
// receipt carries the pool/position id decoded from the OfferFilled event.
func (s *Settlement) FillOffer(ctx context.Context, offer domain.Offer, requested domain.Amount) (domain.FillReceipt, error) {
	if s.wallet == nil {
		return domain.FillReceipt{}, fmt.Errorf("chain: fill offer: no wallet configured")
	}

	tuple, err := offerTuple(offer)
	if err != nil {
		return domain.FillReceipt{}, err
	}
	sig, err := decodeSignature(offer.Signature)
	if err != nil {
		return domain.FillReceipt{}, err
	}

	opts, err := s.client.transactOpts(ctx, s.wallet)
	if err != nil {
		return domain.FillReceipt{}, err
	}

	method := "fillOffer" + methodSuffix(offer.Kind)
	tx, err := s.contract.Transact(opts, method, tuple, sig, requested.Big())
	if err != nil {
		return domain.FillReceipt{}, fmt.Errorf("chain: %s for offer %s: %v: %w",
			method, offer.ID, err, domain.ErrSettlementRejected)
	}

	receipt, err := s.client.waitMined(ctx, tx)
	if err != nil {
		return domain.FillReceipt{}, fmt.Errorf("chain: %s for offer %s: %v: %w",
			method, offer.ID, err, domain.ErrSettlementRejected)
	}

	out := domain.FillReceipt{
		OfferID:              offer.ID,
		TxHash:               tx.Hash().Hex(),
		RequestedTakerAmount: requested,
		BlockNumber:          receipt.BlockNumber.Uint64(),
		GasUsed:              receipt.GasUsed,
		FilledAt:             time.Now().UTC(),
	}

	// The pool id is reported via the OfferFilled event. A fill without the
	// event still settled; the id is just unknown to us.
	if poolID, ok := s.poolIDFromLogs(receipt.Logs); ok {
		out.PoolID = poolID
	}
	return out, nil
}

// poolIDFromLogs scans receipt logs for the settlement's OfferFilled event.
func (s *Settlement) poolIDFromLogs(logs []*types.Log) (*big.Int, bool) {
	event := s.parsed.Events["OfferFilled"]
	for _, lg := range logs {
		if lg.Address != s.address || len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil || len(values) != 2 {
			continue
		}
		if poolID, ok := values[1].(*big.Int); ok {
			return poolID, true
		}
	}
	return nil, false
}

// methodSuffix maps an offer kind to the settlement method name suffix.
func methodSuffix(kind domain.OfferKind) string {
	switch kind {
	case domain.OfferKindAddLiquidity:
		return "AddLiquidity"
	case domain.OfferKindRemoveLiquidity:
		return "RemoveLiquidity"
	default:
		return "CreatePool"
	}
}

// offerTuple converts a domain offer into the ABI tuple for its kind.
func offerTuple(o domain.Offer) (any, error) {
	salt := o.Salt
	if salt == nil {
		return nil, fmt.Errorf("chain: offer %s missing salt: %w", o.ID, domain.ErrInvalidParameters)
	}

	switch o.Kind {
	case domain.OfferKindCreatePool:
		return createPoolOffer{
			Maker:                  o.Maker,
			Taker:                  o.Taker,
			MakerCollateralAmount:  o.MakerAmount.Big(),
			TakerCollateralAmount:  o.TakerAmount.Big(),
			MinimumTakerFillAmount: o.MinimumTakerFillAmount.Big(),
			Expiry:                 big.NewInt(o.Expiry),
			Salt:                   salt,
		}, nil
	case domain.OfferKindAddLiquidity:
		if o.PoolID == nil {
			return nil, fmt.Errorf("chain: offer %s missing pool id: %w", o.ID, domain.ErrInvalidParameters)
		}
		return addLiquidityOffer{
			Maker:                  o.Maker,
			Taker:                  o.Taker,
			MakerCollateralAmount:  o.MakerAmount.Big(),
			TakerCollateralAmount:  o.TakerAmount.Big(),
			MinimumTakerFillAmount: o.MinimumTakerFillAmount.Big(),
			Expiry:                 big.NewInt(o.Expiry),
			PoolId:                 o.PoolID,
			Salt:                   salt,
		}, nil
	case domain.OfferKindRemoveLiquidity:
		if o.PoolID == nil {
			return nil, fmt.Errorf("chain: offer %s missing pool id: %w", o.ID, domain.ErrInvalidParameters)
		}
		return removeLiquidityOffer{
			Maker:                  o.Maker,
			Taker:                  o.Taker,
			MakerCollateralAmount:  o.MakerAmount.Big(),
			PositionTokenAmount:    o.TakerAmount.Big(),
			MinimumTakerFillAmount: o.MinimumTakerFillAmount.Big(),
			Expiry:                 big.NewInt(o.Expiry),
			PoolId:                 o.PoolID,
			Salt:                   salt,
		}, nil
	default:
		return nil, fmt.Errorf("chain: offer kind %q: %w", o.Kind, domain.ErrInvalidParameters)
	}
}

// decodeSignature converts the offer's hex signature to raw bytes.
func decodeSignature(signatureHex string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil || len(sig) != 65 {
		return nil, fmt.Errorf("chain: malformed signature: %w", domain.ErrInvalidSignature)
	}
	return sig, nil
}
