package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OfferKind selects which settlement action a signed offer authorizes.
type OfferKind string

const (
	OfferKindCreatePool      OfferKind = "create_pool"
	OfferKindAddLiquidity    OfferKind = "add_liquidity"
	OfferKindRemoveLiquidity OfferKind = "remove_liquidity"
)

// Valid reports whether k is one of the three known kinds.
func (k OfferKind) Valid() bool {
	switch k {
	case OfferKindCreatePool, OfferKindAddLiquidity, OfferKindRemoveLiquidity:
		return true
	}
	return false
}

// OfferStatus is the settlement contract's lifecycle state for an offer.
// The numeric values match the contract's enum encoding; this process
// never transitions an offer itself, it only reads the reported status.
type OfferStatus uint8

const (
	OfferStatusInvalid OfferStatus = iota
	OfferStatusCancelled
	OfferStatusFilled
	OfferStatusExpired
	OfferStatusFillable
)

// Terminal reports whether no further fills can ever succeed.
func (s OfferStatus) Terminal() bool {
	return s != OfferStatusFillable
}

func (s OfferStatus) String() string {
	switch s {
	case OfferStatusInvalid:
		return "invalid"
	case OfferStatusCancelled:
		return "cancelled"
	case OfferStatusFilled:
		return "filled"
	case OfferStatusExpired:
		return "expired"
	case OfferStatusFillable:
		return "fillable"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// ParseOfferStatus converts the wire/database string form back to an
// OfferStatus. Unknown strings map to OfferStatusInvalid.
func ParseOfferStatus(s string) OfferStatus {
	switch s {
	case "cancelled":
		return OfferStatusCancelled
	case "filled":
		return OfferStatusFilled
	case "expired":
		return OfferStatusExpired
	case "fillable":
		return OfferStatusFillable
	}
	return OfferStatusInvalid
}

// Offer is a maker's signed, partially-fillable intent. Immutable once
// signed; Status and CumulativeTakerFilled are last-observed snapshots kept
// for monitoring and are never used as validation inputs (those are read
// fresh from the settlement contract immediately before each fill).
type Offer struct {
	ID                     string // hex typed-data digest, assigned at signing or ingest
	Kind                   OfferKind
	Maker                  common.Address
	Taker                  common.Address // zero address: anyone may fill
	MakerAmount            Amount
	TakerAmount            Amount
	MinimumTakerFillAmount Amount // enforced on the first fill only
	Expiry                 int64  // unix seconds
	PoolID                 *big.Int // nil for create-pool offers
	Salt                   *big.Int
	Signature              string // EIP-712 hex
	Status                 OfferStatus
	CumulativeTakerFilled  Amount
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// TakerRestricted reports whether the offer names a specific counterparty.
func (o Offer) TakerRestricted() bool {
	return o.Taker != (common.Address{})
}

// SelfFill reports whether requester would act as both maker and taker.
// Only create-pool offers collapse the two collateral legs into one
// combined transfer; the other kinds keep distinct legs even for the maker.
func (o Offer) SelfFill(requester common.Address) bool {
	return o.Kind == OfferKindCreatePool && requester == o.Maker
}

// ExpiredAt reports whether the offer's expiry has passed at now.
func (o Offer) ExpiredAt(now time.Time) bool {
	return now.Unix() > o.Expiry
}

// Validate checks the structural invariants a maker must satisfy before
// signing. The settlement contract repeats these checks authoritatively.
func (o Offer) Validate(now time.Time) error {
	if !o.Kind.Valid() {
		return fmt.Errorf("domain: offer kind %q: %w", o.Kind, ErrInvalidParameters)
	}
	if o.TakerAmount.IsZero() {
		return fmt.Errorf("domain: taker amount is zero: %w", ErrInvalidParameters)
	}
	if o.MakerAmount.IsZero() {
		return fmt.Errorf("domain: maker amount is zero: %w", ErrInvalidParameters)
	}
	if o.MinimumTakerFillAmount.Gt(o.TakerAmount) {
		return fmt.Errorf("domain: minimum fill exceeds taker amount: %w", ErrInvalidParameters)
	}
	if o.ExpiredAt(now) {
		return fmt.Errorf("domain: expiry %d already passed: %w", o.Expiry, ErrInvalidParameters)
	}
	if o.Kind != OfferKindCreatePool && (o.PoolID == nil || o.PoolID.Sign() <= 0) {
		return fmt.Errorf("domain: missing pool id: %w", ErrInvalidParameters)
	}
	return nil
}

// OfferState is the settlement contract's authoritative view of an offer,
// read fresh before every validation. This process never writes it.
type OfferState struct {
	Status                OfferStatus
	CumulativeTakerFilled Amount // monotone non-decreasing, bounded by TakerAmount
	RemainingFillable     Amount // as reported, never recomputed locally
	ValidParams           bool   // contract's structural-validity flag
}

// FillRequest is a caller's desired fill size against an offer.
type FillRequest struct {
	OfferID              string
	RequestedTakerAmount Amount
	Strategy             string
}

// FillStatus tracks a submitted fill's lifecycle in this process.
type FillStatus string

const (
	FillStatusPending   FillStatus = "pending"
	FillStatusConfirmed FillStatus = "confirmed"
	FillStatusRejected  FillStatus = "rejected"
)

// Fill records one fill attempt end to end.
type Fill struct {
	ID                   string // UUID
	OfferID              string
	Requester            common.Address
	RequestedTakerAmount Amount
	ComputedMakerAmount  Amount
	SelfFill             bool
	Status               FillStatus
	TxHash               string
	PoolID               *big.Int // pool/position identifier from the settlement event
	FailReason           string
	Strategy             string
	CreatedAt            time.Time
	ConfirmedAt          *time.Time
}

// FillReceipt is the settlement layer's success record for a fill.
type FillReceipt struct {
	OfferID              string
	TxHash               string
	PoolID               *big.Int
	RequestedTakerAmount Amount
	ComputedMakerAmount  Amount
	BlockNumber          uint64
	GasUsed              uint64
	FilledAt             time.Time
}
