package relay

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// --------------------------------------------------------------------------
// Relay API DTOs
// --------------------------------------------------------------------------

// APIOffer is a signed offer as the Meridian offer relay serves it. All
// monetary values travel as unscaled base-10 strings; addresses as 0x hex.
type APIOffer struct {
	ID                     string `json:"id"`
	Kind                   string `json:"kind"` // "create_pool", "add_liquidity", "remove_liquidity"
	Maker                  string `json:"maker"`
	Taker                  string `json:"taker"`
	MakerAmount            string `json:"makerAmount"`
	TakerAmount            string `json:"takerAmount"`
	MinimumTakerFillAmount string `json:"minimumTakerFillAmount"`
	Expiry                 int64  `json:"expiry"`
	PoolID                 string `json:"poolId,omitempty"`
	Salt                   string `json:"salt"`
	Signature              string `json:"signature"`
	Status                 string `json:"status"`
	TakerFilledAmount      string `json:"takerFilledAmount"`
	CreatedAt              string `json:"createdAt"`
	UpdatedAt              string `json:"updatedAt"`
}

// APIOfferResult is the relay's response to posting an offer.
type APIOfferResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg,omitempty"`
	OfferID  string `json:"offerId,omitempty"`
}

// APIOfferPage is one page of a ListOffers response.
type APIOfferPage struct {
	Offers     []APIOffer `json:"offers"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ToDomain converts an APIOffer to a domain.Offer. Amount fields are
// strict: a malformed amount fails the whole offer rather than defaulting
// to zero, since a zero amount would change fill math silently.
func (a *APIOffer) ToDomain() (domain.Offer, error) {
	makerAmount, err := domain.AmountFromDecimal(a.MakerAmount)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("relay: offer %s maker amount %q: %w", a.ID, a.MakerAmount, err)
	}
	takerAmount, err := domain.AmountFromDecimal(a.TakerAmount)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("relay: offer %s taker amount %q: %w", a.ID, a.TakerAmount, err)
	}
	minFill := domain.Amount{}
	if a.MinimumTakerFillAmount != "" {
		minFill, err = domain.AmountFromDecimal(a.MinimumTakerFillAmount)
		if err != nil {
			return domain.Offer{}, fmt.Errorf("relay: offer %s minimum fill %q: %w", a.ID, a.MinimumTakerFillAmount, err)
		}
	}
	filled := domain.Amount{}
	if a.TakerFilledAmount != "" {
		filled, err = domain.AmountFromDecimal(a.TakerFilledAmount)
		if err != nil {
			return domain.Offer{}, fmt.Errorf("relay: offer %s filled amount %q: %w", a.ID, a.TakerFilledAmount, err)
		}
	}

	salt, ok := new(big.Int).SetString(a.Salt, 10)
	if !ok {
		return domain.Offer{}, fmt.Errorf("relay: offer %s salt %q: %w", a.ID, a.Salt, domain.ErrInvalidParameters)
	}

	o := domain.Offer{
		ID:                     a.ID,
		Kind:                   domain.OfferKind(a.Kind),
		Maker:                  common.HexToAddress(a.Maker),
		Taker:                  common.HexToAddress(a.Taker),
		MakerAmount:            makerAmount,
		TakerAmount:            takerAmount,
		MinimumTakerFillAmount: minFill,
		Expiry:                 a.Expiry,
		Salt:                   salt,
		Signature:              a.Signature,
		Status:                 domain.ParseOfferStatus(a.Status),
		CumulativeTakerFilled:  filled,
	}

	if a.PoolID != "" {
		poolID, ok := new(big.Int).SetString(a.PoolID, 10)
		if !ok {
			return domain.Offer{}, fmt.Errorf("relay: offer %s pool id %q: %w", a.ID, a.PoolID, domain.ErrInvalidParameters)
		}
		o.PoolID = poolID
	}

	if t, err := time.Parse(time.RFC3339, a.CreatedAt); err == nil {
		o.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, a.UpdatedAt); err == nil {
		o.UpdatedAt = t
	}

	return o, nil
}

// FromDomain converts a domain.Offer into its relay wire form for posting.
func FromDomain(o domain.Offer) APIOffer {
	a := APIOffer{
		ID:                     o.ID,
		Kind:                   string(o.Kind),
		Maker:                  o.Maker.Hex(),
		Taker:                  o.Taker.Hex(),
		MakerAmount:            o.MakerAmount.String(),
		TakerAmount:            o.TakerAmount.String(),
		MinimumTakerFillAmount: o.MinimumTakerFillAmount.String(),
		Expiry:                 o.Expiry,
		Signature:              o.Signature,
		Status:                 o.Status.String(),
		TakerFilledAmount:      o.CumulativeTakerFilled.String(),
	}
	if o.Salt != nil {
		a.Salt = o.Salt.String()
	}
	if o.PoolID != nil {
		a.PoolID = o.PoolID.String()
	}
	return a
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSEvent is the outer envelope of every frame from the relay's offer feed.
type WSEvent struct {
	EventType string    `json:"event_type"` // "offer_created", "offer_updated", "offer_cancelled", "offer_filled"
	Timestamp string    `json:"timestamp,omitempty"`
	Offer     *APIOffer `json:"offer,omitempty"`
	OfferID   string    `json:"offer_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	TxHash    string    `json:"tx_hash,omitempty"`
}

// OfferUpdate is a lifecycle change for an already-known offer, carried by
// cancel/fill events that do not repeat the full offer document.
type OfferUpdate struct {
	OfferID string
	Status  domain.OfferStatus
	TxHash  string
}

// WSCommand is the JSON payload sent to the relay feed to manage
// subscriptions. Kinds filters the feed server-side; empty means all kinds.
type WSCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Kinds   []string `json:"kinds,omitempty"`
}

// normalizeKinds lowercases and deduplicates a kind filter for commands.
func normalizeKinds(kinds []string) []string {
	seen := make(map[string]struct{}, len(kinds))
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
