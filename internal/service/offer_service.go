// Package service wires the domain collaborators into the two workflows of
// the bot: making offers (sign, persist, publish to the relay) and filling
// them (preflight, allowance, submit to the settlement contract).
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// OfferSigner produces EIP-712 offer signatures and the canonical offer id
// under the deployment's signing domain.
type OfferSigner interface {
	SignOffer(offer domain.Offer) (string, error)
	OfferID(offer domain.Offer) (string, error)
	Address() common.Address
}

// RelayPoster publishes and delists offers on the Meridian offer relay.
type RelayPoster interface {
	PostOffer(ctx context.Context, offer domain.Offer) error
	CancelOffer(ctx context.Context, offerID string) error
}

// Notifier delivers operator notifications, filtered by event type.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// OfferDraft carries the maker-chosen parameters of a new offer. Everything
// else (maker address, salt, id, signature) is derived at creation time.
type OfferDraft struct {
	Kind                   domain.OfferKind
	Taker                  common.Address // zero address: anyone may fill
	MakerAmount            domain.Amount
	TakerAmount            domain.Amount
	MinimumTakerFillAmount domain.Amount
	Expiry                 int64
	PoolID                 *big.Int
}

// OfferService handles the maker-side offer lifecycle from draft to
// published, signed offer.
type OfferService struct {
	offers          domain.OfferStore
	cache           domain.OfferCache
	limiter         domain.RateLimiter
	bus             domain.SignalBus
	audit           domain.AuditStore
	signer          OfferSigner
	relay           RelayPoster
	notifier        Notifier
	offersPerMinute int
	logger          *slog.Logger
}

// NewOfferService creates an OfferService with all required dependencies.
func NewOfferService(
	offers domain.OfferStore,
	cache domain.OfferCache,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	signer OfferSigner,
	notifier Notifier,
	offersPerMinute int,
	logger *slog.Logger,
) *OfferService {
	return &OfferService{
		offers:          offers,
		cache:           cache,
		limiter:         limiter,
		bus:             bus,
		audit:           audit,
		signer:          signer,
		notifier:        notifier,
		offersPerMinute: offersPerMinute,
		logger:          logger.With(slog.String("component", "offer_service")),
	}
}

// WithRelay attaches a relay poster so CreateOffer publishes offers after
// persisting locally. Without one, offers stay local (useful for testing).
func (s *OfferService) WithRelay(relay RelayPoster) *OfferService {
	s.relay = relay
	return s
}

// CreateOffer builds, validates, signs, persists, and publishes an offer
// from the draft. The offer id is the typed-data digest, so it is fixed the
// moment the draft's fields and the fresh salt are known.
func (s *OfferService) CreateOffer(ctx context.Context, draft OfferDraft) (domain.Offer, error) {
	if s.signer == nil {
		return domain.Offer{}, fmt.Errorf("offer_service: no signing key configured: %w", domain.ErrSigningFailed)
	}
	wallet := s.signer.Address()

	allowed, err := s.limiter.Allow(ctx, "offers:"+wallet.Hex(), s.offersPerMinute, time.Minute)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offer_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Offer{}, fmt.Errorf("offer_service: offer creation: %w", domain.ErrRateLimited)
	}

	now := time.Now().UTC()
	offer := domain.Offer{
		Kind:                   draft.Kind,
		Maker:                  wallet,
		Taker:                  draft.Taker,
		MakerAmount:            draft.MakerAmount,
		TakerAmount:            draft.TakerAmount,
		MinimumTakerFillAmount: draft.MinimumTakerFillAmount,
		Expiry:                 draft.Expiry,
		PoolID:                 draft.PoolID,
		Salt:                   big.NewInt(now.UnixNano()),
		Status:                 domain.OfferStatusFillable,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := offer.Validate(now); err != nil {
		return domain.Offer{}, fmt.Errorf("offer_service: validate draft: %w", err)
	}

	offer.ID, err = s.signer.OfferID(offer)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offer_service: derive offer id: %w", err)
	}
	offer.Signature, err = s.signer.SignOffer(offer)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offer_service: sign offer: %w", err)
	}

	if err := s.offers.Upsert(ctx, offer); err != nil {
		return domain.Offer{}, fmt.Errorf("offer_service: persist offer: %w", err)
	}
	if cacheErr := s.cache.Set(ctx, offer); cacheErr != nil {
		s.logger.WarnContext(ctx, "offer cache set failed",
			slog.String("offer_id", offer.ID),
			slog.String("error", cacheErr.Error()),
		)
	}

	// Publish to the relay after the local write so a relay outage never
	// loses the signed document.
	if s.relay != nil {
		if err := s.relay.PostOffer(ctx, offer); err != nil {
			return offer, fmt.Errorf("offer_service: relay post offer %s: %w", offer.ID, err)
		}
	}

	s.publishEvent(ctx, "offer_posted", offer.ID, map[string]string{
		"kind":         string(offer.Kind),
		"taker_amount": offer.TakerAmount.String(),
	})

	if auditErr := s.audit.Log(ctx, "offer_posted", map[string]any{
		"offer_id":     offer.ID,
		"kind":         string(offer.Kind),
		"maker_amount": offer.MakerAmount.String(),
		"taker_amount": offer.TakerAmount.String(),
		"expiry":       offer.Expiry,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("offer_id", offer.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, "offer_posted", "Offer posted",
			fmt.Sprintf("%s offer %s for %s units", offer.Kind, offer.ID, offer.TakerAmount))
	}

	s.logger.InfoContext(ctx, "offer posted",
		slog.String("offer_id", offer.ID),
		slog.String("kind", string(offer.Kind)),
		slog.String("taker_amount", offer.TakerAmount.String()),
	)

	return offer, nil
}

// CancelOffer delists an offer from the relay and marks the local snapshot
// cancelled. Relay delisting is advisory; until the maker cancels on chain
// the offer remains fillable by anyone who already holds the document.
func (s *OfferService) CancelOffer(ctx context.Context, offerID string) error {
	if s.relay != nil {
		if err := s.relay.CancelOffer(ctx, offerID); err != nil {
			return fmt.Errorf("offer_service: relay cancel %s: %w", offerID, err)
		}
	}

	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return fmt.Errorf("offer_service: load offer %s: %w", offerID, err)
	}
	if err := s.offers.UpdateSnapshot(ctx, offerID, domain.OfferStatusCancelled, offer.CumulativeTakerFilled); err != nil {
		return fmt.Errorf("offer_service: mark cancelled %s: %w", offerID, err)
	}
	if cacheErr := s.cache.Invalidate(ctx, offerID); cacheErr != nil {
		s.logger.WarnContext(ctx, "offer cache invalidate failed",
			slog.String("offer_id", offerID),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.publishEvent(ctx, "offer_cancelled", offerID, nil)

	if auditErr := s.audit.Log(ctx, "offer_cancelled", map[string]any{
		"offer_id": offerID,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("offer_id", offerID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "offer cancelled", slog.String("offer_id", offerID))
	return nil
}

// GetOffer retrieves one offer, preferring the cache for the immutable
// signed document and falling back to the store.
func (s *OfferService) GetOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	if offer, err := s.cache.Get(ctx, offerID); err == nil {
		return offer, nil
	}
	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offer_service: get offer %s: %w", offerID, err)
	}
	return offer, nil
}

// ListOffers returns offers matching the filter.
func (s *OfferService) ListOffers(ctx context.Context, filter domain.OfferFilter, opts domain.ListOpts) ([]domain.Offer, error) {
	offers, err := s.offers.List(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("offer_service: list offers: %w", err)
	}
	return offers, nil
}

// CountOffers returns the number of tracked offers.
func (s *OfferService) CountOffers(ctx context.Context) (int64, error) {
	n, err := s.offers.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("offer_service: count offers: %w", err)
	}
	return n, nil
}

// publishEvent publishes a lifecycle event on the offers channel. Bus
// failures are logged, never propagated: the offer workflow already
// succeeded by the time events go out.
func (s *OfferService) publishEvent(ctx context.Context, event, offerID string, extra map[string]string) {
	payload := map[string]string{
		"event":    event,
		"offer_id": offerID,
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, "offers", evt); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", event),
			slog.String("offer_id", offerID),
			slog.String("error", err.Error()),
		)
	}
}
