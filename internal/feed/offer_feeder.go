package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/meridianxyz/fillbot/internal/domain"
	"github.com/meridianxyz/fillbot/internal/strategy"
)

// offerEvent is the JSON shape published on the "offers" bus channel.
type offerEvent struct {
	Event   string `json:"event"`
	OfferID string `json:"offer_id"`
}

// OfferFeeder subscribes to the "offers" bus channel, loads each announced
// offer, and asks the strategy whether to request a fill. Emitted signals
// go to the executor's channel; a full channel drops the signal, since the
// strategy re-evaluates on the next event anyway.
type OfferFeeder struct {
	bus      domain.SignalBus
	offers   domain.OfferStore
	cache    domain.OfferCache
	policy   strategy.Strategy
	signalCh chan<- domain.FillSignal
	logger   *slog.Logger
}

// NewOfferFeeder creates an OfferFeeder driving the given policy.
func NewOfferFeeder(
	bus domain.SignalBus,
	offers domain.OfferStore,
	cache domain.OfferCache,
	policy strategy.Strategy,
	signalCh chan<- domain.FillSignal,
	logger *slog.Logger,
) *OfferFeeder {
	return &OfferFeeder{
		bus:      bus,
		offers:   offers,
		cache:    cache,
		policy:   policy,
		signalCh: signalCh,
		logger:   logger.With(slog.String("component", "offer_feeder")),
	}
}

// Run subscribes to "offers" and evaluates the policy for each announced
// offer until ctx is cancelled.
func (f *OfferFeeder) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, "offers")
	if err != nil {
		return err
	}
	f.logger.Info("offer feeder started", slog.String("strategy", f.policy.Name()))
	defer f.logger.Info("offer feeder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := f.handleMessage(ctx, data); err != nil {
				f.logger.Debug("offer feeder handle message failed",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
			}
		}
	}
}

func (f *OfferFeeder) handleMessage(ctx context.Context, data []byte) error {
	var ev offerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	offerID := strings.TrimSpace(ev.OfferID)
	if offerID == "" {
		return nil
	}

	// Only fresh documents are worth evaluating; cancelled/filled events
	// can never lead to a fill.
	switch ev.Event {
	case "offer_created", "offer_posted", "offer_fillable":
	default:
		return nil
	}

	offer, err := f.loadOffer(ctx, offerID)
	if err != nil {
		return err
	}

	// Screening state from the stored snapshot. This is last-observed
	// data: good enough to decide whether to try, never used to validate.
	remaining, err := offer.TakerAmount.Sub(offer.CumulativeTakerFilled)
	if err != nil {
		remaining = domain.Amount{}
	}
	state := domain.OfferState{
		Status:                offer.Status,
		CumulativeTakerFilled: offer.CumulativeTakerFilled,
		RemainingFillable:     remaining,
		ValidParams:           true,
	}

	sig, err := f.policy.Evaluate(ctx, offer, state)
	if err != nil {
		return err
	}
	if sig == nil {
		return nil
	}

	select {
	case f.signalCh <- *sig:
		f.logger.Debug("fill signal emitted",
			slog.String("signal_id", sig.ID),
			slog.String("offer_id", sig.OfferID),
			slog.String("requested", sig.RequestedTakerAmount.String()),
		)
	default:
		f.logger.Warn("signal channel full, dropping signal",
			slog.String("offer_id", sig.OfferID),
		)
	}
	return nil
}

func (f *OfferFeeder) loadOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	if offer, err := f.cache.Get(ctx, offerID); err == nil {
		return offer, nil
	}
	return f.offers.GetByID(ctx, offerID)
}
