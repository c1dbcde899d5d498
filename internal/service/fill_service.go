package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/meridianxyz/fillbot/internal/domain"
	"github.com/meridianxyz/fillbot/internal/engine"
)

// StateReader reads the settlement contract's authoritative view of an
// offer. Every call is a fresh chain read; implementations must not cache.
type StateReader interface {
	OfferState(ctx context.Context, offer domain.Offer) (domain.OfferState, error)
}

// FillSubmitter submits a fill transaction and blocks until it is mined.
type FillSubmitter interface {
	FillOffer(ctx context.Context, offer domain.Offer, requested domain.Amount) (domain.FillReceipt, error)
}

// BalanceReader reads collateral token balances.
type BalanceReader interface {
	BalanceOf(ctx context.Context, owner common.Address) (domain.Amount, error)
}

// FillService executes fills end to end: fresh state and balance reads,
// the ordered preflight, allowance sizing, submission, and bookkeeping.
// Nothing in this path retries; a failed fill is recorded and reported, and
// any new attempt starts from scratch with fresh reads.
type FillService struct {
	offers         domain.OfferStore
	fills          domain.FillStore
	cache          domain.OfferCache
	limiter        domain.RateLimiter
	bus            domain.SignalBus
	audit          domain.AuditStore
	preflight      *engine.PreflightValidator
	gate           *engine.AllowanceGate
	state          StateReader
	submitter      FillSubmitter
	balances       BalanceReader
	notifier       Notifier
	wallet         common.Address
	settlement     common.Address
	fillsPerMinute int
	dryRun         bool
	logger         *slog.Logger
}

// NewFillService creates a FillService with all required dependencies.
func NewFillService(
	offers domain.OfferStore,
	fills domain.FillStore,
	cache domain.OfferCache,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	preflight *engine.PreflightValidator,
	gate *engine.AllowanceGate,
	state StateReader,
	submitter FillSubmitter,
	balances BalanceReader,
	notifier Notifier,
	wallet common.Address,
	settlement common.Address,
	fillsPerMinute int,
	dryRun bool,
	logger *slog.Logger,
) *FillService {
	return &FillService{
		offers:         offers,
		fills:          fills,
		cache:          cache,
		limiter:        limiter,
		bus:            bus,
		audit:          audit,
		preflight:      preflight,
		gate:           gate,
		state:          state,
		submitter:      submitter,
		balances:       balances,
		notifier:       notifier,
		wallet:         wallet,
		settlement:     settlement,
		fillsPerMinute: fillsPerMinute,
		dryRun:         dryRun,
		logger:         logger.With(slog.String("component", "fill_service")),
	}
}

// Preflight runs the full validation pass for a requested fill without
// touching any state: fresh contract view, fresh balances, ordered checks.
// It returns the maker-side amount the fill would yield. This is the
// dry-run surface used by the API and by anyone sizing a fill.
func (s *FillService) Preflight(ctx context.Context, req domain.FillRequest) (domain.Amount, error) {
	if s.state == nil {
		return domain.Amount{}, fmt.Errorf("fill_service: chain access not configured in this mode: %w", domain.ErrInvalidParameters)
	}
	offer, err := s.loadOffer(ctx, req.OfferID)
	if err != nil {
		return domain.Amount{}, err
	}
	in, err := s.freshInput(ctx, offer, req.RequestedTakerAmount)
	if err != nil {
		return domain.Amount{}, err
	}
	return s.preflight.Validate(in)
}

// ExecuteFill runs a fill end to end. The preflight and the allowance gate
// run against state read fresh inside this call; a passing preflight that
// loses a race to another taker surfaces as the settlement contract's own
// rejection, recorded on the fill and never retried.
func (s *FillService) ExecuteFill(ctx context.Context, req domain.FillRequest) (domain.Fill, error) {
	if s.state == nil || s.submitter == nil {
		return domain.Fill{}, fmt.Errorf("fill_service: chain access not configured in this mode: %w", domain.ErrInvalidParameters)
	}
	allowed, err := s.limiter.Allow(ctx, "fills:"+s.wallet.Hex(), s.fillsPerMinute, time.Minute)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("fill_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Fill{}, fmt.Errorf("fill_service: fill submission: %w", domain.ErrRateLimited)
	}

	offer, err := s.loadOffer(ctx, req.OfferID)
	if err != nil {
		return domain.Fill{}, err
	}

	fill := domain.Fill{
		ID:                   uuid.NewString(),
		OfferID:              offer.ID,
		Requester:            s.wallet,
		RequestedTakerAmount: req.RequestedTakerAmount,
		SelfFill:             offer.SelfFill(s.wallet),
		Status:               domain.FillStatusPending,
		Strategy:             req.Strategy,
		CreatedAt:            time.Now().UTC(),
	}

	in, err := s.freshInput(ctx, offer, req.RequestedTakerAmount)
	if err != nil {
		return domain.Fill{}, err
	}

	computed, err := s.preflight.Validate(in)
	if err != nil {
		return s.recordRejection(ctx, fill, fmt.Errorf("fill_service: preflight: %w", err))
	}
	fill.ComputedMakerAmount = computed

	// Allowance covers the taker leg, or both legs combined when filling
	// our own create-pool offer in one transaction.
	required := req.RequestedTakerAmount
	if fill.SelfFill {
		required, err = engine.ComputeSelfFillAmount(offer, req.RequestedTakerAmount)
		if err != nil {
			return s.recordRejection(ctx, fill, fmt.Errorf("fill_service: size self-fill: %w", err))
		}
	}
	if _, err := s.gate.EnsureAllowance(ctx, s.wallet, s.settlement, required); err != nil {
		return s.recordRejection(ctx, fill, fmt.Errorf("fill_service: allowance: %w", err))
	}

	if s.dryRun {
		s.logger.InfoContext(ctx, "dry run, skipping submission",
			slog.String("offer_id", offer.ID),
			slog.String("requested", req.RequestedTakerAmount.String()),
			slog.String("computed_maker_amount", computed.String()),
		)
		return fill, nil
	}

	if err := s.fills.Create(ctx, fill); err != nil {
		return domain.Fill{}, fmt.Errorf("fill_service: persist fill: %w", err)
	}

	receipt, err := s.submitter.FillOffer(ctx, offer, req.RequestedTakerAmount)
	if err != nil {
		reason := err.Error()
		if rejErr := s.fills.Reject(ctx, fill.ID, reason); rejErr != nil {
			s.logger.ErrorContext(ctx, "mark fill rejected failed",
				slog.String("fill_id", fill.ID),
				slog.String("error", rejErr.Error()),
			)
		}
		fill.Status = domain.FillStatusRejected
		fill.FailReason = reason
		s.afterRejection(ctx, fill, err)
		return fill, fmt.Errorf("fill_service: submit fill for offer %s: %w", offer.ID, err)
	}

	receipt.ComputedMakerAmount = computed
	if err := s.fills.Confirm(ctx, fill.ID, receipt); err != nil {
		s.logger.ErrorContext(ctx, "mark fill confirmed failed",
			slog.String("fill_id", fill.ID),
			slog.String("tx_hash", receipt.TxHash),
			slog.String("error", err.Error()),
		)
	}
	fill.Status = domain.FillStatusConfirmed
	fill.TxHash = receipt.TxHash
	fill.PoolID = receipt.PoolID
	confirmedAt := receipt.FilledAt
	fill.ConfirmedAt = &confirmedAt

	s.refreshSnapshot(ctx, offer)

	s.publishEvent(ctx, "fill_confirmed", fill, receipt.TxHash)

	if auditErr := s.audit.Log(ctx, "fill_confirmed", map[string]any{
		"fill_id":      fill.ID,
		"offer_id":     offer.ID,
		"requested":    req.RequestedTakerAmount.String(),
		"maker_amount": computed.String(),
		"tx_hash":      receipt.TxHash,
		"block_number": receipt.BlockNumber,
		"gas_used":     receipt.GasUsed,
		"self_fill":    fill.SelfFill,
		"strategy":     fill.Strategy,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("fill_id", fill.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, "fill_confirmed", "Fill confirmed",
			fmt.Sprintf("offer %s filled for %s taker units (tx %s)",
				offer.ID, req.RequestedTakerAmount, receipt.TxHash))
	}

	s.logger.InfoContext(ctx, "fill confirmed",
		slog.String("fill_id", fill.ID),
		slog.String("offer_id", offer.ID),
		slog.String("requested", req.RequestedTakerAmount.String()),
		slog.String("tx_hash", receipt.TxHash),
		slog.Uint64("block", receipt.BlockNumber),
	)

	return fill, nil
}

// GetFill retrieves a single fill record.
func (s *FillService) GetFill(ctx context.Context, id string) (domain.Fill, error) {
	fill, err := s.fills.GetByID(ctx, id)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("fill_service: get fill %s: %w", id, err)
	}
	return fill, nil
}

// ListFills returns fill records with pagination.
func (s *FillService) ListFills(ctx context.Context, opts domain.ListOpts) ([]domain.Fill, error) {
	fills, err := s.fills.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("fill_service: list fills: %w", err)
	}
	return fills, nil
}

// ListFillsByOffer returns all fills recorded against one offer.
func (s *FillService) ListFillsByOffer(ctx context.Context, offerID string, opts domain.ListOpts) ([]domain.Fill, error) {
	fills, err := s.fills.ListByOffer(ctx, offerID, opts)
	if err != nil {
		return nil, fmt.Errorf("fill_service: list fills for offer %s: %w", offerID, err)
	}
	return fills, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// loadOffer fetches the signed offer document, preferring the cache.
func (s *FillService) loadOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	if offer, err := s.cache.Get(ctx, offerID); err == nil {
		return offer, nil
	}
	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("fill_service: load offer %s: %w", offerID, err)
	}
	return offer, nil
}

// freshInput assembles a preflight input from state and balances read at
// this moment. The three reads are not atomic with each other; the
// settlement contract's own re-check is what makes the fill safe.
func (s *FillService) freshInput(ctx context.Context, offer domain.Offer, requested domain.Amount) (engine.PreflightInput, error) {
	state, err := s.state.OfferState(ctx, offer)
	if err != nil {
		return engine.PreflightInput{}, fmt.Errorf("fill_service: read offer state: %w", err)
	}
	takerBalance, err := s.balances.BalanceOf(ctx, s.wallet)
	if err != nil {
		return engine.PreflightInput{}, fmt.Errorf("fill_service: read taker balance: %w", err)
	}
	makerBalance, err := s.balances.BalanceOf(ctx, offer.Maker)
	if err != nil {
		return engine.PreflightInput{}, fmt.Errorf("fill_service: read maker balance: %w", err)
	}
	return engine.PreflightInput{
		Offer:                offer,
		State:                state,
		Requester:            s.wallet,
		RequestedTakerAmount: requested,
		TakerBalance:         takerBalance,
		MakerBalance:         makerBalance,
	}, nil
}

// recordRejection persists a rejected fill attempt and reports the cause.
func (s *FillService) recordRejection(ctx context.Context, fill domain.Fill, cause error) (domain.Fill, error) {
	fill.Status = domain.FillStatusRejected
	fill.FailReason = cause.Error()

	if err := s.fills.Create(ctx, fill); err != nil {
		s.logger.ErrorContext(ctx, "persist rejected fill failed",
			slog.String("fill_id", fill.ID),
			slog.String("error", err.Error()),
		)
	}
	s.afterRejection(ctx, fill, cause)
	return fill, cause
}

// afterRejection emits the bookkeeping for a failed attempt.
func (s *FillService) afterRejection(ctx context.Context, fill domain.Fill, cause error) {
	s.publishEvent(ctx, "fill_rejected", fill, "")

	if auditErr := s.audit.Log(ctx, "fill_rejected", map[string]any{
		"fill_id":   fill.ID,
		"offer_id":  fill.OfferID,
		"requested": fill.RequestedTakerAmount.String(),
		"reason":    fill.FailReason,
		"strategy":  fill.Strategy,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("fill_id", fill.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, "fill_rejected", "Fill rejected",
			fmt.Sprintf("offer %s: %v", fill.OfferID, cause))
	}

	s.logger.WarnContext(ctx, "fill rejected",
		slog.String("fill_id", fill.ID),
		slog.String("offer_id", fill.OfferID),
		slog.String("reason", fill.FailReason),
	)
}

// refreshSnapshot re-reads the contract state after a confirmed fill and
// updates the local snapshot. Best effort: the snapshot is monitoring data,
// never a validation input.
func (s *FillService) refreshSnapshot(ctx context.Context, offer domain.Offer) {
	state, err := s.state.OfferState(ctx, offer)
	if err != nil {
		s.logger.WarnContext(ctx, "post-fill state read failed",
			slog.String("offer_id", offer.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.offers.UpdateSnapshot(ctx, offer.ID, state.Status, state.CumulativeTakerFilled); err != nil {
		s.logger.WarnContext(ctx, "snapshot update failed",
			slog.String("offer_id", offer.ID),
			slog.String("error", err.Error()),
		)
	}
}

// publishEvent publishes a fill lifecycle event on the fills channel.
func (s *FillService) publishEvent(ctx context.Context, event string, fill domain.Fill, txHash string) {
	payload := map[string]string{
		"event":     event,
		"fill_id":   fill.ID,
		"offer_id":  fill.OfferID,
		"requested": fill.RequestedTakerAmount.String(),
	}
	if txHash != "" {
		payload["tx_hash"] = txHash
	}
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, "fills", evt); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", event),
			slog.String("fill_id", fill.ID),
			slog.String("error", err.Error()),
		)
	}
}
