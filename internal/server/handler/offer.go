package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianxyz/fillbot/internal/domain"
	"github.com/meridianxyz/fillbot/internal/service"
)

// OfferService defines the methods the offer handler requires from the
// service layer.
type OfferService interface {
	CreateOffer(ctx context.Context, draft service.OfferDraft) (domain.Offer, error)
	CancelOffer(ctx context.Context, offerID string) error
	GetOffer(ctx context.Context, offerID string) (domain.Offer, error)
	ListOffers(ctx context.Context, filter domain.OfferFilter, opts domain.ListOpts) ([]domain.Offer, error)
}

// OfferHandler serves offer-related HTTP endpoints.
type OfferHandler struct {
	offers OfferService
	logger *slog.Logger
}

// NewOfferHandler creates an OfferHandler with the given service and logger.
func NewOfferHandler(offers OfferService, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{
		offers: offers,
		logger: logHandler(logger, "offers"),
	}
}

// offerView is the JSON shape offers take in API responses. Amounts render
// as unscaled decimal strings.
type offerView struct {
	ID                     string        `json:"id"`
	Kind                   string        `json:"kind"`
	Maker                  string        `json:"maker"`
	Taker                  string        `json:"taker"`
	MakerAmount            domain.Amount `json:"makerAmount"`
	TakerAmount            domain.Amount `json:"takerAmount"`
	MinimumTakerFillAmount domain.Amount `json:"minimumTakerFillAmount"`
	Expiry                 int64         `json:"expiry"`
	PoolID                 string        `json:"poolId,omitempty"`
	Signature              string        `json:"signature"`
	Status                 string        `json:"status"`
	TakerFilledAmount      domain.Amount `json:"takerFilledAmount"`
	CreatedAt              string        `json:"createdAt,omitempty"`
	UpdatedAt              string        `json:"updatedAt,omitempty"`
}

func viewOffer(o domain.Offer) offerView {
	v := offerView{
		ID:                     o.ID,
		Kind:                   string(o.Kind),
		Maker:                  o.Maker.Hex(),
		Taker:                  o.Taker.Hex(),
		MakerAmount:            o.MakerAmount,
		TakerAmount:            o.TakerAmount,
		MinimumTakerFillAmount: o.MinimumTakerFillAmount,
		Expiry:                 o.Expiry,
		Signature:              o.Signature,
		Status:                 o.Status.String(),
		TakerFilledAmount:      o.CumulativeTakerFilled,
	}
	if o.PoolID != nil {
		v.PoolID = o.PoolID.String()
	}
	if !o.CreatedAt.IsZero() {
		v.CreatedAt = o.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !o.UpdatedAt.IsZero() {
		v.UpdatedAt = o.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return v
}

// ListOffers returns tracked offers, optionally filtered by status, kind, and
// maker address.
// GET /api/offers?status=fillable&kind=create_pool&maker=0x...&limit=50&offset=0
func (h *OfferHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.OfferFilter{
		Kind:  domain.OfferKind(q.Get("kind")),
		Maker: q.Get("maker"),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown offer kind "+string(filter.Kind))
		return
	}
	if s := q.Get("status"); s != "" {
		status := domain.ParseOfferStatus(s)
		if status == domain.OfferStatusInvalid && s != "invalid" {
			writeError(w, http.StatusBadRequest, "unknown offer status "+s)
			return
		}
		filter.Status = &status
	}

	offers, err := h.offers.ListOffers(r.Context(), filter, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list offers failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list offers")
		return
	}

	views := make([]offerView, 0, len(offers))
	for i := range offers {
		views = append(views, viewOffer(offers[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": views})
}

// GetOffer returns a single offer by its typed-data digest.
// GET /api/offers/{id}
func (h *OfferHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing offer id")
		return
	}

	offer, err := h.offers.GetOffer(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOffer(offer))
}

// createOfferRequest is the JSON body for creating a signed offer. Amounts
// are unscaled decimal strings.
type createOfferRequest struct {
	Kind                   string `json:"kind"`
	Taker                  string `json:"taker,omitempty"`
	MakerAmount            string `json:"makerAmount"`
	TakerAmount            string `json:"takerAmount"`
	MinimumTakerFillAmount string `json:"minimumTakerFillAmount,omitempty"`
	Expiry                 int64  `json:"expiry"`
	PoolID                 string `json:"poolId,omitempty"`
}

// CreateOffer signs and publishes a new offer from the configured maker key.
// POST /api/offers
func (h *OfferHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	draft, err := draftFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	offer, err := h.offers.CreateOffer(r.Context(), draft)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create offer failed",
			slog.String("kind", req.Kind),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, viewOffer(offer))
}

// CancelOffer marks a maker's own offer cancelled and delists it from the
// relay. Irrevocable cancellation still requires the maker's on-chain call.
// DELETE /api/offers/{id}
func (h *OfferHandler) CancelOffer(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing offer id")
		return
	}

	if err := h.offers.CancelOffer(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "cancel offer failed",
			slog.String("offer_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"offer_id": id,
	})
}

func draftFromRequest(req createOfferRequest) (service.OfferDraft, error) {
	draft := service.OfferDraft{
		Kind:   domain.OfferKind(req.Kind),
		Expiry: req.Expiry,
	}

	if req.Taker != "" {
		if !common.IsHexAddress(req.Taker) {
			return service.OfferDraft{}, domain.ErrInvalidParameters
		}
		draft.Taker = common.HexToAddress(req.Taker)
	}

	var err error
	if draft.MakerAmount, err = domain.AmountFromDecimal(req.MakerAmount); err != nil {
		return service.OfferDraft{}, err
	}
	if draft.TakerAmount, err = domain.AmountFromDecimal(req.TakerAmount); err != nil {
		return service.OfferDraft{}, err
	}
	if req.MinimumTakerFillAmount != "" {
		if draft.MinimumTakerFillAmount, err = domain.AmountFromDecimal(req.MinimumTakerFillAmount); err != nil {
			return service.OfferDraft{}, err
		}
	}
	if req.PoolID != "" {
		poolID, ok := new(big.Int).SetString(req.PoolID, 10)
		if !ok {
			return service.OfferDraft{}, domain.ErrInvalidParameters
		}
		draft.PoolID = poolID
	}

	return draft, nil
}
