package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// FillService defines the methods the fill handler requires from the
// service layer.
type FillService interface {
	Preflight(ctx context.Context, req domain.FillRequest) (domain.Amount, error)
	ExecuteFill(ctx context.Context, req domain.FillRequest) (domain.Fill, error)
	GetFill(ctx context.Context, id string) (domain.Fill, error)
	ListFills(ctx context.Context, opts domain.ListOpts) ([]domain.Fill, error)
	ListFillsByOffer(ctx context.Context, offerID string, opts domain.ListOpts) ([]domain.Fill, error)
}

// FillHandler serves fill-related HTTP endpoints.
type FillHandler struct {
	fills  FillService
	logger *slog.Logger
}

// NewFillHandler creates a FillHandler with the given service and logger.
func NewFillHandler(fills FillService, logger *slog.Logger) *FillHandler {
	return &FillHandler{
		fills:  fills,
		logger: logHandler(logger, "fills"),
	}
}

// fillView is the JSON shape fills take in API responses.
type fillView struct {
	ID                   string        `json:"id"`
	OfferID              string        `json:"offerId"`
	Requester            string        `json:"requester"`
	RequestedTakerAmount domain.Amount `json:"requestedTakerAmount"`
	ComputedMakerAmount  domain.Amount `json:"computedMakerAmount"`
	SelfFill             bool          `json:"selfFill"`
	Status               string        `json:"status"`
	TxHash               string        `json:"txHash,omitempty"`
	PoolID               string        `json:"poolId,omitempty"`
	FailReason           string        `json:"failReason,omitempty"`
	Strategy             string        `json:"strategy,omitempty"`
	CreatedAt            string        `json:"createdAt,omitempty"`
	ConfirmedAt          string        `json:"confirmedAt,omitempty"`
}

func viewFill(f domain.Fill) fillView {
	v := fillView{
		ID:                   f.ID,
		OfferID:              f.OfferID,
		Requester:            f.Requester.Hex(),
		RequestedTakerAmount: f.RequestedTakerAmount,
		ComputedMakerAmount:  f.ComputedMakerAmount,
		SelfFill:             f.SelfFill,
		Status:               string(f.Status),
		TxHash:               f.TxHash,
		FailReason:           f.FailReason,
		Strategy:             f.Strategy,
	}
	if f.PoolID != nil {
		v.PoolID = f.PoolID.String()
	}
	if !f.CreatedAt.IsZero() {
		v.CreatedAt = f.CreatedAt.UTC().Format(time.RFC3339)
	}
	if f.ConfirmedAt != nil {
		v.ConfirmedAt = f.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	return v
}

// fillRequestBody is the JSON body for preflight and fill execution.
type fillRequestBody struct {
	OfferID              string `json:"offerId"`
	RequestedTakerAmount string `json:"requestedTakerAmount"`
}

func (b fillRequestBody) toDomain() (domain.FillRequest, error) {
	amount, err := domain.AmountFromDecimal(b.RequestedTakerAmount)
	if err != nil {
		return domain.FillRequest{}, err
	}
	return domain.FillRequest{
		OfferID:              b.OfferID,
		RequestedTakerAmount: amount,
		Strategy:             "manual",
	}, nil
}

// ListFills returns recorded fill attempts, newest first.
// GET /api/fills?limit=50&offset=0
func (h *FillHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	fills, err := h.fills.ListFills(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list fills failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list fills")
		return
	}
	writeFillList(w, fills)
}

// ListByOffer returns the fill attempts recorded against one offer.
// GET /api/offers/{id}/fills
func (h *FillHandler) ListByOffer(w http.ResponseWriter, r *http.Request) {
	offerID := pathParam(r, "id")
	if offerID == "" {
		writeError(w, http.StatusBadRequest, "missing offer id")
		return
	}

	fills, err := h.fills.ListFillsByOffer(r.Context(), offerID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list fills by offer failed",
			slog.String("offer_id", offerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list fills")
		return
	}
	writeFillList(w, fills)
}

// GetFill returns a single fill attempt by its ID.
// GET /api/fills/{id}
func (h *FillHandler) GetFill(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing fill id")
		return
	}

	fill, err := h.fills.GetFill(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewFill(fill))
}

// Preflight runs the full validation sequence against fresh contract state
// without submitting anything. The response carries the maker amount the
// requested fill would yield.
// POST /api/fills/preflight
func (h *FillHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeFillRequest(w, r)
	if !ok {
		return
	}

	computed, err := h.fills.Preflight(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"offerId":              req.OfferID,
		"requestedTakerAmount": req.RequestedTakerAmount,
		"computedMakerAmount":  computed,
		"wouldSucceed":         true,
	})
}

// ExecuteFill validates and submits a fill for the requested amount. There is
// no retry: a rejected or reverted fill is recorded and reported as-is.
// POST /api/fills
func (h *FillHandler) ExecuteFill(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeFillRequest(w, r)
	if !ok {
		return
	}

	fill, err := h.fills.ExecuteFill(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "fill execution failed",
			slog.String("offer_id", req.OfferID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, viewFill(fill))
}

func (h *FillHandler) decodeFillRequest(w http.ResponseWriter, r *http.Request) (domain.FillRequest, bool) {
	var body fillRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return domain.FillRequest{}, false
	}
	if body.OfferID == "" {
		writeError(w, http.StatusBadRequest, "offerId is required")
		return domain.FillRequest{}, false
	}

	req, err := body.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.FillRequest{}, false
	}
	return req, true
}

func writeFillList(w http.ResponseWriter, fills []domain.Fill) {
	views := make([]fillView, 0, len(fills))
	for i := range fills {
		views = append(views, viewFill(fills[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"fills": views})
}
