package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a service-layer error to an HTTP response. The
// sentinel chain decides the status code; the message is the sentinel text,
// never the full wrapped chain, which may carry addresses and amounts.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, domain.ErrAlreadyExists.Error())
	case errors.Is(err, domain.ErrStatusInvalid),
		errors.Is(err, domain.ErrStatusCancelled),
		errors.Is(err, domain.ErrStatusFilled),
		errors.Is(err, domain.ErrStatusExpired):
		writeError(w, http.StatusConflict, firstSentinel(err,
			domain.ErrStatusInvalid, domain.ErrStatusCancelled,
			domain.ErrStatusFilled, domain.ErrStatusExpired))
	case errors.Is(err, domain.ErrInvalidParameters),
		errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrBelowMinimum),
		errors.Is(err, domain.ErrExceedsFillable),
		errors.Is(err, domain.ErrOverflow):
		writeError(w, http.StatusBadRequest, firstSentinel(err,
			domain.ErrInvalidParameters, domain.ErrInvalidSignature,
			domain.ErrBelowMinimum, domain.ErrExceedsFillable, domain.ErrOverflow))
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, domain.ErrUnauthorized.Error())
	case errors.Is(err, domain.ErrInsufficientTakerBalance),
		errors.Is(err, domain.ErrInsufficientMakerBalance):
		writeError(w, http.StatusUnprocessableEntity, firstSentinel(err,
			domain.ErrInsufficientTakerBalance, domain.ErrInsufficientMakerBalance))
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// firstSentinel returns the message of the first sentinel matching err.
func firstSentinel(err error, sentinels ...error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "request failed"
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
