package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"promptgate/internal/llm"
	"promptgate/internal/usage"
	"promptgate/pkg/logging"
)

// UsageHandler serves GET /v1/usage/{model}.
type UsageHandler struct {
	Models Resolver
	Ledger usage.Ledger
}

func NewUsageHandler(models Resolver, ledger usage.Ledger) *UsageHandler {
	return &UsageHandler{Models: models, Ledger: ledger}
}

func (h *UsageHandler) Totals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "model")

	model, err := h.Models.Resolve(id)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, llm.ErrModelNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	totals, ok, err := h.Ledger.Totals(ctx, usage.Key{Provider: model.Provider, ModelID: model.ID})
	if err != nil {
		logging.L(ctx).Error("usage_totals_failed", zap.String("model_id", model.ID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "usage ledger unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no usage recorded for "+model.ID)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}
