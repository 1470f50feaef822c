package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/utils"
)

// FeeHandler handles priority-fee estimation requests
type FeeHandler struct {
	router RouterService
	logger *zap.Logger
}

// NewFeeHandler creates a new FeeHandler
func NewFeeHandler(router RouterService, logger *zap.Logger) *FeeHandler {
	return &FeeHandler{router: router, logger: logger}
}

// HandleEstimate handles GET /api/v1/fees?urgency=high
func (h *FeeHandler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	urgency, err := providers.ParseUrgency(r.URL.Query().Get("urgency"))
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	estimate, err := h.router.GetPriorityFeeEstimate(r.Context(), urgency)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, estimate); err != nil {
		h.logger.Error("failed to write fee response", zap.Error(err))
	}
}
