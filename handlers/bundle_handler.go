package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/utils"
)

// BundleSubmitRequest is the bundle submission request body
type BundleSubmitRequest struct {
	// Transactions are base64-encoded signed transactions
	Transactions []string `json:"transactions"`

	// Urgency is normal, high or mev; empty means normal
	Urgency string `json:"urgency,omitempty"`
}

// BundleHandler handles atomic bundle submissions
type BundleHandler struct {
	router RouterService
	logger *zap.Logger
}

// NewBundleHandler creates a new BundleHandler
func NewBundleHandler(router RouterService, logger *zap.Logger) *BundleHandler {
	return &BundleHandler{router: router, logger: logger}
}

// HandleSubmit handles POST /api/v1/bundles
func (h *BundleHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req BundleSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "invalid request body", nil)
		return
	}
	if len(req.Transactions) == 0 {
		_ = utils.WriteBadRequest(w, "transactions cannot be empty", nil)
		return
	}

	urgency, err := providers.ParseUrgency(req.Urgency)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	result, err := h.router.SubmitBundle(r.Context(), &providers.BundleRequest{
		Transactions: req.Transactions,
		Urgency:      urgency,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write bundle response", zap.Error(err))
	}
}
