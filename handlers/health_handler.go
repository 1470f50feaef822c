package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/solforge/rpc-router/utils"
)

// HealthHandler handles health and status HTTP requests
type HealthHandler struct {
	router RouterService
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(router RouterService, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{router: router, logger: logger}
}

// LivenessResponse is the liveness check body
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// HandleLiveness handles GET /healthz.
// Always returns 200 while the process is running.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, LivenessResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz.
// Returns 503 when no provider is healthy; routing would only run on the
// degraded fallback path.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	report := h.router.Health()

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, status, utils.SuccessResponse{Data: report}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/v1/status with the full per-provider report
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.router.Health()); err != nil {
		h.logger.Error("failed to write status response", zap.Error(err))
	}
}

// HandleMetrics handles GET /api/v1/metrics with the JSON metrics snapshot
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.router.Metrics()); err != nil {
		h.logger.Error("failed to write metrics response", zap.Error(err))
	}
}
