package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/solforge/rpc-router/utils"
)

// RPCRequest is the JSON-RPC 2.0 envelope accepted on the passthrough endpoint
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCResponse is the JSON-RPC 2.0 envelope returned on success
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// RPCHandler handles generic JSON-RPC passthrough requests
type RPCHandler struct {
	router RouterService
	logger *zap.Logger
}

// NewRPCHandler creates a new RPCHandler
func NewRPCHandler(router RouterService, logger *zap.Logger) *RPCHandler {
	return &RPCHandler{router: router, logger: logger}
}

// HandleCall handles POST /api/v1/rpc. The request body is a JSON-RPC 2.0
// envelope; the method and params are forwarded opaquely to the selected
// provider.
func (h *RPCHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "invalid JSON-RPC request body", nil)
		return
	}
	if req.Method == "" {
		_ = utils.WriteBadRequest(w, "method is required", nil)
		return
	}

	result, err := h.router.Call(r.Context(), req.Method, req.Params)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, RPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}); err != nil {
		h.logger.Error("failed to write rpc response", zap.Error(err))
	}
}
