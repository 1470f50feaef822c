package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/solforge/rpc-router/services"
	"github.com/solforge/rpc-router/utils"
)

// HandleServiceError maps router errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var routerErr *services.RouterError
	if !errors.As(err, &routerErr) {
		logger.Error("unhandled error type", zap.Error(err))
		writeOrLog(utils.WriteInternalServerError(w, "An unexpected error occurred"), logger)
		return
	}

	details := map[string]interface{}{}
	if routerErr.Provider != "" {
		details["provider"] = routerErr.Provider
	}

	switch routerErr.Type {
	case services.ErrorTypeNoCapable:
		writeOrLog(utils.WriteNotImplemented(w, routerErr.Message), logger)

	case services.ErrorTypeExhausted:
		writeOrLog(utils.WriteBadGateway(w, routerErr.Message, details), logger)

	case services.ErrorTypeProvider:
		writeOrLog(utils.WriteBadGateway(w, routerErr.Message, details), logger)

	case services.ErrorTypeTimeout:
		writeOrLog(utils.WriteGatewayTimeout(w, routerErr.Message), logger)

	case services.ErrorTypeCircuitOpen, services.ErrorTypeRouterClosed:
		writeOrLog(utils.WriteServiceUnavailable(w, routerErr.Message), logger)

	case services.ErrorTypeConfig:
		logger.Error("configuration error surfaced at request time", zap.Error(err))
		writeOrLog(utils.WriteInternalServerError(w, "An internal error occurred"), logger)

	default:
		logger.Error("internal server error", zap.Error(err))
		writeOrLog(utils.WriteInternalServerError(w, "An internal error occurred"), logger)
	}
}

func writeOrLog(err error, logger *zap.Logger) {
	if err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}
