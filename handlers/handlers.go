// Package handlers contains the HTTP handlers in front of the router.
// Handlers stay thin: parse, delegate, map errors.
package handlers

import (
	"context"
	"encoding/json"

	"github.com/solforge/rpc-router/services/metrics"
	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/services/router"
)

// RouterService is the router surface the handlers depend on
type RouterService interface {
	Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
	SubmitBundle(ctx context.Context, req *providers.BundleRequest) (*providers.BundleResult, error)
	GetPriorityFeeEstimate(ctx context.Context, urgency providers.Urgency) (*providers.FeeEstimate, error)
	Health() router.HealthReport
	Metrics() metrics.Snapshot
}
