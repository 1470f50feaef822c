package routing

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/solforge/rpc-router/services"
	"github.com/solforge/rpc-router/services/metrics"
	"github.com/solforge/rpc-router/services/providers"
)

// Dispatcher routes generic RPC calls across the provider set. Per-attempt
// failures are absorbed and drive retry against the next ordered candidate;
// only exhaustion or absence of candidates surfaces to the caller.
type Dispatcher struct {
	registry *providers.Registry
	policy   Policy
	metrics  *metrics.Registry
	logger   *zap.Logger
}

// NewDispatcher creates a call dispatcher
func NewDispatcher(registry *providers.Registry, policy Policy, m *metrics.Registry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		policy:   policy,
		metrics:  m,
		logger:   logger,
	}
}

// Policy returns the active routing policy
func (d *Dispatcher) Policy() Policy {
	return d.policy
}

// Candidates returns the ordered preference list for a feature from a fresh
// registry snapshot. Shared by the call, bundle and fee paths.
func (d *Dispatcher) Candidates(feature providers.Feature) ([]providers.Snapshot, error) {
	snaps := d.registry.Snapshots()

	if !Capable(snaps, feature) {
		return nil, services.ErrNoCapableProvider
	}

	eligible := Eligible(snaps, feature)
	if len(eligible) == 0 {
		// Capable providers exist but every one is excluded (open circuit).
		// Nothing was contacted, but the caller still sees exhaustion.
		return nil, services.ErrAllProvidersExhausted
	}

	return d.policy.Rank(eligible), nil
}

// Call performs a generic JSON-RPC call against the best available provider,
// retrying sequentially through the ordered candidate list. Attempts are
// bounded by the registry size.
func (d *Dispatcher) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	ordered, err := d.Candidates(providers.FeatureRawCall)
	if err != nil {
		d.metrics.RecordRequest(false)
		return nil, err
	}

	var lastErr error
	for _, candidate := range ordered {
		if ctx.Err() != nil {
			d.metrics.RecordRequest(false)
			return nil, services.NewTimeoutError(candidate.Name, ctx.Err())
		}

		entry, err := d.registry.Get(candidate.Name)
		if err != nil {
			continue
		}

		// Skipping an open circuit is not a failed attempt against that
		// provider's breaker.
		if !entry.Breaker().Allow() {
			d.logger.Debug("skipping provider with open circuit",
				zap.String("provider", candidate.Name),
				zap.String("method", method))
			continue
		}

		result, err := entry.Invoke(ctx, method, params)
		if err == nil {
			d.metrics.RecordRequest(true)
			return result, nil
		}

		lastErr = classifyAttempt(candidate.Name, err)
		d.logger.Warn("provider call failed, trying next candidate",
			zap.String("provider", candidate.Name),
			zap.String("method", method),
			zap.Error(err))

		// A caller-level cancellation must not leak into further retries
		if ctx.Err() != nil {
			d.metrics.RecordRequest(false)
			return nil, services.NewTimeoutError(candidate.Name, ctx.Err())
		}
	}

	d.metrics.RecordRequest(false)
	return nil, services.NewRouterError(services.ErrorTypeExhausted, "all providers exhausted", lastErr)
}

// classifyAttempt converts an adapter error into the router taxonomy
func classifyAttempt(provider string, err error) error {
	if providers.IsTimeout(err) {
		return services.NewTimeoutError(provider, err)
	}
	return services.NewProviderFailure(provider, err)
}
