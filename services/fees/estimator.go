package fees

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/solforge/rpc-router/services"
	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/services/routing"
)

// cacheSize bounds the estimate cache; one entry per urgency class in
// practice, sized generously for safety
const cacheSize = 8

// Estimator answers priority-fee queries from the top-ranked fee-capable
// provider, failing over down the ordered list when the preferred provider
// errors or times out. Estimates are single-source reads; no cross-provider
// aggregation happens here.
type Estimator struct {
	registry   *providers.Registry
	dispatcher *routing.Dispatcher
	logger     *zap.Logger

	cacheTTL time.Duration
	cache    *lru.Cache
	now      func() time.Time
}

// cachedEstimate is an estimate with its fetch time
type cachedEstimate struct {
	estimate providers.FeeEstimate
	fetched  time.Time
}

// NewEstimator creates a fee estimator. cacheTTL <= 0 disables caching.
func NewEstimator(registry *providers.Registry, dispatcher *routing.Dispatcher, cacheTTL time.Duration, logger *zap.Logger) *Estimator {
	e := &Estimator{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		cacheTTL:   cacheTTL,
		now:        time.Now,
	}
	if cacheTTL > 0 {
		// Only errors on non-positive size
		e.cache, _ = lru.New(cacheSize)
	}
	return e
}

// Estimate returns a priority-fee estimate for the given urgency. A fresh
// cached estimate is returned without contacting any provider; otherwise the
// ordered candidate list is queried until one provider answers.
func (e *Estimator) Estimate(ctx context.Context, urgency providers.Urgency) (*providers.FeeEstimate, error) {
	if urgency == "" {
		urgency = providers.UrgencyNormal
	}

	if cached, ok := e.lookup(urgency); ok {
		return cached, nil
	}

	ordered, err := e.dispatcher.Candidates(providers.FeatureFeeEstimate)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, candidate := range ordered {
		if ctx.Err() != nil {
			return nil, services.NewTimeoutError(candidate.Name, ctx.Err())
		}

		entry, err := e.registry.Get(candidate.Name)
		if err != nil {
			continue
		}

		if !entry.Breaker().Allow() {
			continue
		}

		estimate, err := entry.EstimateFee(ctx, urgency)
		if err == nil {
			estimate.Provider = candidate.Name
			e.store(urgency, estimate)
			return estimate, nil
		}

		if providers.IsTimeout(err) {
			lastErr = services.NewTimeoutError(candidate.Name, err)
		} else {
			lastErr = services.NewProviderFailure(candidate.Name, err)
		}
		e.logger.Warn("fee estimate failed, trying next candidate",
			zap.String("provider", candidate.Name),
			zap.String("urgency", string(urgency)),
			zap.Error(err))

		if ctx.Err() != nil {
			return nil, services.NewTimeoutError(candidate.Name, ctx.Err())
		}
	}

	return nil, services.NewRouterError(services.ErrorTypeExhausted, "all fee providers exhausted", lastErr)
}

// lookup returns a cached estimate when it is still fresh
func (e *Estimator) lookup(urgency providers.Urgency) (*providers.FeeEstimate, bool) {
	if e.cache == nil {
		return nil, false
	}
	value, ok := e.cache.Get(urgency)
	if !ok {
		return nil, false
	}
	cached := value.(cachedEstimate)
	if e.now().Sub(cached.fetched) > e.cacheTTL {
		e.cache.Remove(urgency)
		return nil, false
	}
	estimate := cached.estimate
	return &estimate, true
}

// store caches an estimate
func (e *Estimator) store(urgency providers.Urgency, estimate *providers.FeeEstimate) {
	if e.cache == nil {
		return
	}
	e.cache.Add(urgency, cachedEstimate{estimate: *estimate, fetched: e.now()})
}
