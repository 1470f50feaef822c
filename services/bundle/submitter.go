package bundle

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solforge/rpc-router/services"
	"github.com/solforge/rpc-router/services/metrics"
	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/services/routing"
)

// Submitter routes atomic bundle submissions to bundle-capable providers.
// It applies the same health and circuit filtering as the generic call path,
// with one addition: MEV-urgent bundles prefer shredstream-capable providers
// before the rest of the ordered list.
type Submitter struct {
	registry   *providers.Registry
	dispatcher *routing.Dispatcher
	metrics    *metrics.Registry
	logger     *zap.Logger
}

// NewSubmitter creates a bundle submitter
func NewSubmitter(registry *providers.Registry, dispatcher *routing.Dispatcher, m *metrics.Registry, logger *zap.Logger) *Submitter {
	return &Submitter{
		registry:   registry,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
	}
}

// Submit attempts the bundle against the ordered candidate list until one
// provider accepts it or the list is exhausted. The outcome feeds the
// bundle-specific rolling success rate; dropping below the configured
// threshold raises an observability signal only, never automatic remediation.
func (s *Submitter) Submit(ctx context.Context, req *providers.BundleRequest) (*providers.BundleResult, error) {
	if req.Urgency == "" {
		req.Urgency = providers.UrgencyNormal
	}

	ordered, err := s.dispatcher.Candidates(providers.FeatureBundles)
	if err != nil {
		s.metrics.RecordBundle(false)
		return nil, err
	}

	if req.Urgency == providers.UrgencyMEV {
		ordered = preferShredstream(ordered)
	}

	var lastErr error
	for _, candidate := range ordered {
		if ctx.Err() != nil {
			s.metrics.RecordBundle(false)
			return nil, services.NewTimeoutError(candidate.Name, ctx.Err())
		}

		entry, err := s.registry.Get(candidate.Name)
		if err != nil {
			continue
		}

		if !entry.Breaker().Allow() {
			s.logger.Debug("skipping bundle provider with open circuit",
				zap.String("provider", candidate.Name))
			continue
		}

		result, err := entry.SubmitBundle(ctx, req)
		if err == nil {
			if result.BundleID == "" {
				result.BundleID = uuid.NewString()
			}
			result.Provider = candidate.Name
			result.Success = true
			s.metrics.RecordBundle(true)
			s.logger.Info("bundle submitted",
				zap.String("provider", candidate.Name),
				zap.String("bundle_id", result.BundleID),
				zap.String("urgency", string(req.Urgency)),
				zap.Duration("latency", result.Latency))
			return result, nil
		}

		if providers.IsTimeout(err) {
			lastErr = services.NewTimeoutError(candidate.Name, err)
		} else {
			lastErr = services.NewProviderFailure(candidate.Name, err)
		}
		s.logger.Warn("bundle submission failed, trying next candidate",
			zap.String("provider", candidate.Name),
			zap.Error(err))

		if ctx.Err() != nil {
			s.metrics.RecordBundle(false)
			return nil, services.NewTimeoutError(candidate.Name, ctx.Err())
		}
	}

	s.metrics.RecordBundle(false)
	return nil, services.NewRouterError(services.ErrorTypeExhausted, "all bundle providers exhausted", lastErr)
}

// preferShredstream stable-partitions the ordered list so shredstream-capable
// providers come first, preserving relative order within each partition
func preferShredstream(ordered []providers.Snapshot) []providers.Snapshot {
	preferred := make([]providers.Snapshot, 0, len(ordered))
	rest := make([]providers.Snapshot, 0, len(ordered))
	for _, c := range ordered {
		if c.Features.Has(providers.FeatureShredstream) {
			preferred = append(preferred, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(preferred, rest...)
}
