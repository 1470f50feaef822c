package fees

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solforge/rpc-router/services"
	"github.com/solforge/rpc-router/services/metrics"
	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/services/routing"
)

// feeAdapter is a scriptable fee-capable adapter
type feeAdapter struct {
	name    string
	capable bool
	fee     float64
	err     error
	queries int
}

func (f *feeAdapter) Name() string {
	return f.name
}

func (f *feeAdapter) Features() providers.FeatureSet {
	if f.capable {
		return providers.NewFeatureSet(providers.FeatureRawCall, providers.FeatureFeeEstimate)
	}
	return providers.NewFeatureSet(providers.FeatureRawCall)
}

func (f *feeAdapter) Invoke(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`"ok"`), nil
}

func (f *feeAdapter) Probe(ctx context.Context) (time.Duration, error) {
	return time.Millisecond, nil
}

func (f *feeAdapter) Close() error {
	return nil
}

func (f *feeAdapter) EstimateFee(ctx context.Context, urgency providers.Urgency) (*providers.FeeEstimate, error) {
	f.queries++
	if f.err != nil {
		return nil, f.err
	}
	return &providers.FeeEstimate{Fee: f.fee, Unit: "microlamports", Confidence: 0.85}, nil
}

func buildEstimator(t *testing.T, cacheTTL time.Duration, adapters ...*feeAdapter) (*Estimator, *providers.Registry) {
	t.Helper()

	specs := make([]providers.EntrySpec, 0, len(adapters))
	for i, a := range adapters {
		specs = append(specs, providers.EntrySpec{
			Adapter:          a,
			Priority:         i,
			Enabled:          true,
			BreakerThreshold: 5,
			BreakerTimeout:   time.Minute,
		})
	}
	reg, err := providers.NewRegistry(specs)
	require.NoError(t, err)

	reg.Each(func(e *providers.Entry) {
		e.ReportOutcome(true, 10*time.Millisecond)
		e.RecomputeHealth(0.5, 1000)
	})

	d := routing.NewDispatcher(reg, routing.NewHealthFirst(), metrics.NewRegistry(0.8), zap.NewNop())
	return NewEstimator(reg, d, cacheTTL, zap.NewNop()), reg
}

func TestEstimateFromTopCandidate(t *testing.T) {
	primary := &feeAdapter{name: "primary", capable: true, fee: 5000}
	backup := &feeAdapter{name: "backup", capable: true, fee: 9000}
	e, _ := buildEstimator(t, 0, primary, backup)

	estimate, err := e.Estimate(context.Background(), providers.UrgencyHigh)

	require.NoError(t, err)
	assert.Equal(t, 5000.0, estimate.Fee)
	assert.Equal(t, "primary", estimate.Provider)
	assert.Equal(t, "microlamports", estimate.Unit)
	assert.Zero(t, backup.queries, "single-source read, no aggregation")
}

func TestEstimateFailsOver(t *testing.T) {
	broken := &feeAdapter{name: "broken", capable: true, err: errors.New("api error")}
	backup := &feeAdapter{name: "backup", capable: true, fee: 7000}
	e, _ := buildEstimator(t, 0, broken, backup)

	estimate, err := e.Estimate(context.Background(), providers.UrgencyNormal)

	require.NoError(t, err)
	assert.Equal(t, "backup", estimate.Provider)
	assert.Equal(t, 1, broken.queries)
}

func TestEstimateNoCapableProvider(t *testing.T) {
	plain := &feeAdapter{name: "plain", capable: false}
	e, _ := buildEstimator(t, 0, plain)

	_, err := e.Estimate(context.Background(), providers.UrgencyNormal)

	assert.ErrorIs(t, err, services.ErrNoCapableProvider)
	assert.Zero(t, plain.queries, "no adapter contacted before the capability check")
}

func TestEstimateExhaustion(t *testing.T) {
	broken := &feeAdapter{name: "broken", capable: true, err: errors.New("down")}
	e, _ := buildEstimator(t, 0, broken)

	_, err := e.Estimate(context.Background(), providers.UrgencyNormal)
	assert.ErrorIs(t, err, services.ErrAllProvidersExhausted)
}

func TestEstimateCacheHit(t *testing.T) {
	adapter := &feeAdapter{name: "a", capable: true, fee: 1234}
	e, _ := buildEstimator(t, time.Minute, adapter)

	first, err := e.Estimate(context.Background(), providers.UrgencyMEV)
	require.NoError(t, err)

	second, err := e.Estimate(context.Background(), providers.UrgencyMEV)
	require.NoError(t, err)

	assert.Equal(t, first.Fee, second.Fee)
	assert.Equal(t, 1, adapter.queries, "second read served from cache")

	// Different urgency misses the cache
	_, err = e.Estimate(context.Background(), providers.UrgencyNormal)
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.queries)
}

func TestEstimateCacheExpiry(t *testing.T) {
	adapter := &feeAdapter{name: "a", capable: true, fee: 1234}
	e, _ := buildEstimator(t, 50*time.Millisecond, adapter)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return current }

	_, err := e.Estimate(context.Background(), providers.UrgencyNormal)
	require.NoError(t, err)

	current = current.Add(100 * time.Millisecond)
	_, err = e.Estimate(context.Background(), providers.UrgencyNormal)
	require.NoError(t, err)

	assert.Equal(t, 2, adapter.queries, "stale entry refetched")
}

func TestEstimateCacheDisabled(t *testing.T) {
	adapter := &feeAdapter{name: "a", capable: true, fee: 1234}
	e, _ := buildEstimator(t, 0, adapter)

	_, _ = e.Estimate(context.Background(), providers.UrgencyNormal)
	_, _ = e.Estimate(context.Background(), providers.UrgencyNormal)

	assert.Equal(t, 2, adapter.queries)
}
