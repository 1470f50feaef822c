package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solforge/rpc-router/services/providers"
)

func TestSnapshotEmptyRegistry(t *testing.T) {
	r := NewRegistry(0.8)
	snap := r.Snapshot(nil)

	assert.Zero(t, snap.TotalRequests)
	assert.Zero(t, snap.SuccessRate, "rate over zero totals is 0, not NaN")
	assert.Zero(t, snap.BundleSuccessRate)
	assert.False(t, snap.BundleRateDegraded, "no submissions yet is not degraded")
}

func TestCountersMonotonicAndRatesBounded(t *testing.T) {
	r := NewRegistry(0.8)

	var prevRequests, prevSuccesses uint64
	outcomes := []bool{true, false, true, true, false, true, false, false, true, true}
	for _, ok := range outcomes {
		r.RecordRequest(ok)
		snap := r.Snapshot(nil)

		assert.GreaterOrEqual(t, snap.TotalRequests, prevRequests)
		assert.GreaterOrEqual(t, snap.TotalSuccesses, prevSuccesses)
		assert.GreaterOrEqual(t, snap.SuccessRate, 0.0)
		assert.LessOrEqual(t, snap.SuccessRate, 1.0)
		prevRequests = snap.TotalRequests
		prevSuccesses = snap.TotalSuccesses
	}

	snap := r.Snapshot(nil)
	assert.Equal(t, uint64(10), snap.TotalRequests)
	assert.Equal(t, uint64(6), snap.TotalSuccesses)
	assert.InDelta(t, 0.6, snap.SuccessRate, 0.001)
}

func TestBundleRollingRateDegradedCondition(t *testing.T) {
	r := NewRegistry(0.8)

	for i := 0; i < 8; i++ {
		r.RecordBundle(true)
	}
	assert.False(t, r.Snapshot(nil).BundleRateDegraded)

	for i := 0; i < 8; i++ {
		r.RecordBundle(false)
	}
	snap := r.Snapshot(nil)
	assert.InDelta(t, 0.5, snap.RollingBundleSuccessRate, 0.001)
	assert.True(t, snap.BundleRateDegraded)

	// Bundle totals are distinct from the generic request totals
	assert.Equal(t, uint64(16), snap.TotalBundles)
	assert.Zero(t, snap.TotalRequests)
}

func TestSnapshotCarriesAvailability(t *testing.T) {
	r := NewRegistry(0.8)
	avail := map[providers.Feature]int{
		providers.FeatureRawCall: 3,
		providers.FeatureBundles: 1,
	}

	snap := r.Snapshot(avail)
	assert.Equal(t, 3, snap.AvailableByFeature[providers.FeatureRawCall])
	assert.Equal(t, 1, snap.AvailableByFeature[providers.FeatureBundles])
}

func TestPrometheusHandlerServesCounters(t *testing.T) {
	r := NewRegistry(0.8)
	r.RecordRequest(true)
	r.RecordBundle(false)
	r.SetAvailability(map[providers.Feature]int{providers.FeatureRawCall: 2})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "rpcrouter_requests_total")
	assert.Contains(t, body, "rpcrouter_bundles_total")
	assert.Contains(t, body, "rpcrouter_providers_available")
}
