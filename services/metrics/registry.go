package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solforge/rpc-router/services/providers"
)

// bundleWindowSize bounds the rolling bundle success-rate window
const bundleWindowSize = 50

// Snapshot is a point-in-time view of router metrics. All totals are
// monotonically non-decreasing; the rolling bundle rate is windowed.
type Snapshot struct {
	TotalRequests        uint64  `json:"total_requests"`
	TotalSuccesses       uint64  `json:"total_successes"`
	SuccessRate          float64 `json:"success_rate"`
	TotalBundles         uint64  `json:"total_bundles"`
	TotalBundleSuccesses uint64  `json:"total_bundle_successes"`
	BundleSuccessRate    float64 `json:"bundle_success_rate"`

	// RollingBundleSuccessRate is computed over the recent window only
	RollingBundleSuccessRate float64 `json:"rolling_bundle_success_rate"`

	// BundleRateDegraded is set when the rolling rate has dropped below the
	// configured threshold. Observability signal only; the router takes no
	// automatic action.
	BundleRateDegraded bool `json:"bundle_rate_degraded"`

	// AvailableByFeature counts enabled and healthy providers per feature
	AvailableByFeature map[providers.Feature]int `json:"available_by_feature"`
}

// Registry maintains the router's counters and mirrors them into Prometheus
// collectors served from Handler
type Registry struct {
	totalRequests        atomic.Uint64
	totalSuccesses       atomic.Uint64
	totalBundles         atomic.Uint64
	totalBundleSuccesses atomic.Uint64

	bundleRateThreshold float64

	mu           sync.Mutex
	bundleWindow [bundleWindowSize]bool
	bundleIdx    int
	bundleCount  int

	promRegistry  *prometheus.Registry
	requestsTotal *prometheus.CounterVec
	bundlesTotal  *prometheus.CounterVec
	availability  *prometheus.GaugeVec
	bundleRate    prometheus.Gauge
}

// NewRegistry creates a metrics registry. bundleRateThreshold is the rolling
// bundle success rate below which the degraded condition is raised.
func NewRegistry(bundleRateThreshold float64) *Registry {
	promReg := prometheus.NewRegistry()

	r := &Registry{
		bundleRateThreshold: bundleRateThreshold,
		promRegistry:        promReg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpcrouter",
			Name:      "requests_total",
			Help:      "Total RPC requests by outcome.",
		}, []string{"outcome"}),
		bundlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpcrouter",
			Name:      "bundles_total",
			Help:      "Total bundle submissions by outcome.",
		}, []string{"outcome"}),
		availability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rpcrouter",
			Name:      "providers_available",
			Help:      "Enabled and healthy providers per feature.",
		}, []string{"feature"}),
		bundleRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcrouter",
			Name:      "bundle_rolling_success_rate",
			Help:      "Rolling bundle submission success rate.",
		}),
	}

	promReg.MustRegister(r.requestsTotal, r.bundlesTotal, r.availability, r.bundleRate)
	return r
}

// RecordRequest records the outcome of one top-level call
func (r *Registry) RecordRequest(success bool) {
	r.totalRequests.Add(1)
	if success {
		r.totalSuccesses.Add(1)
		r.requestsTotal.WithLabelValues("success").Inc()
	} else {
		r.requestsTotal.WithLabelValues("failure").Inc()
	}
}

// RecordBundle records the outcome of one bundle submission into both the
// monotonic totals and the rolling window
func (r *Registry) RecordBundle(success bool) {
	r.totalBundles.Add(1)
	if success {
		r.totalBundleSuccesses.Add(1)
		r.bundlesTotal.WithLabelValues("success").Inc()
	} else {
		r.bundlesTotal.WithLabelValues("failure").Inc()
	}

	r.mu.Lock()
	r.bundleWindow[r.bundleIdx] = success
	r.bundleIdx = (r.bundleIdx + 1) % bundleWindowSize
	if r.bundleCount < bundleWindowSize {
		r.bundleCount++
	}
	rate := r.rollingBundleRateLocked()
	r.mu.Unlock()

	r.bundleRate.Set(rate)
}

// rollingBundleRateLocked computes the windowed success rate; an empty
// window reports 1 so a router that has never submitted is not degraded
func (r *Registry) rollingBundleRateLocked() float64 {
	if r.bundleCount == 0 {
		return 1
	}
	successes := 0
	for i := 0; i < r.bundleCount; i++ {
		if r.bundleWindow[i] {
			successes++
		}
	}
	return float64(successes) / float64(r.bundleCount)
}

// SetAvailability publishes per-feature available-provider counts
func (r *Registry) SetAvailability(counts map[providers.Feature]int) {
	for feature, n := range counts {
		r.availability.WithLabelValues(string(feature)).Set(float64(n))
	}
}

// Snapshot returns current totals and derived rates. Division by zero is
// guarded: rates over zero totals report 0.
func (r *Registry) Snapshot(availability map[providers.Feature]int) Snapshot {
	requests := r.totalRequests.Load()
	successes := r.totalSuccesses.Load()
	bundles := r.totalBundles.Load()
	bundleSuccesses := r.totalBundleSuccesses.Load()

	r.mu.Lock()
	rolling := r.rollingBundleRateLocked()
	hasWindow := r.bundleCount > 0
	r.mu.Unlock()

	snap := Snapshot{
		TotalRequests:            requests,
		TotalSuccesses:           successes,
		TotalBundles:             bundles,
		TotalBundleSuccesses:     bundleSuccesses,
		RollingBundleSuccessRate: rolling,
		BundleRateDegraded:       hasWindow && rolling < r.bundleRateThreshold,
		AvailableByFeature:       availability,
	}
	if requests > 0 {
		snap.SuccessRate = float64(successes) / float64(requests)
	}
	if bundles > 0 {
		snap.BundleSuccessRate = float64(bundleSuccesses) / float64(bundles)
	}
	return snap
}

// Handler returns the Prometheus scrape handler backed by this registry's
// dedicated collector registry
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.promRegistry, promhttp.HandlerOpts{})
}
