package router

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/solforge/rpc-router/config"
	"github.com/solforge/rpc-router/services"
	"github.com/solforge/rpc-router/services/bundle"
	"github.com/solforge/rpc-router/services/fees"
	"github.com/solforge/rpc-router/services/health"
	"github.com/solforge/rpc-router/services/metrics"
	"github.com/solforge/rpc-router/services/providers"
	"github.com/solforge/rpc-router/services/routing"
)

// State is the router lifecycle state
type State int32

const (
	// StateInitializing constructs adapters; no calls accepted yet
	StateInitializing State = iota

	// StateReady is normal operation
	StateReady

	// StateDegraded is Ready with zero healthy providers; calls are still
	// attempted through the policy's fallback branch
	StateDegraded

	// StateShuttingDown drains in-flight operations and refuses new ones
	StateShuttingDown

	// StateClosed is terminal; every call fails with RouterClosed
	StateClosed
)

// String returns the state name used in health reports
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateShuttingDown:
		return "shutting_down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ProviderHealth is the per-provider section of a health report
type ProviderHealth struct {
	Healthy      bool    `json:"healthy"`
	Enabled      bool    `json:"enabled"`
	Priority     int     `json:"priority"`
	LatencyMs    float64 `json:"latency_ms"`
	ErrorRate    float64 `json:"error_rate"`
	CircuitState string  `json:"circuit_state"`

	// FastPath marks providers under the configured latency threshold
	FastPath bool `json:"fast_path"`
}

// HealthReport is the router-level health snapshot
type HealthReport struct {
	Healthy          bool                      `json:"healthy"`
	State            string                    `json:"state"`
	TotalProviders   int                       `json:"total_providers"`
	HealthyProviders int                       `json:"healthy_providers"`
	Providers        map[string]ProviderHealth `json:"providers"`
}

// Router is the public entry point composing the registry, health monitor,
// routing policy, bundle submitter, fee estimator and metrics.
type Router struct {
	cfg        *config.Config
	registry   *providers.Registry
	monitor    *health.Monitor
	dispatcher *routing.Dispatcher
	submitter  *bundle.Submitter
	estimator  *fees.Estimator
	metrics    *metrics.Registry
	logger     *zap.Logger

	state    atomic.Int32
	inflight sync.WaitGroup
	shutdown sync.Once
}

// New constructs a router from validated configuration and the adapters
// built for it, keyed by provider name. Reaching Ready requires at least one
// successfully constructed provider; it does not require any to be healthy.
func New(cfg *config.Config, adapters map[string]providers.Adapter, logger *zap.Logger) (*Router, error) {
	r := &Router{
		cfg:    cfg,
		logger: logger,
	}
	r.state.Store(int32(StateInitializing))

	specs := make([]providers.EntrySpec, 0, len(cfg.Providers))
	for name, providerCfg := range cfg.Providers {
		adapter, ok := adapters[name]
		if !ok {
			return nil, services.NewConfigError("no adapter constructed for provider "+name, nil)
		}
		specs = append(specs, providers.EntrySpec{
			Adapter:           adapter,
			Priority:          providerCfg.Priority,
			Enabled:           providerCfg.Enabled(),
			BreakerThreshold:  cfg.Routing.CircuitBreakerThreshold,
			BreakerTimeout:    cfg.Routing.CircuitBreakerTimeout.Std(),
			RequestsPerSecond: providerCfg.RequestsPerSecond,
		})
	}

	registry, err := providers.NewRegistry(specs)
	if err != nil {
		return nil, services.NewConfigError("failed to build provider registry", err)
	}
	r.registry = registry

	policy, err := routing.ForName(cfg.Routing.Policy)
	if err != nil {
		return nil, services.NewConfigError("unknown routing policy", err)
	}

	r.metrics = metrics.NewRegistry(cfg.Routing.BundleSuccessRateThreshold)
	r.dispatcher = routing.NewDispatcher(registry, policy, r.metrics, logger)
	r.submitter = bundle.NewSubmitter(registry, r.dispatcher, r.metrics, logger)
	r.estimator = fees.NewEstimator(registry, r.dispatcher, cfg.Routing.FeeCacheTTL.Std(), logger)
	r.monitor = health.NewMonitor(registry, health.Options{
		Interval:     cfg.Routing.HealthCheckInterval.Std(),
		Timeout:      cfg.Routing.HealthCheckTimeout.Std(),
		MaxErrorRate: cfg.Routing.MaxErrorRate,
		MaxLatencyMs: cfg.Routing.MaxLatencyMs,
	}, logger)
	r.monitor.Start(context.Background())

	r.state.Store(int32(StateReady))
	logger.Info("router ready",
		zap.Int("providers", registry.Len()),
		zap.String("policy", string(policy.Name())))
	return r, nil
}

// State returns the current lifecycle state. Ready and Degraded are
// re-evaluated continuously from the health snapshot rather than stored.
func (r *Router) State() State {
	s := State(r.state.Load())
	if s != StateReady && s != StateDegraded {
		return s
	}
	if r.healthyCount() == 0 {
		return StateDegraded
	}
	return StateReady
}

func (r *Router) healthyCount() int {
	count := 0
	for _, snap := range r.registry.Snapshots() {
		if snap.Healthy {
			count++
		}
	}
	return count
}

// begin gates a top-level operation on the lifecycle state and registers it
// as in-flight
func (r *Router) begin() error {
	s := State(r.state.Load())
	if s == StateShuttingDown || s == StateClosed || s == StateInitializing {
		return services.ErrRouterClosed
	}
	r.inflight.Add(1)
	return nil
}

// withTimeout applies the configured default deadline when the caller
// supplied none
func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	d := r.cfg.Routing.RequestTimeout.Std()
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Call performs a generic passthrough RPC against the best provider
func (r *Router) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	defer r.inflight.Done()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.dispatcher.Call(ctx, method, params)
}

// SubmitBundle submits an atomic transaction bundle
func (r *Router) SubmitBundle(ctx context.Context, req *providers.BundleRequest) (*providers.BundleResult, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	defer r.inflight.Done()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.submitter.Submit(ctx, req)
}

// GetPriorityFeeEstimate returns a fee estimate for the given urgency
func (r *Router) GetPriorityFeeEstimate(ctx context.Context, urgency providers.Urgency) (*providers.FeeEstimate, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	defer r.inflight.Done()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.estimator.Estimate(ctx, urgency)
}

// Health returns the router-level health snapshot
func (r *Router) Health() HealthReport {
	snaps := r.registry.Snapshots()

	report := HealthReport{
		TotalProviders: len(snaps),
		Providers:      make(map[string]ProviderHealth, len(snaps)),
	}
	for _, snap := range snaps {
		if snap.Healthy {
			report.HealthyProviders++
		}
		report.Providers[snap.Name] = ProviderHealth{
			Healthy:      snap.Healthy,
			Enabled:      snap.Enabled,
			Priority:     snap.Priority,
			LatencyMs:    snap.LatencyMs,
			ErrorRate:    snap.ErrorRate,
			CircuitState: snap.Circuit.String(),
			FastPath:     snap.Healthy && snap.LatencyMs <= r.cfg.Routing.LatencyThresholdMs,
		}
	}
	report.Healthy = report.HealthyProviders > 0
	report.State = r.State().String()
	return report
}

// Metrics returns the metrics snapshot including per-feature availability
func (r *Router) Metrics() metrics.Snapshot {
	availability := r.registry.AvailableByFeature()
	r.metrics.SetAvailability(availability)
	return r.metrics.Snapshot(availability)
}

// MetricsRegistry exposes the underlying registry for the scrape endpoint
func (r *Router) MetricsRegistry() *metrics.Registry {
	return r.metrics
}

// ProbeNow runs one synchronous probe cycle; used at startup to seed health
// before the first interval elapses
func (r *Router) ProbeNow(ctx context.Context) {
	r.monitor.ProbeAll(ctx)
}

// Shutdown drains in-flight operations and closes every adapter. The first
// call performs the shutdown and returns nil; calls after completion return
// RouterClosed. In-flight operations get a grace period bounded by the
// configured shutdown timeout before the router closes anyway.
func (r *Router) Shutdown(ctx context.Context) error {
	alreadyClosed := true
	r.shutdown.Do(func() {
		alreadyClosed = false
		r.state.Store(int32(StateShuttingDown))
		r.logger.Info("router shutting down")

		r.monitor.Stop()

		done := make(chan struct{})
		go func() {
			r.inflight.Wait()
			close(done)
		}()

		grace := r.cfg.Server.ShutdownTimeout.Std()
		if grace <= 0 {
			grace = 10 * time.Second
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			r.logger.Warn("shutdown grace period expired with operations in flight")
		case <-ctx.Done():
			r.logger.Warn("shutdown context cancelled before drain completed")
		}

		if err := r.registry.Close(); err != nil {
			r.logger.Warn("error closing provider adapters", zap.Error(err))
		}

		r.state.Store(int32(StateClosed))
		r.logger.Info("router closed")
	})

	if alreadyClosed {
		return services.ErrRouterClosed
	}
	return nil
}
