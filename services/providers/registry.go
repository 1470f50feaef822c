package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/ratelimit"

	"github.com/solforge/rpc-router/services/circuit"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrDuplicateProvider is returned when two entries share a name
	ErrDuplicateProvider = errors.New("duplicate provider name")

	// ErrEmptyRegistry is returned when no provider entries are supplied
	ErrEmptyRegistry = errors.New("provider registry cannot be empty")
)

// errorWindowSize bounds the rolling error-rate window per provider
const errorWindowSize = 50

// latencyAlpha is the EWMA smoothing factor for latency tracking
const latencyAlpha = 0.3

// EntrySpec describes one provider entry at registry construction time
type EntrySpec struct {
	// Adapter wraps the upstream backend
	Adapter Adapter

	// Priority orders providers; lower is preferred
	Priority int

	// Enabled is the operator toggle
	Enabled bool

	// BreakerThreshold is the consecutive-failure count that opens the circuit
	BreakerThreshold int

	// BreakerTimeout is how long the circuit stays open before a probe
	BreakerTimeout time.Duration

	// RequestsPerSecond caps outbound request pacing; zero disables pacing
	RequestsPerSecond int
}

// Snapshot is a point-in-time read-only view of a provider entry, used by
// routing policies. A snapshot may be slightly stale; staleness is bounded
// by the health-check interval.
type Snapshot struct {
	Name      string
	Priority  int
	Enabled   bool
	Healthy   bool
	LatencyMs float64
	ErrorRate float64
	Features  FeatureSet
	Circuit   circuit.State
}

// Entry is one provider in the registry. The adapter itself is stateless;
// the entry owns the mutable health, latency and circuit state behind a
// per-provider lock so that updates to one provider never block another.
type Entry struct {
	adapter  Adapter
	name     string
	priority int
	features FeatureSet
	breaker  *circuit.Breaker
	limiter  ratelimit.Limiter

	mu          sync.RWMutex
	enabled     bool
	healthy     bool
	latencyMs   float64
	seeded      bool
	outcomes    [errorWindowSize]bool
	outcomeIdx  int
	outcomeSize int
}

// Name returns the provider name
func (e *Entry) Name() string {
	return e.name
}

// Adapter returns the wrapped adapter
func (e *Entry) Adapter() Adapter {
	return e.adapter
}

// Features returns the advertised capability set
func (e *Entry) Features() FeatureSet {
	return e.features
}

// Breaker returns the entry's circuit breaker
func (e *Entry) Breaker() *circuit.Breaker {
	return e.breaker
}

// Enabled reports the operator toggle
func (e *Entry) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// SetEnabled flips the operator toggle
func (e *Entry) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// Invoke performs a generic call through the adapter, applying pacing and
// recording the outcome into the entry's health state and circuit breaker.
// Every invocation reports its outcome regardless of which higher-level
// operation triggered it.
func (e *Entry) Invoke(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if e.limiter != nil {
		e.limiter.Take()
	}

	start := time.Now()
	result, err := e.adapter.Invoke(ctx, method, params)
	e.ReportOutcome(err == nil, time.Since(start))
	return result, err
}

// SubmitBundle submits a bundle through the adapter's bundle capability,
// applying pacing and recording the outcome like any other invocation
func (e *Entry) SubmitBundle(ctx context.Context, req *BundleRequest) (*BundleResult, error) {
	bundler, ok := e.adapter.(BundleCapable)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support bundles", e.name)
	}
	if e.limiter != nil {
		e.limiter.Take()
	}

	start := time.Now()
	result, err := bundler.SubmitBundle(ctx, req)
	latency := time.Since(start)
	e.ReportOutcome(err == nil, latency)
	if result != nil {
		result.Latency = latency
	}
	return result, err
}

// EstimateFee queries the adapter's fee capability, applying pacing and
// recording the outcome like any other invocation
func (e *Entry) EstimateFee(ctx context.Context, urgency Urgency) (*FeeEstimate, error) {
	estimator, ok := e.adapter.(FeeCapable)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support fee estimates", e.name)
	}
	if e.limiter != nil {
		e.limiter.Take()
	}

	start := time.Now()
	estimate, err := estimator.EstimateFee(ctx, urgency)
	e.ReportOutcome(err == nil, time.Since(start))
	return estimate, err
}

// ReportOutcome records a success or failure with its latency into the
// rolling window, the EWMA latency estimate and the circuit breaker
func (e *Entry) ReportOutcome(success bool, latency time.Duration) {
	e.mu.Lock()
	e.outcomes[e.outcomeIdx] = !success
	e.outcomeIdx = (e.outcomeIdx + 1) % errorWindowSize
	if e.outcomeSize < errorWindowSize {
		e.outcomeSize++
	}

	if success {
		ms := float64(latency.Milliseconds())
		if !e.seeded {
			e.latencyMs = ms
			e.seeded = true
		} else {
			e.latencyMs = latencyAlpha*ms + (1-latencyAlpha)*e.latencyMs
		}
	}
	e.mu.Unlock()

	if success {
		e.breaker.RecordSuccess()
	} else {
		e.breaker.RecordFailure()
	}
}

// ErrorRate returns the failure fraction over the rolling window
func (e *Entry) ErrorRate() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.errorRateLocked()
}

func (e *Entry) errorRateLocked() float64 {
	if e.outcomeSize == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < e.outcomeSize; i++ {
		if e.outcomes[i] {
			failures++
		}
	}
	return float64(failures) / float64(e.outcomeSize)
}

// RecomputeHealth re-derives the healthy flag. Only the health monitor
// calls this; everything else reads the result through snapshots.
func (e *Entry) RecomputeHealth(maxErrorRate, maxLatencyMs float64) bool {
	circuitOpen := e.breaker.State() == circuit.StateOpen

	e.mu.Lock()
	defer e.mu.Unlock()

	e.healthy = e.enabled &&
		e.errorRateLocked() <= maxErrorRate &&
		e.latencyMs <= maxLatencyMs &&
		!circuitOpen
	return e.healthy
}

// Snapshot returns a point-in-time copy of the entry's routing-relevant state
func (e *Entry) Snapshot() Snapshot {
	state := e.breaker.State()

	e.mu.RLock()
	defer e.mu.RUnlock()

	return Snapshot{
		Name:      e.name,
		Priority:  e.priority,
		Enabled:   e.enabled,
		Healthy:   e.healthy,
		LatencyMs: e.latencyMs,
		ErrorRate: e.errorRateLocked(),
		Features:  e.features,
		Circuit:   state,
	}
}

// Registry holds the fixed provider set. Membership is established once at
// construction and never changes at runtime; only the per-entry mutable
// state is written afterwards.
type Registry struct {
	entries map[string]*Entry
	ordered []string // names in deterministic order
}

// NewRegistry builds a registry from entry specs. It fails when the set is
// empty, a name repeats, or an adapter advertises a feature it does not
// implement.
func NewRegistry(specs []EntrySpec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyRegistry
	}

	entries := make(map[string]*Entry, len(specs))
	for _, spec := range specs {
		if spec.Adapter == nil {
			return nil, errors.New("provider adapter cannot be nil")
		}
		name := spec.Adapter.Name()
		if name == "" {
			return nil, errors.New("provider name cannot be empty")
		}
		if _, exists := entries[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
		}
		if err := validateFeatures(spec.Adapter); err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}

		entry := &Entry{
			adapter:  spec.Adapter,
			name:     name,
			priority: spec.Priority,
			enabled:  spec.Enabled,
			features: spec.Adapter.Features(),
			breaker:  circuit.New(spec.BreakerThreshold, spec.BreakerTimeout),
		}
		if spec.RequestsPerSecond > 0 {
			entry.limiter = ratelimit.New(spec.RequestsPerSecond)
		}
		entries[name] = entry
	}

	ordered := make([]string, 0, len(entries))
	for name := range entries {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	return &Registry{entries: entries, ordered: ordered}, nil
}

// validateFeatures checks that advertised features are backed by the
// corresponding optional interface
func validateFeatures(a Adapter) error {
	fs := a.Features()
	if fs.Has(FeatureBundles) {
		if _, ok := a.(BundleCapable); !ok {
			return errors.New("advertises bundles but does not implement BundleCapable")
		}
	}
	if fs.Has(FeatureFeeEstimate) {
		if _, ok := a.(FeeCapable); !ok {
			return errors.New("advertises fee_estimate but does not implement FeeCapable")
		}
	}
	return nil
}

// Get retrieves an entry by name
func (r *Registry) Get(name string) (*Entry, error) {
	entry, exists := r.entries[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return entry, nil
}

// Names returns all provider names in deterministic order
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	copy(names, r.ordered)
	return names
}

// Len returns the number of providers
func (r *Registry) Len() int {
	return len(r.entries)
}

// Snapshots returns point-in-time views of every entry in name order
func (r *Registry) Snapshots() []Snapshot {
	snaps := make([]Snapshot, 0, len(r.ordered))
	for _, name := range r.ordered {
		snaps = append(snaps, r.entries[name].Snapshot())
	}
	return snaps
}

// Each visits every entry in name order
func (r *Registry) Each(fn func(*Entry)) {
	for _, name := range r.ordered {
		fn(r.entries[name])
	}
}

// AvailableByFeature counts enabled and healthy providers supporting each
// feature. Callers use this to decide whether a feature-dependent path is
// viable before attempting it.
func (r *Registry) AvailableByFeature() map[Feature]int {
	counts := map[Feature]int{
		FeatureRawCall:     0,
		FeatureBundles:     0,
		FeatureFeeEstimate: 0,
		FeatureShredstream: 0,
	}
	for _, snap := range r.Snapshots() {
		if !snap.Enabled || !snap.Healthy {
			continue
		}
		for f := range snap.Features {
			if snap.Features[f] {
				counts[f]++
			}
		}
	}
	return counts
}

// Close releases every adapter's connections
func (r *Registry) Close() error {
	var firstErr error
	for _, name := range r.ordered {
		if err := r.entries[name].adapter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
