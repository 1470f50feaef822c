package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solforge/rpc-router/services/providers"
)

// Options configures the health monitor
type Options struct {
	// Interval between probe cycles per provider
	Interval time.Duration

	// Timeout applied to each individual probe
	Timeout time.Duration

	// MaxErrorRate above which a provider is considered unhealthy
	MaxErrorRate float64

	// MaxLatencyMs above which a provider is considered unhealthy
	MaxLatencyMs float64
}

// Monitor runs one independent periodic probe cycle per provider and is the
// only writer of the per-provider healthy flag. Probing continues for
// disabled and unhealthy providers so recovery is detected; it stops only
// when the monitor is stopped.
type Monitor struct {
	registry *providers.Registry
	opts     Options
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewMonitor creates a health monitor over the given registry
func NewMonitor(registry *providers.Registry, opts Options, logger *zap.Logger) *Monitor {
	return &Monitor{
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

// Start launches one probe goroutine per provider. It is a no-op when the
// monitor is already running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	probeCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.registry.Each(func(entry *providers.Entry) {
		m.wg.Add(1)
		go m.probeLoop(probeCtx, entry)
	})

	m.logger.Info("health monitor started",
		zap.Int("providers", m.registry.Len()),
		zap.Duration("interval", m.opts.Interval))
}

// Stop cancels all probe cycles and waits for them to finish
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
}

// probeLoop runs the probe cycle for a single provider. One provider's slow
// probe never blocks another's cycle.
func (m *Monitor) probeLoop(ctx context.Context, entry *providers.Entry) {
	defer m.wg.Done()

	// Probe immediately on start so the first health evaluation does not
	// wait a full interval.
	m.probeOnce(ctx, entry)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce(ctx, entry)
		}
	}
}

// probeOnce performs a single probe, records its outcome and re-derives the
// provider's healthy flag
func (m *Monitor) probeOnce(ctx context.Context, entry *providers.Entry) {
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	latency, err := entry.Adapter().Probe(probeCtx)
	if err != nil {
		// Do not count shutdown cancellation as a provider failure
		if ctx.Err() != nil {
			return
		}
		entry.ReportOutcome(false, 0)
		m.logger.Debug("health probe failed",
			zap.String("provider", entry.Name()),
			zap.Error(err))
	} else {
		entry.ReportOutcome(true, latency)
	}

	wasHealthy := entry.Snapshot().Healthy
	healthy := entry.RecomputeHealth(m.opts.MaxErrorRate, m.opts.MaxLatencyMs)
	if healthy != wasHealthy {
		m.logger.Info("provider health changed",
			zap.String("provider", entry.Name()),
			zap.Bool("healthy", healthy),
			zap.Float64("error_rate", entry.ErrorRate()))
	}
}

// ProbeAll runs a single synchronous probe cycle across every provider.
// Used at startup to seed health state before the first interval elapses,
// and by tests.
func (m *Monitor) ProbeAll(ctx context.Context) {
	m.registry.Each(func(entry *providers.Entry) {
		m.probeOnce(ctx, entry)
	})
}
