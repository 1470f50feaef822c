package routing

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/solforge/rpc-router/services/circuit"
	"github.com/solforge/rpc-router/services/providers"
)

var (
	// ErrPolicyNotFound is returned when a routing policy name is unknown
	ErrPolicyNotFound = errors.New("routing policy not found")
)

// PolicyName identifies a selection strategy
type PolicyName string

const (
	// PolicyHealthFirst prefers healthy, low-latency, high-priority providers
	PolicyHealthFirst PolicyName = "health_first"

	// PolicyRoundRobin rotates through eligible providers
	PolicyRoundRobin PolicyName = "round_robin"
)

// Policy orders a pre-filtered candidate list into a preference list.
// Policies only read provider state; they never mutate it.
type Policy interface {
	// Name returns the policy name
	Name() PolicyName

	// Rank returns candidates in preference order
	Rank(candidates []providers.Snapshot) []providers.Snapshot
}

// ForName returns the policy registered under the given name
func ForName(name string) (Policy, error) {
	switch PolicyName(name) {
	case PolicyHealthFirst, "":
		return NewHealthFirst(), nil
	case PolicyRoundRobin:
		return NewRoundRobin(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
}

// Eligible filters snapshots to enabled providers whose circuit is not open
// and that support the requested feature. This is the shared first stage of
// every request path.
func Eligible(snaps []providers.Snapshot, feature providers.Feature) []providers.Snapshot {
	eligible := make([]providers.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if !s.Enabled || !s.Features.Has(feature) {
			continue
		}
		if s.Circuit == circuit.StateOpen {
			continue
		}
		eligible = append(eligible, s)
	}
	return eligible
}

// Capable reports whether any enabled provider supports the feature at all,
// regardless of health or circuit state. Distinguishes "no capable provider"
// from "all capable providers currently excluded".
func Capable(snaps []providers.Snapshot, feature providers.Feature) bool {
	for _, s := range snaps {
		if s.Enabled && s.Features.Has(feature) {
			return true
		}
	}
	return false
}

// HealthFirst is the default policy: prefer healthy providers; when none are
// healthy, fall back to the full eligible set rather than failing hard. The
// fallback is a deliberate graceful-degradation branch, matching the router's
// Degraded state. Within either set, order by (priority asc, latency asc)
// with the provider name as the deterministic tie-break.
type HealthFirst struct{}

// NewHealthFirst creates the health-first policy
func NewHealthFirst() *HealthFirst {
	return &HealthFirst{}
}

// Name returns the policy name
func (p *HealthFirst) Name() PolicyName {
	return PolicyHealthFirst
}

// Rank orders candidates per the health-first rules
func (p *HealthFirst) Rank(candidates []providers.Snapshot) []providers.Snapshot {
	healthy := make([]providers.Snapshot, 0, len(candidates))
	for _, c := range candidates {
		if c.Healthy {
			healthy = append(healthy, c)
		}
	}

	// Degraded fallback: no healthy candidate, attempt the unhealthy ones
	// anyway instead of failing closed.
	pool := healthy
	if len(pool) == 0 {
		pool = append([]providers.Snapshot(nil), candidates...)
	} else {
		pool = append([]providers.Snapshot(nil), pool...)
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].Priority != pool[j].Priority {
			return pool[i].Priority < pool[j].Priority
		}
		if pool[i].LatencyMs != pool[j].LatencyMs {
			return pool[i].LatencyMs < pool[j].LatencyMs
		}
		return pool[i].Name < pool[j].Name
	})
	return pool
}

// RoundRobin rotates the starting candidate across calls. Structurally
// pluggable alternative to health-first; it still respects the shared
// eligibility filter.
type RoundRobin struct {
	mu   sync.Mutex
	next int
}

// NewRoundRobin creates the round-robin policy
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Name returns the policy name
func (p *RoundRobin) Name() PolicyName {
	return PolicyRoundRobin
}

// Rank returns candidates rotated by an advancing offset, sorted by name
// first so rotation order is stable across snapshots
func (p *RoundRobin) Rank(candidates []providers.Snapshot) []providers.Snapshot {
	if len(candidates) == 0 {
		return nil
	}

	ordered := append([]providers.Snapshot(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Name < ordered[j].Name
	})

	p.mu.Lock()
	offset := p.next % len(ordered)
	p.next++
	p.mu.Unlock()

	rotated := make([]providers.Snapshot, 0, len(ordered))
	rotated = append(rotated, ordered[offset:]...)
	rotated = append(rotated, ordered[:offset]...)
	return rotated
}
