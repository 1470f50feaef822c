package circuit

import (
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int32

const (
	// StateClosed lets requests flow normally
	StateClosed State = iota

	// StateOpen short-circuits requests without contacting the backend
	StateOpen

	// StateHalfOpen lets a single probe request through
	StateHalfOpen
)

// String returns the lowercase state name used in health snapshots and logs
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a per-provider circuit breaker. One provider's breaker opening
// never affects another provider's eligibility; each provider entry owns its
// own Breaker instance.
//
// Transitions:
//
//	Closed   -> Open     after `threshold` consecutive failures
//	Open     -> HalfOpen after `openDuration` elapses (evaluated lazily on Allow)
//	HalfOpen -> Closed   when the probe succeeds (failure counter resets)
//	HalfOpen -> Open     when the probe fails (open timer restarts)
type Breaker struct {
	mu sync.Mutex

	state        State
	failures     int
	threshold    int
	openDuration time.Duration
	openedAt     time.Time
	probing      bool // a half-open probe is in flight

	now func() time.Time
}

// New creates a circuit breaker in the Closed state
func New(threshold int, openDuration time.Duration) *Breaker {
	return &Breaker{
		state:        StateClosed,
		threshold:    threshold,
		openDuration: openDuration,
		now:          time.Now,
	}
}

// NewWithClock creates a breaker with an injectable clock for tests
func NewWithClock(threshold int, openDuration time.Duration, now func() time.Time) *Breaker {
	b := New(threshold, openDuration)
	b.now = now
	return b
}

// Allow reports whether a request may proceed. In the Open state it checks
// whether the open duration has elapsed and, if so, moves to HalfOpen and
// admits exactly one probe. Callers that are admitted must report the outcome
// via RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpenLocked()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		return false
	case StateHalfOpen:
		// Only one probe at a time
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful call. A success reported while the
// circuit is Open and the open duration has not elapsed is ignored: it came
// from a call that started before the circuit opened, and Open only exits
// through the timer. Once the duration has elapsed the success acts as the
// half-open probe outcome and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpenLocked()
	if b.state == StateOpen {
		return
	}

	b.failures = 0
	b.probing = false
	b.state = StateClosed
}

// RecordFailure records a failed call
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpenLocked()

	switch b.state {
	case StateHalfOpen:
		// Probe failed, re-open and restart the timer
		b.state = StateOpen
		b.openedAt = b.now()
		b.probing = false
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateOpen:
		// Failure reported by an in-flight call that started before the
		// breaker opened; the timer is already running.
	}
}

// State returns the current state, applying the Open -> HalfOpen transition
// if the open duration has elapsed
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpenLocked()
	return b.state
}

// maybeHalfOpenLocked applies the timed Open -> HalfOpen transition
func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.openDuration {
		b.state = StateHalfOpen
	}
}

// Failures returns the current consecutive-failure count
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
