package probe

import (
	"fmt"
	"sync"
	"time"
)

// State classifies a running instance.
type State int

const (
	StateStarting State = iota
	StateHealthy
	StateUnhealthy
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// validTransitions is the legal-transition table. Starting leaves only via the
// first successful probe; healthy and unhealthy flip based on the trailing
// window of probe outcomes. There is no terminal state other than process exit.
var validTransitions = map[State]map[State]bool{
	StateStarting: {
		StateHealthy: true, // first successful probe
	},
	StateHealthy: {
		StateUnhealthy: true, // failure threshold reached
	},
	StateUnhealthy: {
		StateHealthy: true, // single successful probe recovers
	},
}

// ValidateTransition checks whether a state change is legal.
func ValidateTransition(from, to State) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// Tracker folds probe results into the instance health state. A single failed
// or slow probe never flips a healthy instance; only failureThreshold
// consecutive failures do. One success always re-classifies as healthy.
type Tracker struct {
	mu sync.RWMutex

	state            State
	lastStateChange  time.Time
	failureThreshold int

	consecutiveFailures int
	totalProbes         int64
	totalFailures       int64
	lastResult          *Result
	lastHealthyAt       time.Time
}

// NewTracker creates a tracker in the starting state.
func NewTracker(failureThreshold int) *Tracker {
	return &Tracker{
		state:            StateStarting,
		lastStateChange:  time.Now(),
		failureThreshold: failureThreshold,
	}
}

// Observe records a probe result and returns the resulting state.
func (t *Tracker) Observe(result Result) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalProbes++
	r := result
	t.lastResult = &r

	if result.Healthy {
		t.consecutiveFailures = 0
		t.lastHealthyAt = result.CheckedAt
		t.transition(StateHealthy)
		return t.state
	}

	t.totalFailures++
	t.consecutiveFailures++

	// The retry budget absorbs transient blips; starting never degrades to
	// unhealthy, it just stays starting until the first success.
	if t.state == StateHealthy && t.consecutiveFailures >= t.failureThreshold {
		t.transition(StateUnhealthy)
	}
	return t.state
}

// transition applies a state change if legal and distinct. Must be called with
// the lock held.
func (t *Tracker) transition(to State) {
	if t.state == to {
		return
	}
	if err := ValidateTransition(t.state, to); err != nil {
		return
	}
	t.state = to
	t.lastStateChange = time.Now()
}

// State returns the current classification.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// IsHealthy reports whether the instance is currently classified healthy.
func (t *Tracker) IsHealthy() bool {
	return t.State() == StateHealthy
}

// ConsecutiveFailures returns the current failure streak.
func (t *Tracker) ConsecutiveFailures() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.consecutiveFailures
}

// Report returns a snapshot of tracker state for the status endpoint.
func (t *Tracker) Report() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	report := map[string]interface{}{
		"state":                t.state.String(),
		"state_duration":       time.Since(t.lastStateChange).String(),
		"consecutive_failures": t.consecutiveFailures,
		"failure_threshold":    t.failureThreshold,
		"total_probes":         t.totalProbes,
		"total_failures":       t.totalFailures,
	}
	if !t.lastHealthyAt.IsZero() {
		report["last_healthy_at"] = t.lastHealthyAt.Format(time.RFC3339)
	}
	if t.lastResult != nil {
		report["last_probe"] = *t.lastResult
	}
	return report
}
