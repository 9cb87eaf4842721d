// Package resilience keeps the relay answering when a completion or speech
// backend misbehaves.
//
// Every backend gets a [CircuitBreaker]. A [FallbackGroup] orders the backends
// of one kind (primary first) and walks them until one accepts the call,
// skipping those whose breaker is open. [LLMFallback] and [TTSFallback] expose
// a group through the provider interfaces so the relay never knows failover
// happened.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. One failure
	// re-opens the breaker; HalfOpenMax successes close it.
	StateHalfOpen
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Defaults applied by [NewCircuitBreaker] to zero config fields.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, metrics and readiness reports.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget of the half-open state.
	HalfOpenMax int

	// OnStateChange, when set, is called after every transition with the
	// breaker lock released. It must not block.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker guards calls to one backend.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	onStateChange func(name string, from, to State)

	// now is replaced in tests.
	now func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probes          int
	probeSuccesses  int
}

// NewCircuitBreaker creates a closed [CircuitBreaker]. Zero or negative
// config values fall back to the Default constants.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		onStateChange: cfg.OnStateChange,
		now:           time.Now,
		state:         StateClosed,
	}
}

// transition is a state change, reported once the lock is released.
type transition struct {
	from, to State
}

// Execute runs fn unless the breaker rejects the call with [ErrCircuitOpen].
// An error matching [context.Canceled] is returned unchanged and counts as
// neither success nor failure; a client hanging up says nothing about the
// backend.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, t, err := cb.admit()
	cb.report(t)
	if err != nil {
		return err
	}

	err = fn()

	cb.report(cb.settle(probe, err))
	return err
}

// admit decides whether a call may proceed and whether it is a half-open
// probe.
func (cb *CircuitBreaker) admit() (probe bool, t *transition, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, nil, ErrCircuitOpen
		}
		t = cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return false, t, ErrCircuitOpen
		}
		cb.probes++
		return true, t, nil
	}
	return false, t, nil
}

// settle accounts for the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) *transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// The breaker may have moved on while fn ran; stale probe results only
	// count against the state they were admitted in.
	probe = probe && cb.state == StateHalfOpen

	switch {
	case errors.Is(err, context.Canceled):
		if probe && cb.probes > 0 {
			cb.probes--
		}
		return nil

	case err != nil:
		if probe {
			return cb.setState(StateOpen)
		}
		cb.consecutiveFail++
		if cb.state == StateClosed && cb.consecutiveFail >= cb.maxFailures {
			return cb.setState(StateOpen)
		}
		return nil

	default:
		if probe {
			cb.probeSuccesses++
			if cb.probeSuccesses >= cb.halfOpenMax {
				return cb.setState(StateClosed)
			}
			return nil
		}
		cb.consecutiveFail = 0
		return nil
	}
}

// setState moves to st and resets the counters of the state being entered.
// It must be called with cb.mu held.
func (cb *CircuitBreaker) setState(st State) *transition {
	from := cb.state
	cb.state = st
	switch st {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateHalfOpen:
		cb.probes, cb.probeSuccesses = 0, 0
	case StateClosed:
		cb.consecutiveFail, cb.probes, cb.probeSuccesses = 0, 0, 0
	}
	if from == st {
		return nil
	}
	return &transition{from: from, to: st}
}

// report logs t and notifies the hook. It must be called without cb.mu held.
func (cb *CircuitBreaker) report(t *transition) {
	if t == nil {
		return
	}
	level := slog.LevelInfo
	if t.to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		"name", cb.name, "from", t.from.String(), "to", t.to.String())
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, t.from, t.to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.setState(StateClosed)
	cb.mu.Unlock()
	cb.report(t)
}
