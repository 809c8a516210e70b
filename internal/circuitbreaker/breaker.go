// Package circuitbreaker implements a per-service circuit breaker over
// a fixed-size sliding window of call outcomes.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/fursa-platform/gateway/internal/observability"
)

// State represents the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// StateChangeFunc is notified on state transitions.
type StateChangeFunc func(name string, from, to State)

// Breaker tracks the outcomes of the most recent calls to one service.
// The window only fills while closed; it is reset on every transition,
// so a freshly closed circuit needs a full new window before it can
// open again.
type Breaker struct {
	name string
	cfg  Config

	logger        observability.Logger
	now           func() time.Time
	onStateChange StateChangeFunc

	mu sync.Mutex
	// guarded by mu
	state       State
	window      []bool // true marks a failure
	windowPos   int
	windowCount int
	failures    int
	openedAt    time.Time
	trialCalls  int
}

// BreakerOption is a functional option for the breaker.
type BreakerOption func(*Breaker)

// WithBreakerClock overrides the time source, for tests.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithBreakerLogger sets the logger.
func WithBreakerLogger(logger observability.Logger) BreakerOption {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// WithStateChange sets a transition callback. It is invoked outside the
// breaker lock.
func WithStateChange(fn StateChangeFunc) BreakerOption {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// New creates a closed breaker for the named service.
func New(name string, cfg Config, opts ...BreakerOption) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Breaker{
		name:   name,
		cfg:    cfg,
		logger: observability.NopLogger(),
		now:    time.Now,
		state:  StateClosed,
		window: make([]bool, cfg.WindowSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Name returns the service name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the recorded state as-is. An open circuit whose wait
// has elapsed still reads open here; the open to half-open transition
// happens lazily on the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. When the wait duration of
// an open circuit has elapsed, the breaker moves to half-open and
// admits up to HalfOpenMaxCalls trial calls.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return true

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.WaitDuration {
			b.mu.Unlock()
			return false
		}
		notify := b.transitionLocked(StateHalfOpen)
		b.trialCalls = 1
		b.mu.Unlock()
		b.fire(notify)
		return true

	case StateHalfOpen:
		if b.trialCalls >= b.cfg.HalfOpenMaxCalls {
			b.mu.Unlock()
			return false
		}
		b.trialCalls++
		b.mu.Unlock()
		return true

	default:
		b.mu.Unlock()
		return false
	}
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.record(false)
}

// RecordFailure records a failed call outcome.
func (b *Breaker) RecordFailure() {
	b.record(true)
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()

	var notify func()

	switch b.state {
	case StateClosed:
		b.pushOutcomeLocked(failed)
		if b.windowCount == b.cfg.WindowSize && b.failureRateLocked() >= b.cfg.FailureRateThreshold {
			notify = b.transitionLocked(StateOpen)
		}

	case StateHalfOpen:
		if failed {
			// Any trial failure reopens the circuit immediately.
			notify = b.transitionLocked(StateOpen)
		} else {
			notify = b.transitionLocked(StateClosed)
		}

	case StateOpen:
		// Late results from calls admitted before opening are dropped.
	}

	b.mu.Unlock()
	b.fire(notify)
}

// pushOutcomeLocked appends an outcome, evicting the oldest once the
// window is full.
func (b *Breaker) pushOutcomeLocked(failed bool) {
	if b.windowCount == b.cfg.WindowSize {
		if b.window[b.windowPos] {
			b.failures--
		}
	} else {
		b.windowCount++
	}

	b.window[b.windowPos] = failed
	if failed {
		b.failures++
	}
	b.windowPos = (b.windowPos + 1) % b.cfg.WindowSize
}

func (b *Breaker) failureRateLocked() float64 {
	return float64(b.failures) / float64(b.cfg.WindowSize)
}

// transitionLocked moves to a new state and resets the window and trial
// counters. It returns the notification closure to run after unlocking.
func (b *Breaker) transitionLocked(to State) func() {
	from := b.state
	if from == to {
		return nil
	}

	b.state = to
	b.windowPos = 0
	b.windowCount = 0
	b.failures = 0
	b.trialCalls = 0
	for i := range b.window {
		b.window[i] = false
	}
	if to == StateOpen {
		b.openedAt = b.now()
	}

	b.logger.Info("circuit breaker state changed",
		observability.String("service", b.name),
		observability.String("from", from.String()),
		observability.String("to", to.String()),
	)

	if b.onStateChange == nil {
		return nil
	}
	name := b.name
	fn := b.onStateChange
	return func() { fn(name, from, to) }
}

func (b *Breaker) fire(notify func()) {
	if notify != nil {
		notify()
	}
}

// Stats is a snapshot of breaker internals for health reporting.
type Stats struct {
	Name        string
	State       State
	WindowCount int
	Failures    int
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:        b.name,
		State:       b.state,
		WindowCount: b.windowCount,
		Failures:    b.failures,
	}
}
