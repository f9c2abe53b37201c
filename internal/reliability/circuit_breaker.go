package reliability

import (
	"fmt"
	"sync"
	"time"

	"github.com/glimte/unitbus/internal/clock"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// StateChangeFunc is called after the breaker changed state, outside its lock
type StateChangeFunc func(name string, from, to State, reason string)

// CircuitBreaker rejects calls after consecutive failures. Once the open timeout
// passed a limited number of probe calls is let through; enough successes close it
// again, a single failure reopens it.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	halfOpenCalls   int
	lastFailureTime time.Time

	failureThreshold int
	successThreshold int
	timeout          time.Duration
	halfOpenRequests int
	name             string
	clock            clock.Clock

	listeners []StateChangeFunc
}

// CircuitBreakerOption configures the circuit breaker
type CircuitBreakerOption func(*CircuitBreaker)

// WithFailureThreshold sets the consecutive failures that open the circuit
func WithFailureThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.failureThreshold = threshold
	}
}

// WithSuccessThreshold sets the probe successes that close the circuit
func WithSuccessThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.successThreshold = threshold
	}
}

// WithTimeout sets how long the circuit stays open
func WithTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.timeout = timeout
	}
}

// WithHalfOpenRequests sets the concurrent probes allowed while half-open
func WithHalfOpenRequests(requests int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.halfOpenRequests = requests
	}
}

func WithName(name string) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.name = name
	}
}

func WithClock(c clock.Clock) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.clock = c
	}
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(options ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 3,
		timeout:          30 * time.Second,
		halfOpenRequests: 3,
		name:             "default",
		clock:            clock.Real{},
	}
	for _, opt := range options {
		opt(cb)
	}
	return cb
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn unless the circuit rejects the call
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.transition(func() (State, State, string) {
		from := cb.state
		cb.state = StateClosed
		cb.failures = 0
		cb.successes = 0
		cb.halfOpenCalls = 0
		return from, StateClosed, "reset"
	})
}

// OnStateChange registers a listener
func (cb *CircuitBreaker) OnStateChange(fn StateChangeFunc) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, fn)
}

func (cb *CircuitBreaker) allow() error {
	var rejected error
	cb.transition(func() (State, State, string) {
		switch cb.state {
		case StateOpen:
			nextRetry := cb.lastFailureTime.Add(cb.timeout)
			if cb.clock.Now().Before(nextRetry) {
				rejected = &CircuitBreakerError{Name: cb.name, State: StateOpen, Failures: cb.failures, NextRetry: nextRetry}
				return StateOpen, StateOpen, ""
			}
			cb.state = StateHalfOpen
			cb.successes = 0
			cb.halfOpenCalls = 1
			return StateOpen, StateHalfOpen, "open timeout expired"

		case StateHalfOpen:
			if cb.halfOpenCalls >= cb.halfOpenRequests {
				rejected = &CircuitBreakerError{Name: cb.name, State: StateHalfOpen, Failures: cb.failures}
				return StateHalfOpen, StateHalfOpen, ""
			}
			cb.halfOpenCalls++
		}
		return cb.state, cb.state, ""
	})
	return rejected
}

func (cb *CircuitBreaker) record(err error) {
	cb.transition(func() (State, State, string) {
		from := cb.state

		if err != nil {
			cb.failures++
			cb.successes = 0
			cb.lastFailureTime = cb.clock.Now()

			switch {
			case from == StateHalfOpen:
				cb.state = StateOpen
				cb.halfOpenCalls = 0
				return from, StateOpen, "probe failed"
			case from == StateClosed && cb.failures >= cb.failureThreshold:
				cb.state = StateOpen
				return from, StateOpen, fmt.Sprintf("failure threshold reached (%d/%d)", cb.failures, cb.failureThreshold)
			}
			return from, from, ""
		}

		switch from {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.successes++
			cb.halfOpenCalls--
			if cb.successes >= cb.successThreshold {
				cb.state = StateClosed
				cb.failures = 0
				cb.successes = 0
				cb.halfOpenCalls = 0
				return from, StateClosed, "probes succeeded"
			}
		}
		return from, from, ""
	})
}

// transition runs fn under the lock and notifies listeners if the state changed
func (cb *CircuitBreaker) transition(fn func() (from, to State, reason string)) {
	cb.mu.Lock()
	from, to, reason := fn()
	var listeners []StateChangeFunc
	if from != to {
		listeners = append(listeners, cb.listeners...)
	}
	cb.mu.Unlock()

	for _, listener := range listeners {
		listener(cb.name, from, to, reason)
	}
}
