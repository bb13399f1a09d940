// Package resilience provides the circuit breaker and the bounded retry executor that
// wrap every backend call.
package resilience

import (
	"sync"
	"time"

	apperrors "github.com/allisson/credstore/internal/errors"
)

// ErrBreakerOpen is returned without contacting the backend while its breaker is open.
var ErrBreakerOpen = apperrors.Wrap(apperrors.ErrPluginUnavailable, "circuit breaker open")

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// CircuitBreaker tracks consecutive failures of one backend instance.
//
// Closed: calls pass and failures are counted. Reaching the threshold opens the breaker.
// Open: calls fail with ErrBreakerOpen until the cooldown elapses.
// Half-open: exactly one trial call is admitted; success closes, failure reopens.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// NewCircuitBreaker creates a closed breaker. A threshold below 1 is treated as 1.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     StateClosed,
	}
}

// advance moves an open breaker to half-open once the cooldown elapsed. Caller holds mu.
func (b *CircuitBreaker) advance() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
		b.trial = false
	}
}

// State returns the current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// Eligible reports whether a call would currently be admitted, without admitting it.
func (b *CircuitBreaker) Eligible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	switch b.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		return !b.trial
	default:
		return true
	}
}

// Allow admits a call or returns ErrBreakerOpen. In half-open state only the first
// caller gets through until its outcome is reported.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	switch b.state {
	case StateOpen:
		return ErrBreakerOpen
	case StateHalfOpen:
		if b.trial {
			return ErrBreakerOpen
		}
		b.trial = true
	}
	return nil
}

// Success reports a successful call.
func (b *CircuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		return
	}
	b.state = StateClosed
	b.failures = 0
	b.trial = false
}

// Failure reports a failed call.
func (b *CircuitBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.open()
		}
	}
}

// Release gives back a half-open trial whose outcome is unknown (caller cancelled).
func (b *CircuitBreaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.trial = false
	}
}

func (b *CircuitBreaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.trial = false
}

// BreakerSet owns one breaker per backend instance. Breakers live in memory only and
// reset on restart.
type BreakerSet struct {
	mu        sync.Mutex
	breakers  map[string]*CircuitBreaker
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewBreakerSet creates an empty set whose breakers share threshold and cooldown.
func NewBreakerSet(threshold int, cooldown time.Duration) *BreakerSet {
	return &BreakerSet{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Get returns the breaker of instanceID, creating it closed on first use.
func (s *BreakerSet) Get(instanceID string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[instanceID]
	if !ok {
		b = NewCircuitBreaker(s.threshold, s.cooldown)
		b.now = s.now
		s.breakers[instanceID] = b
	}
	return b
}

// States returns a snapshot of every known breaker state keyed by instance ID.
func (s *BreakerSet) States() map[string]State {
	s.mu.Lock()
	breakers := make(map[string]*CircuitBreaker, len(s.breakers))
	for id, b := range s.breakers {
		breakers[id] = b
	}
	s.mu.Unlock()

	states := make(map[string]State, len(breakers))
	for id, b := range breakers {
		states[id] = b.State()
	}
	return states
}
