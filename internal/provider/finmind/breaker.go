package finmind

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // Normal operation, requests pass through
	StateOpen     State = 1 // Tripped, requests rejected immediately
	StateHalfOpen State = 2 // One probe request allowed through
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

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker stops hammering the upstream API after consecutive failures.
// After maxFailures failures it opens for resetTimeout, then lets a single
// probe through. A successful probe closes it; a failed one reopens it.
// Only errors for which IsFailure returns true count towards tripping.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	openedAt     time.Time
	probing      bool

	// IsFailure classifies errors; nil counts every error.
	IsFailure func(error) bool
	// OnStateChange is called on transitions, under the breaker lock.
	OnStateChange func(from, to State)

	now func() time.Time
}

// NewBreaker creates a breaker. maxFailures below 1 is treated as 1.
func NewBreaker(maxFailures int, resetTimeout time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	wasProbe := b.state == StateHalfOpen
	if wasProbe {
		b.probing = false
	}

	if err != nil && (b.IsFailure == nil || b.IsFailure(err)) {
		b.failures++
		if wasProbe || b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
		return err
	}

	if wasProbe {
		b.transition(StateClosed)
	}
	b.failures = 0
	return err
}

// CurrentState returns the breaker state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}
