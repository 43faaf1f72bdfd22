package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"
	CircuitStateOpen     CircuitState = "open"
	CircuitStateHalfOpen CircuitState = "half_open"
)

// CircuitBreaker shields the two outbound dependencies of a detection
// run, the loan data provider and the review-queue webhook, from being
// hammered while they are down. A streak of transient failures trips
// the breaker; after the open timeout a bounded number of probe
// requests decides whether it closes again. Auth and client errors do
// not count as failures, only transient ones do (the callers decide
// which is which).
type CircuitBreaker struct {
	mu sync.Mutex

	tripAfter   int
	openFor     time.Duration
	probeBudget int

	state         CircuitState
	failureStreak int
	trippedAt     time.Time
	probesOut     int
	probeWins     int

	now func() time.Time
}

func NewCircuitBreaker(tripAfter int, openFor time.Duration, probeBudget int) *CircuitBreaker {
	if tripAfter < 1 {
		tripAfter = 1
	}
	if openFor <= 0 {
		openFor = 15 * time.Second
	}
	if probeBudget < 1 {
		probeBudget = 1
	}
	return &CircuitBreaker{
		tripAfter:   tripAfter,
		openFor:     openFor,
		probeBudget: probeBudget,
		state:       CircuitStateClosed,
		now:         time.Now,
	}
}

// Allow answers whether one more request may go out right now. While
// open it returns ErrCircuitOpen until the open timeout has elapsed,
// then admits up to probeBudget concurrent probes.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())

	switch b.state {
	case CircuitStateOpen:
		return ErrCircuitOpen
	case CircuitStateHalfOpen:
		if b.probesOut >= b.probeBudget {
			return ErrCircuitOpen
		}
		b.probesOut++
	}
	return nil
}

// RecordSuccess reports that an admitted request came back healthy.
// Once every probe of the half-open budget has succeeded the breaker
// closes.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitStateClosed:
		b.failureStreak = 0
	case CircuitStateHalfOpen:
		b.settleProbe()
		b.probeWins++
		if b.probeWins >= b.probeBudget && b.probesOut == 0 {
			b.reset()
		}
	}
}

// RecordFailure reports a transient failure. In the closed state it
// extends the streak and trips the breaker at the threshold; any
// half-open probe failure re-opens immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitStateClosed:
		b.failureStreak++
		if b.failureStreak >= b.tripAfter {
			b.trip()
		}
	case CircuitStateHalfOpen:
		b.settleProbe()
		b.trip()
	case CircuitStateOpen:
		// Failures while open push the recovery point out.
		b.trippedAt = b.now()
	}
}

func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitStateOpen && b.now().Sub(b.trippedAt) >= b.openFor {
		return CircuitStateHalfOpen
	}
	return b.state
}

// advance moves an expired open state to half-open. Callers hold the
// lock.
func (b *CircuitBreaker) advance(now time.Time) {
	if b.state == CircuitStateOpen && now.Sub(b.trippedAt) >= b.openFor {
		b.state = CircuitStateHalfOpen
		b.probesOut = 0
		b.probeWins = 0
	}
}

func (b *CircuitBreaker) settleProbe() {
	if b.probesOut > 0 {
		b.probesOut--
	}
}

func (b *CircuitBreaker) trip() {
	b.state = CircuitStateOpen
	b.trippedAt = b.now()
	b.probesOut = 0
	b.probeWins = 0
}

func (b *CircuitBreaker) reset() {
	b.state = CircuitStateClosed
	b.failureStreak = 0
	b.probesOut = 0
	b.probeWins = 0
	b.trippedAt = time.Time{}
}
