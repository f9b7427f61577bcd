package retry

import (
	"sync"
	"time"

	"github.com/arcflow/orchestrator/orcherr"
)

// BreakerState is one of the three circuit breaker states (spec §4.9).
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker trips open after ConsecutiveFatals fatal outcomes in a row,
// refusing calls with ToolUnavailable for CoolDown, then allows a single
// half-open probe before closing again on success or re-opening on failure.
type CircuitBreaker struct {
	mu sync.Mutex

	consecutiveFatals int // threshold, default 5
	coolDown          time.Duration

	state        BreakerState
	fatalStreak  int
	openedAt     time.Time
	halfOpenBusy bool
}

// NewCircuitBreaker builds a breaker with the given threshold/cool-down;
// zero values fall back to spec defaults (5 consecutive fatals, 60s).
func NewCircuitBreaker(consecutiveFatals int, coolDown time.Duration) *CircuitBreaker {
	if consecutiveFatals <= 0 {
		consecutiveFatals = 5
	}
	if coolDown <= 0 {
		coolDown = 60 * time.Second
	}
	return &CircuitBreaker{consecutiveFatals: consecutiveFatals, coolDown: coolDown, state: Closed}
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen once
// the cool-down elapses. It returns ToolUnavailable when the breaker is open.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.coolDown {
			return orcherr.New(orcherr.ToolUnavailable, "retry", "Allow", "circuit breaker open", nil)
		}
		b.state = HalfOpen
		b.halfOpenBusy = true
		return nil
	case HalfOpen:
		if b.halfOpenBusy {
			return orcherr.New(orcherr.ToolUnavailable, "retry", "Allow", "circuit breaker half-open probe in flight", nil)
		}
		b.halfOpenBusy = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the breaker and resets the fatal streak.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.fatalStreak = 0
	b.halfOpenBusy = false
}

// RecordFatal records a fatal outcome, possibly opening (or re-opening) the
// breaker. Non-fatal (retriable) outcomes should not be passed here.
func (b *CircuitBreaker) RecordFatal() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenBusy = false
	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = time.Now()
		b.fatalStreak = 0
		return
	}

	b.fatalStreak++
	if b.fatalStreak >= b.consecutiveFatals {
		b.state = Open
		b.openedAt = time.Now()
		b.fatalStreak = 0
	}
}

// State returns the current breaker state, for metrics/inspection.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
