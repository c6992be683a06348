package devicepolicy

import (
	"sync"
	"time"
)

// BreakerState is the observable state of the CircuitBreaker.
type BreakerState string

const (
	BreakerClosed BreakerState = "CLOSED"
	BreakerOpen   BreakerState = "OPEN"
)

// CircuitBreaker is a sliding-window rate limiter over lock-producing
// transitions. It protects consumers against buggy mass-lock events: once
// the retained count of lock emissions within window crosses the
// threshold, it trips OPEN and refuses further locks until a manual reset
// or the cooldown elapses.
type CircuitBreaker struct {
	maxLocksInWindow int
	window           time.Duration
	cooldown         time.Duration // 0 disables auto-reset

	mu         sync.Mutex
	timestamps []time.Time
	state      BreakerState
	trippedAt  time.Time
}

// BreakerConfig configures a CircuitBreaker. Zero values fall back to the
// spec's reference defaults.
type BreakerConfig struct {
	MaxLocksInWindow int
	WindowSeconds    int
	CooldownSeconds  int
}

// NewCircuitBreaker creates a CLOSED CircuitBreaker from cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	maxLocks := cfg.MaxLocksInWindow
	if maxLocks <= 0 {
		maxLocks = 50
	}
	window := cfg.WindowSeconds
	if window <= 0 {
		window = 300
	}
	cooldown := cfg.CooldownSeconds
	if cooldown < 0 {
		cooldown = 0
	}

	return &CircuitBreaker{
		maxLocksInWindow: maxLocks,
		window:           time.Duration(window) * time.Second,
		cooldown:         time.Duration(cooldown) * time.Second,
		state:            BreakerClosed,
	}
}

// AllowLock reports whether a lock-producing transition may proceed. It
// first applies any pending auto-reset, then returns false iff the state is OPEN.
func (b *CircuitBreaker) AllowLock() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeAutoReset(time.Now())
	return b.state != BreakerOpen
}

// RecordLock appends a lock observation and trips the breaker if the
// retained count within the window reaches the threshold. The threshold is
// inclusive on trip: the Nth lock both trips the breaker and is recorded.
func (b *CircuitBreaker) RecordLock() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.timestamps = append(b.timestamps, now)
	b.trim(now)

	if len(b.timestamps) >= b.maxLocksInWindow {
		b.state = BreakerOpen
		b.trippedAt = now
	}
}

// Reset manually clears the breaker back to CLOSED.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

// State returns the current state, applying auto-reset first.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeAutoReset(time.Now())
	return b.state
}

// CurrentCount returns the number of lock timestamps retained within window.
func (b *CircuitBreaker) CurrentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trim(time.Now())
	return len(b.timestamps)
}

func (b *CircuitBreaker) reset() {
	b.state = BreakerClosed
	b.trippedAt = time.Time{}
	b.timestamps = nil
}

func (b *CircuitBreaker) maybeAutoReset(now time.Time) {
	if b.state == BreakerOpen && b.cooldown > 0 && !b.trippedAt.IsZero() && now.Sub(b.trippedAt) > b.cooldown {
		b.reset()
	}
}

// trim drops timestamps older than now-window. Caller must hold b.mu.
func (b *CircuitBreaker) trim(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.timestamps[:0]
	for _, t := range b.timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.timestamps = kept
}
