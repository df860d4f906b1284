// Package circuitbreaker implements the circuit breaker pattern.
//
// A breaker tracks consecutive failures against a single resource and
// temporarily blocks requests once a threshold is crossed, so a failing
// destination cannot absorb the whole delivery budget.
//
// States:
//   - Closed: normal operation, requests allowed
//   - Open: too many failures, requests blocked until cooldown elapses
//   - HalfOpen: cooldown elapsed, probing whether the resource recovered
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds configuration for a circuit breaker.
type Config struct {
	Threshold int           // consecutive failures before the circuit opens (default: 5)
	Cooldown  time.Duration // time in open state before probing (default: 30s)
}

// Breaker tracks failures for a single resource.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	threshold   int
	cooldown    time.Duration
}

// New creates a circuit breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		state:     Closed,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
	}
}

// Allow reports whether a request should be attempted. In the open
// state it transitions to half-open once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.lastFailure) > b.cooldown {
			b.state = HalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the circuit and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = Closed
}

// RecordFailure counts a failure. A failure during the half-open probe
// reopens the circuit immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	if b.state == HalfOpen || b.failures >= b.threshold {
		b.state = Open
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
