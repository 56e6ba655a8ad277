// Package resilience shields the council from misbehaving model
// endpoints: a breaker per upstream stops hammering a dead proxy route.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker counts consecutive failures of one upstream. Reaching the
// threshold opens the circuit for the cooldown period; the first call
// after the cooldown probes the upstream and decides whether it closes
// again.
type Breaker struct {
	mu        sync.Mutex
	state     state
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	now       func() time.Time
}

// NewBreaker creates a closed breaker that opens after threshold
// consecutive failures and cools down for the given duration.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Execute runs fn unless the circuit is open, in which case it returns
// ErrCircuitOpen without calling fn. fn's error feeds the failure count.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		if b.state == stateHalfOpen || b.failures >= b.threshold {
			b.state = stateOpen
			b.openedAt = b.now()
		}
		return err
	}

	b.failures = 0
	b.state = stateClosed
	return nil
}

// admit decides whether a call may proceed, moving an expired open
// circuit to half-open so exactly that call becomes the probe.
func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = stateHalfOpen
		return true
	default:
		return true
	}
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && b.now().Sub(b.openedAt) < b.cooldown
}
