package resilience

import (
	"sync"
	"time"
)

// Registry hands out one Breaker per named upstream, so failures of one
// model do not trip the circuit for the others.
type Registry struct {
	mu          sync.Mutex
	breakers    map[string]*Breaker
	maxFailures int
	timeout     time.Duration
}

// NewRegistry creates a registry whose breakers share the given thresholds.
func NewRegistry(maxFailures int, timeout time.Duration) *Registry {
	return &Registry{
		breakers:    make(map[string]*Breaker),
		maxFailures: maxFailures,
		timeout:     timeout,
	}
}

// For returns the breaker for the given name, creating it on first use.
func (r *Registry) For(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = NewBreaker(r.maxFailures, r.timeout)
		r.breakers[name] = b
	}
	return b
}

// OpenCircuits returns the names of all breakers currently rejecting calls.
func (r *Registry) OpenCircuits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var open []string
	for name, b := range r.breakers {
		if b.Open() {
			open = append(open, name)
		}
	}
	return open
}
