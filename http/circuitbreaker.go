package http

import (
	"sync"
	"time"
)

// CircuitState is the state of one host's circuit.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen fails requests fast.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of probe requests through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens a circuit.
	FailureThreshold int
	// RecoveryTimeout is how long a circuit stays open before probing.
	RecoveryTimeout time.Duration
	// HalfOpenProbes is how many requests may probe a half-open circuit.
	HalfOpenProbes int
	// Transient decides whether an error counts. Nil counts every error.
	Transient func(error) bool
}

// DefaultCircuitBreakerConfig returns the defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenProbes:   1,
		Transient:        IsTransient,
	}
}

type circuit struct {
	state    CircuitState
	failures int
	changed  time.Time
	probes   int
}

// trip moves the circuit to state s.
func (c *circuit) trip(s CircuitState) {
	c.state = s
	c.changed = time.Now()
	c.probes = 0
}

// CircuitBreaker tracks failures per host and fails fast on hosts that
// keep failing.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	circuits map[string]*circuit
}

// NewCircuitBreaker creates a CircuitBreaker, filling unset fields from the defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = def.HalfOpenProbes
	}
	return &CircuitBreaker{cfg: cfg, circuits: map[string]*circuit{}}
}

// Allow returns ErrCircuitOpen when a request to host must not be sent.
func (cb *CircuitBreaker) Allow(host string) error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(host)
	switch c.state {
	case CircuitOpen:
		if time.Since(c.changed) < cb.cfg.RecoveryTimeout {
			return ErrCircuitOpen
		}
		c.trip(CircuitHalfOpen)
		c.probes = 1
		return nil
	case CircuitHalfOpen:
		if c.probes >= cb.cfg.HalfOpenProbes {
			return ErrCircuitOpen
		}
		c.probes++
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes a probing circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess(host string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(host)
	if c.state == CircuitHalfOpen {
		c.trip(CircuitClosed)
	}
	c.failures = 0
}

// RecordFailure counts a failure against host. Non-transient errors are ignored.
func (cb *CircuitBreaker) RecordFailure(host string, err error) {
	if cb == nil {
		return
	}
	if cb.cfg.Transient != nil && !cb.cfg.Transient(err) {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(host)
	c.failures++
	switch c.state {
	case CircuitClosed:
		if c.failures >= cb.cfg.FailureThreshold {
			c.trip(CircuitOpen)
		}
	case CircuitHalfOpen:
		c.trip(CircuitOpen)
	}
}

// State returns host's current state, reporting an expired open circuit
// as half-open.
func (cb *CircuitBreaker) State(host string) CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[host]
	if !ok {
		return CircuitClosed
	}
	if c.state == CircuitOpen && time.Since(c.changed) >= cb.cfg.RecoveryTimeout {
		return CircuitHalfOpen
	}
	return c.state
}

// Reset forgets host's history.
func (cb *CircuitBreaker) Reset(host string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.circuits, host)
}

func (cb *CircuitBreaker) get(host string) *circuit {
	c, ok := cb.circuits[host]
	if !ok {
		c = &circuit{state: CircuitClosed, changed: time.Now()}
		cb.circuits[host] = c
	}
	return c
}
