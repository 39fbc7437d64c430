// Package circuitbreaker guards context providers. Each provider has its own
// circuit that opens after consecutive failures, rejects calls while open,
// and lets a single trial call through once the cooldown has passed.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls flow through
	StateOpen                  // calls are rejected
	StateHalfOpen              // one trial call is in flight
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drivesim",
		Subsystem: "circuitbreaker",
		Name:      "state_transitions_total",
		Help:      "Circuit breaker state transitions by provider, from-state, and to-state.",
	}, []string{"provider", "from_state", "to_state"})

	openGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "drivesim",
		Subsystem: "circuitbreaker",
		Name:      "open",
		Help:      "1 while a provider's circuit is not closed.",
	}, []string{"provider"})
)

func init() {
	prometheus.MustRegister(transitionsTotal, openGauge)
}

// Counts describes one provider's circuit.
type Counts struct {
	State               State
	ConsecutiveFailures int
	Trips               int // times the circuit has opened
	OpenedAt            time.Time
}

type circuit struct {
	Counts
}

// Breaker holds one circuit per provider.
type Breaker struct {
	mu           sync.Mutex
	circuits     map[string]*circuit
	threshold    int
	cooldown     time.Duration
	now          func() time.Time
	onTransition func(provider string, from, to State)
}

// New creates a breaker whose circuits open after threshold consecutive
// failures and stay open for cooldown before probing.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// OnTransition sets a callback invoked asynchronously on state changes.
func (b *Breaker) OnTransition(fn func(provider string, from, to State)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// Allow reports whether a call to provider may proceed. An open circuit
// whose cooldown has passed moves to half-open and admits the caller as
// its trial call.
func (b *Breaker) Allow(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[provider]
	if !ok {
		return true
	}
	switch c.State {
	case StateOpen:
		if b.now().Sub(c.OpenedAt) < b.cooldown {
			return false
		}
		b.transition(c, provider, StateHalfOpen)
		return true
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// RecordSuccess closes a half-open circuit and clears the failure streak.
func (b *Breaker) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[provider]
	if !ok {
		return
	}
	c.ConsecutiveFailures = 0
	if c.State == StateHalfOpen {
		b.transition(c, provider, StateClosed)
	}
}

// RecordFailure extends the failure streak. A failed trial call reopens the
// circuit immediately; a closed circuit opens at the threshold.
func (b *Breaker) RecordFailure(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[provider]
	if !ok {
		c = &circuit{}
		b.circuits[provider] = c
	}
	c.ConsecutiveFailures++

	switch {
	case c.State == StateHalfOpen:
		b.open(c, provider)
	case c.State == StateClosed && c.ConsecutiveFailures >= b.threshold:
		b.open(c, provider)
	}
}

// State returns provider's current state; unknown providers are closed.
func (b *Breaker) State(provider string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[provider]; ok {
		return c.State
	}
	return StateClosed
}

// Counts returns a copy of provider's circuit counters.
func (b *Breaker) Counts(provider string) Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[provider]; ok {
		return c.Counts
	}
	return Counts{}
}

// Snapshot returns the state of every provider that has recorded a failure.
func (b *Breaker) Snapshot() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]State, len(b.circuits))
	for provider, c := range b.circuits {
		out[provider] = c.State
	}
	return out
}

// Caller must hold b.mu.
func (b *Breaker) open(c *circuit, provider string) {
	c.OpenedAt = b.now()
	c.Trips++
	b.transition(c, provider, StateOpen)
}

// Caller must hold b.mu.
func (b *Breaker) transition(c *circuit, provider string, to State) {
	from := c.State
	if from == to {
		return
	}
	c.State = to
	transitionsTotal.WithLabelValues(provider, from.String(), to.String()).Inc()
	if to == StateClosed {
		openGauge.WithLabelValues(provider).Set(0)
	} else {
		openGauge.WithLabelValues(provider).Set(1)
	}
	if b.onTransition != nil {
		fn := b.onTransition
		go fn(provider, from, to)
	}
}
