// Package breaker implements the circuit breaker from spec.md §4.5 that
// guards calls to the LLM provider: closed/open/half-open state machine
// with failureThreshold/successThreshold/timeoutMs, emitting
// eventbus.CircuitStateChanged on every transition.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
	"github.com/spencerjireh/portfoliobridge/internal/eventbus"
)

// State is one of the three circuit states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half-open"
)

// Config holds the breaker's thresholds (spec.md §3 CircuitBreakerState).
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultConfig matches spec.md §4.5's circuit breaker parameters. Override
// it via config.Config's BREAKER_FAILURE_THRESHOLD/BREAKER_SUCCESS_THRESHOLD/
// BREAKER_TIMEOUT_MS environment variables, threaded through by cmd/server.
var DefaultConfig = Config{
	FailureThreshold: 3,
	SuccessThreshold: 2,
	Timeout:          1000 * time.Millisecond,
}

// Breaker wraps calls to an unreliable upstream, tripping open after
// FailureThreshold consecutive failures and probing with HalfOpen after
// Timeout elapses.
type Breaker struct {
	mu sync.Mutex

	name  string
	cfg   Config
	bus   *eventbus.Bus
	state State

	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
}

func New(name string, cfg Config, bus *eventbus.Bus) *Breaker {
	return &Breaker{name: name, cfg: cfg, bus: bus, state: Closed}
}

// State reports the current state, resolving an expired Open window to
// HalfOpen as a side effect (mirroring the read-path transition a caller's
// next Call would otherwise only discover on invocation).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.Timeout {
		b.transitionLocked(HalfOpen)
	}
}

func (b *Breaker) transitionLocked(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	switch to {
	case Open:
		b.openedAt = time.Now()
		b.consecutiveSuccesses = 0
	case HalfOpen:
		b.consecutiveSuccesses = 0
		b.consecutiveFailures = 0
	case Closed:
		b.consecutiveFailures = 0
		b.consecutiveSuccesses = 0
	}
	if b.bus != nil {
		b.bus.Emit(eventbus.Event{
			Kind: eventbus.CircuitStateChanged,
			Payload: eventbus.CircuitStatePayload{
				Name:          b.name,
				PreviousState: string(from),
				NewState:      string(to),
				FailureCount:  b.consecutiveFailures,
			},
		})
	}
}

// Call runs fn through the breaker. When open (and not yet eligible for a
// half-open probe) it short-circuits with apierr.NewUpstreamUnavailable
// without invoking fn at all.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	b.maybeHalfOpenLocked()
	if b.state == Open {
		b.mu.Unlock()
		return apierr.NewUpstreamUnavailable(b.name, "circuit breaker open", nil)
	}
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.consecutiveFailures++
		b.consecutiveSuccesses = 0
		if b.state == HalfOpen {
			b.transitionLocked(Open)
		} else if b.state == Closed && b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.transitionLocked(Open)
		}
		return err
	}

	b.consecutiveFailures = 0
	if b.state == HalfOpen {
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.transitionLocked(Closed)
		}
	}
	return nil
}
