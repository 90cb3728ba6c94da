// Package resilience provides circuit breaking, retry with backoff, and
// error categorization for calls to external data providers.
package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state, requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many failures occurred and requests are rejected immediately.
	CircuitOpen
	// CircuitHalfOpen allows probe requests to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is
// open. Callers can distinguish "provider is down" from "this request failed".
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Default: 5.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in half-open
	// state required to close the circuit. Default: 2.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before the next call is
	// allowed through as a probe. Default: 30s.
	Timeout time.Duration

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(source string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern for a single source.
// It is the only cross-job shared mutable state, so every access goes
// through the mutex.
type CircuitBreaker struct {
	source string
	cfg    CircuitBreakerConfig

	mu            sync.Mutex
	state         CircuitState
	failureCount  int
	successCount  int
	nextAttemptAt time.Time

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker for the named source.
func NewCircuitBreaker(source string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		source:  source,
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Execute runs fn through the circuit breaker. Returns ErrCircuitOpen without
// invoking fn if the circuit is open and the cool-down has not elapsed.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allowRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.recordResult(err)
	return err
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allowRequest(); err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	cb.recordResult(err)
	return val, err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// An open circuit whose cool-down has elapsed will admit the next call
	// as a half-open probe.
	if cb.state == CircuitOpen && !cb.nowFunc().Before(cb.nextAttemptAt) {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset forces the circuit back to closed state. Used by the operator
// endpoint for manual recovery.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	old := cb.state
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.successCount = 0
	if old != CircuitClosed && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.source, old, CircuitClosed)
	}
}

// Status is a point-in-time snapshot of one breaker for observability.
type Status struct {
	Source        string     `json:"source"`
	State         string     `json:"state"`
	FailureCount  int        `json:"failure_count"`
	SuccessCount  int        `json:"success_count"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// Snapshot returns the breaker's current status.
func (cb *CircuitBreaker) Snapshot() Status {
	st := cb.State()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Status{
		Source:       cb.source,
		State:        st.String(),
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
	}
	if cb.state == CircuitOpen {
		t := cb.nextAttemptAt
		s.NextAttemptAt = &t
	}
	return s
}

func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if !cb.nowFunc().Before(cb.nextAttemptAt) {
			cb.transition(CircuitHalfOpen)
			return nil // allow probe request
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		switch cb.state {
		case CircuitHalfOpen:
			cb.successCount++
			if cb.successCount >= cb.cfg.SuccessThreshold {
				cb.transition(CircuitClosed)
				cb.failureCount = 0
				cb.successCount = 0
			}
		case CircuitClosed:
			cb.failureCount = 0
		}
		return
	}

	cb.failureCount++

	switch cb.state {
	case CircuitClosed:
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.open()
		}
	case CircuitHalfOpen:
		// Any failure while half-open reopens the circuit.
		cb.open()
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) open() {
	cb.nextAttemptAt = cb.nowFunc().Add(cb.cfg.Timeout)
	cb.transition(CircuitOpen)
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.source, from, to)
	}
}

// SourceBreakers manages one circuit breaker per named source, so a degraded
// provider cannot starve calls to a healthy one.
type SourceBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewSourceBreakers creates a registry of per-source circuit breakers.
func NewSourceBreakers(cfg CircuitBreakerConfig) *SourceBreakers {
	return &SourceBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the circuit breaker for the named source, creating one if needed.
func (sb *SourceBreakers) Get(source string) *CircuitBreaker {
	sb.mu.RLock()
	cb, ok := sb.breakers[source]
	sb.mu.RUnlock()
	if ok {
		return cb
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	// Double-check after acquiring write lock.
	if cb, ok = sb.breakers[source]; ok {
		return cb
	}
	cb = NewCircuitBreaker(source, sb.cfg)
	sb.breakers[source] = cb
	return cb
}

// Reset forces the named source's breaker back to closed. Returns false if no
// breaker exists for that source.
func (sb *SourceBreakers) Reset(source string) bool {
	sb.mu.RLock()
	cb, ok := sb.breakers[source]
	sb.mu.RUnlock()
	if !ok {
		return false
	}
	cb.Reset()
	return true
}

// Snapshot returns the status of every known breaker, sorted by source name.
func (sb *SourceBreakers) Snapshot() []Status {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	out := make([]Status, 0, len(sb.breakers))
	for _, cb := range sb.breakers {
		out = append(out, cb.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
