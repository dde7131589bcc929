// Package resilience provides the circuit breaker and rate limiting
// primitives that protect the gateway from unhealthy dependencies and
// bursty traffic.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
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

// gaugeValue maps a state to the numeric value the state gauge reports.
func (s CircuitBreakerState) gaugeValue() float64 {
	switch s {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return -1
	}
}

// CircuitBreakerConfig configures a single breaker's thresholds.
type CircuitBreakerConfig struct {
	Name                   string
	FailureThreshold       int
	ResetTimeout           time.Duration
	HalfOpenMaxCalls       int
	HalfOpenSuccessThreshold int
	CallTimeout            time.Duration
	// IsExpectedError classifies an error as expected (not counted as a
	// dependency failure), e.g. a validation error the dependency returned.
	IsExpectedError func(error) bool
}

// DefaultCircuitBreakerConfig returns sensible defaults for a named breaker.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                     name,
		FailureThreshold:         5,
		ResetTimeout:             60 * time.Second,
		HalfOpenMaxCalls:         3,
		HalfOpenSuccessThreshold: 2,
		CallTimeout:              0,
	}
}

// stateChange is one entry in the bounded state-change history.
type stateChange struct {
	from      CircuitBreakerState
	to        CircuitBreakerState
	at        time.Time
	reason    string
}

const (
	maxStateHistory    = 50
	stateHistoryMaxAge = time.Hour
)

// CircuitBreaker is a per-dependency CLOSED/HALF_OPEN/OPEN state machine.
// State reads, transition checks, admission counting, and state writes all
// happen under mu; the protected call itself runs outside the lock so one
// slow dependency never serializes calls to a healthy one.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	logger observability.Logger

	mu              sync.Mutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	halfOpenCalls   int
	lastFailureTime time.Time
	history         []stateChange

	metrics *breakerMetrics
}

// NewCircuitBreaker creates a breaker with the given config and logger.
func NewCircuitBreaker(config CircuitBreakerConfig, logger observability.Logger, metrics *breakerMetrics) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 3
	}
	if config.HalfOpenSuccessThreshold <= 0 {
		config.HalfOpenSuccessThreshold = 2
	}
	return &CircuitBreaker{
		config:  config,
		logger:  logger.WithPrefix("circuit-breaker." + config.Name),
		state:   StateClosed,
		metrics: metrics,
	}
}

// Execute runs fn under the breaker's protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.admit() {
		cb.observeResult("rejected", 0)
		return &apperrors.CircuitBreakerOpenError{Dependency: cb.config.Name}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if cb.config.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, cb.config.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(callCtx)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		cb.recordSuccess()
		cb.observeResult("success", elapsed)
		return nil
	case cb.config.IsExpectedError != nil && cb.config.IsExpectedError(err):
		cb.observeResult("expected_error", elapsed)
		return err
	case callCtx.Err() == context.DeadlineExceeded:
		cb.recordFailure("call timed out")
		cb.observeResult("timeout", elapsed)
		return err
	default:
		cb.recordFailure(err.Error())
		cb.observeResult("failure", elapsed)
		return err
	}
}

// admit decides whether a call may proceed, transitioning OPEN->HALF_OPEN
// when the reset timeout has elapsed.
func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.ResetTimeout {
			cb.transition(StateHalfOpen, "reset timeout elapsed")
			cb.successCount = 0
			cb.halfOpenCalls = 0
			cb.halfOpenCalls++
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenCalls < cb.config.HalfOpenMaxCalls {
			cb.halfOpenCalls++
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.HalfOpenSuccessThreshold {
			cb.transition(StateClosed, "half-open success threshold reached")
			cb.failureCount = 0
			cb.successCount = 0
			cb.halfOpenCalls = 0
		}
	case StateClosed:
		if cb.failureCount > 0 {
			cb.failureCount--
		}
	}
}

func (cb *CircuitBreaker) recordFailure(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateOpen, "failure during half-open: "+reason)
		cb.successCount = 0
		cb.halfOpenCalls = 0
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transition(StateOpen, "failure threshold reached: "+reason)
		}
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitBreakerState, reason string) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.pruneHistory()
	cb.history = append(cb.history, stateChange{from: from, to: to, at: time.Now(), reason: reason})
	if len(cb.history) > maxStateHistory {
		cb.history = cb.history[len(cb.history)-maxStateHistory:]
	}
	cb.logger.Info("circuit breaker transitioned", map[string]interface{}{
		"from":   from.String(),
		"to":     to.String(),
		"reason": reason,
	})
	if cb.metrics != nil {
		cb.metrics.state.WithLabelValues(cb.config.Name).Set(to.gaugeValue())
	}
}

// pruneHistory drops entries older than stateHistoryMaxAge; caller holds mu.
func (cb *CircuitBreaker) pruneHistory() {
	cutoff := time.Now().Add(-stateHistoryMaxAge)
	i := 0
	for ; i < len(cb.history); i++ {
		if cb.history[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		cb.history = cb.history[i:]
	}
}

func (cb *CircuitBreaker) observeResult(result string, elapsed time.Duration) {
	if cb.metrics == nil {
		return
	}
	cb.metrics.calls.WithLabelValues(cb.config.Name, cb.State().String(), result).Inc()
	if elapsed > 0 {
		cb.metrics.duration.WithLabelValues(cb.config.Name).Observe(elapsed.Seconds())
	}
	cb.mu.Lock()
	failureRate := 0.0
	if total := cb.failureCount + cb.successCount; total > 0 {
		failureRate = float64(cb.failureCount) / float64(total)
	}
	cb.mu.Unlock()
	cb.metrics.failureRate.WithLabelValues(cb.config.Name).Set(failureRate)
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot suitable for health/debug endpoints.
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"name":            cb.config.Name,
		"state":           cb.state.String(),
		"failure_count":   cb.failureCount,
		"success_count":   cb.successCount,
		"half_open_calls": cb.halfOpenCalls,
		"last_failure":    cb.lastFailureTime,
		"history_size":    len(cb.history),
	}
}

// breakerMetrics holds the Prometheus collectors shared by every breaker in
// a Registry so per-dependency series share one metric family.
type breakerMetrics struct {
	calls       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	state       *prometheus.GaugeVec
	failureRate *prometheus.GaugeVec
}

func newBreakerMetrics(reg prometheus.Registerer) *breakerMetrics {
	m := &breakerMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_calls_total",
			Help: "Circuit breaker call outcomes by dependency, state, and result.",
		}, []string{"dependency", "state", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "circuit_breaker_call_duration_seconds",
			Help: "Execution time of calls protected by a circuit breaker.",
		}, []string{"dependency"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half_open, 2=open).",
		}, []string{"dependency"}),
		failureRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_failure_rate",
			Help: "Recent failure rate observed by a circuit breaker.",
		}, []string{"dependency"}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.duration, m.state, m.failureRate)
	}
	return m
}

// Registry holds one CircuitBreaker per named dependency, constructed once
// at startup and passed through ServiceContext rather than kept as globals.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	logger   observability.Logger
	metrics  *breakerMetrics
}

// NewRegistry creates an empty registry backed by reg for metric registration.
func NewRegistry(logger observability.Logger, reg prometheus.Registerer) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
		metrics:  newBreakerMetrics(reg),
	}
}

// Get returns the breaker for name, creating it with config on first use.
func (r *Registry) Get(config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[config.Name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[config.Name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(config, r.logger, r.metrics)
	r.breakers[config.Name] = cb
	return cb
}

// All returns a snapshot of every breaker's stats, keyed by name.
func (r *Registry) All() map[string]map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]interface{}, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.Stats()
	}
	return out
}
