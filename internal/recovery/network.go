// Package recovery provides the failure-handling wrappers shared by every
// provider adapter: retry with exponential backoff, per-provider circuit
// breaking, and best-effort repair of malformed JSON response bodies.
package recovery

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// RetryConfig controls the backoff loop around one outbound call.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Timeout    time.Duration
}

// DefaultRetryConfig returns the retry parameters used when a provider has
// no explicit configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Timeout:    120 * time.Second,
	}
}

// DelayForAttempt calculates the backoff before retry attempt n (0-indexed):
// min(MaxDelay, BaseDelay * Multiplier^n).
func (rc RetryConfig) DelayForAttempt(attempt int) time.Duration {
	delay := float64(rc.BaseDelay) * math.Pow(rc.Multiplier, float64(attempt))
	if delay > float64(rc.MaxDelay) {
		delay = float64(rc.MaxDelay)
	}
	return time.Duration(delay)
}

// BreakerConfig controls the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultBreakerConfig returns the breaker parameters used when a provider
// has no explicit configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Sleeper abstracts backoff delays so tests never sleep for real.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// BreakerState is the current state of a provider's circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// breaker tracks consecutive failures for one provider. Access is guarded
// by the owning Manager's mutex.
type breaker struct {
	config   BreakerConfig
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// Outcome is the result envelope of a recovered call. The original error is
// always preserved for the caller.
type Outcome struct {
	Success                 bool
	Data                    any
	Err                     error
	Attempts                int
	Retries                 int
	CircuitBreakerTriggered bool
	// RetryAt is when the open breaker admits its next probe. Only set on
	// short-circuited calls.
	RetryAt time.Time
}

// ErrCircuitOpen marks a call short-circuited by an open breaker. Callers
// wrap it into their own taxonomy; errors.Is still reaches it.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Manager owns the retry policy and circuit breakers for every provider.
// Construct one per process and inject it; breaker state is shared by all
// clients of the same provider.
type Manager struct {
	mu       sync.Mutex
	retry    RetryConfig
	breakers map[string]*breaker
	breaker  BreakerConfig
	sleeper  Sleeper
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRetryConfig overrides the default retry parameters.
func WithRetryConfig(rc RetryConfig) ManagerOption {
	return func(m *Manager) { m.retry = rc }
}

// WithBreakerConfig overrides the default breaker parameters.
func WithBreakerConfig(bc BreakerConfig) ManagerOption {
	return func(m *Manager) { m.breaker = bc }
}

// WithSleeper overrides the delay implementation, for tests.
func WithSleeper(s Sleeper) ManagerOption {
	return func(m *Manager) { m.sleeper = s }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a recovery manager with the given options.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		retry:    DefaultRetryConfig(),
		breaker:  DefaultBreakerConfig(),
		breakers: make(map[string]*breaker),
		sleeper:  realSleeper{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the breaker state for a provider.
func (m *Manager) State(provider string) BreakerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerFor(provider).state
}

// Reset clears all breaker state. Tests use this between cases.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers = make(map[string]*breaker)
}

func (m *Manager) breakerFor(provider string) *breaker {
	b, ok := m.breakers[provider]
	if !ok {
		b = &breaker{config: m.breaker, state: BreakerClosed}
		m.breakers[provider] = b
	}
	return b
}

// Execute runs fn under the provider's retry policy and circuit breaker.
// Each attempt gets its own timeout context. Retryable errors (429, 5xx,
// transport failures) are retried with exponential backoff; everything else
// fails immediately.
func (m *Manager) Execute(ctx context.Context, provider string, fn func(ctx context.Context) (any, error)) Outcome {
	if !m.admit(provider) {
		retryAt := m.retryAt(provider)
		log.Debug("call short-circuited", "provider", provider, "retry_at", retryAt)
		return Outcome{
			Err:                     ErrCircuitOpen,
			CircuitBreakerTriggered: true,
			RetryAt:                 retryAt,
		}
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= m.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := m.retry.DelayForAttempt(attempt - 1)
			log.Debug("retrying provider call",
				"provider", provider,
				"attempt", attempt,
				"delay", delay)
			m.sleeper.Sleep(delay)
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if m.retry.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, m.retry.Timeout)
		}
		data, err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		attempts++

		if err == nil {
			m.recordSuccess(provider)
			return Outcome{Success: true, Data: data, Attempts: attempts, Retries: attempts - 1}
		}

		lastErr = err
		m.recordFailure(provider)
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		// Breaker may have opened mid-loop; stop burning attempts.
		if m.State(provider) == BreakerOpen {
			break
		}
	}

	return Outcome{Err: lastErr, Attempts: attempts, Retries: attempts - 1}
}

// admit checks the breaker before a network attempt. An open breaker past
// its cooldown transitions to half-open and admits a single probe.
func (m *Manager) admit(provider string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.breakerFor(provider)
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if m.now().Sub(b.openedAt) >= b.config.Cooldown {
			b.state = BreakerHalfOpen
			b.probing = true
			log.Debug("breaker half-open, admitting probe", "provider", provider)
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

func (m *Manager) retryAt(provider string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.breakerFor(provider)
	return b.openedAt.Add(b.config.Cooldown)
}

func (m *Manager) recordSuccess(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.breakerFor(provider)
	if b.state == BreakerHalfOpen {
		log.Info("breaker closed after successful probe", "provider", provider)
	}
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}

func (m *Manager) recordFailure(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.breakerFor(provider)
	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = m.now()
		b.probing = false
		log.Warn("breaker re-opened after failed probe", "provider", provider)
		return
	}
	b.failures++
	if b.failures >= b.config.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = m.now()
		log.Warn("breaker opened",
			"provider", provider,
			"consecutive_failures", b.failures)
	}
}

func retryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
