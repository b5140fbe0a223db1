// Package circuitbreaker stops sending requests to a venue that keeps failing
// at the transport or availability level.
package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tukar/pkg/core"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

type Config struct {
	FailThreshold    int           `json:"fail_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	Timeout          time.Duration `json:"timeout"`
}

// Breaker counts consecutive venue-side failures. After FailThreshold of them
// it opens and rejects requests until Timeout passes; it then lets requests
// through half-open and closes again after SuccessThreshold successes.
//
// Only errors that say nothing about the request itself count as failures:
// network, timeout and not-available. A 400 or an auth failure proves the
// venue is up.
type Breaker struct {
	name   string
	config Config
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time

	metrics *Metrics
}

type Metrics struct {
	totalRequests    atomic.Int64
	rejectedRequests atomic.Int64
	failedRequests   atomic.Int64
	stateChanges     atomic.Int32
}

type Option func(*Breaker)

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

func New(name string, config Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:    name,
		config:  config,
		now:     time.Now,
		logger:  zerolog.Nop(),
		metrics: &Metrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsFailure reports whether err should count against the venue.
func IsFailure(err error) bool {
	switch core.TypeOf(err) {
	case core.ErrorTypeNetwork, core.ErrorTypeTimeout, core.ErrorTypeNotAvailable:
		return true
	}
	return false
}

// Allow returns nil when a request may proceed, or a NotAvailable error
// while the breaker is open.
func (b *Breaker) Allow() error {
	b.metrics.totalRequests.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.config.Timeout {
			b.metrics.rejectedRequests.Add(1)
			return core.NewExchangeError(b.name, core.ErrorTypeNotAvailable, 0, "circuit breaker is open").
				WithCode(core.ErrCodeCircuitBreaker).
				WithCause(core.ErrCircuitBreakerOpen)
		}
		b.transitionTo(StateHalfOpen)
		b.successes = 0
	}
	return nil
}

// Record feeds the outcome of a request allowed by Allow.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if IsFailure(err) {
		b.metrics.failedRequests.Add(1)
		switch b.state {
		case StateClosed:
			b.failures++
			if b.failures >= b.config.FailThreshold {
				b.open()
			}
		case StateHalfOpen:
			b.open()
		}
		return
	}

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transitionTo(StateClosed)
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.successes = 0
	b.transitionTo(StateOpen)
	b.logger.Warn().
		Str("exchange", b.name).
		Int("failures", b.failures).
		Dur("timeout", b.config.Timeout).
		Msg("circuit breaker opened")
}

func (b *Breaker) transitionTo(newState State) {
	if b.state == newState {
		return
	}
	b.state = newState
	b.metrics.stateChanges.Add(1)
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

func (b *Breaker) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:    b.metrics.totalRequests.Load(),
		RejectedRequests: b.metrics.rejectedRequests.Load(),
		FailedRequests:   b.metrics.failedRequests.Load(),
		StateChanges:     b.metrics.stateChanges.Load(),
		CurrentState:     b.State().String(),
	}
}

type MetricsSnapshot struct {
	TotalRequests    int64
	RejectedRequests int64
	FailedRequests   int64
	StateChanges     int32
	CurrentState     string
}
