// Package throttle spaces out requests to a single venue.
//
// A Throttle admits one caller at a time. Waiting happens while holding the
// slot, so concurrent callers queue behind each other and every admitted
// request is at least one interval after the previous one. The wait is not
// interrupted by context cancellation: a cancelled caller still consumes its
// slot and is then told to abandon the request.
package throttle

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"tukar/internal/metrics"
	"tukar/pkg/core"
)

// Policy selects how the delay before a request is computed.
type Policy int

const (
	// PolicyFixed waits until Interval has passed since the previous request.
	PolicyFixed Policy = iota
	// PolicyWeighted behaves like PolicyFixed only while the venue reports a
	// used weight above WeightThreshold.
	PolicyWeighted
	// PolicyAlwaysSleep sleeps the full interval before every request.
	PolicyAlwaysSleep
)

// String returns the string representation of the policy.
func (p Policy) String() string {
	return [...]string{"fixed", "weighted", "always_sleep"}[p]
}

// Config describes a venue's throttling rules.
type Config struct {
	Policy Policy
	// Interval is the minimum spacing for public requests.
	Interval time.Duration
	// PrivateInterval applies to private requests. Zero means Interval.
	PrivateInterval time.Duration
	// WeightHeader names the response header carrying the used weight.
	WeightHeader string
	// WeightThreshold is the used weight above which PolicyWeighted throttles.
	WeightThreshold int64
}

// Throttle enforces a Config for one venue client.
type Throttle struct {
	name   string
	config Config
	now    func() time.Time
	sleep  func(time.Duration)

	mu   sync.Mutex
	last time.Time

	weight  atomic.Int64
	metrics *Metrics
}

// Metrics tracks statistics about throttle usage.
type Metrics struct {
	totalRequests     atomic.Int64
	throttledRequests atomic.Int64
	abandonedRequests atomic.Int64
	totalWait         atomic.Int64
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithClock replaces time.Now and time.Sleep, for tests.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(t *Throttle) {
		t.now = now
		t.sleep = sleep
	}
}

// New creates a Throttle for the named venue.
func New(name string, config Config, opts ...Option) *Throttle {
	t := &Throttle{
		name:    name,
		config:  config,
		now:     time.Now,
		sleep:   time.Sleep,
		metrics: &Metrics{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the rules this throttle enforces.
func (t *Throttle) Config() Config {
	return t.config
}

// Wait blocks until the request may be sent. It returns ctx.Err() when the
// context ended before or during the wait; the slot is consumed either way.
func (t *Throttle) Wait(ctx context.Context, api core.APIType) error {
	t.metrics.totalRequests.Add(1)

	t.mu.Lock()
	delay := t.delay(api)
	if delay > 0 {
		t.sleep(delay)
		t.metrics.throttledRequests.Add(1)
		t.metrics.totalWait.Add(int64(delay))
	}
	t.last = t.now()
	t.mu.Unlock()

	metrics.ObserveThrottleWait(t.name, delay)

	if err := ctx.Err(); err != nil {
		t.metrics.abandonedRequests.Add(1)
		return err
	}
	return nil
}

func (t *Throttle) interval(api core.APIType) time.Duration {
	if api == core.APIPrivate && t.config.PrivateInterval > 0 {
		return t.config.PrivateInterval
	}
	return t.config.Interval
}

// delay must be called with mu held.
func (t *Throttle) delay(api core.APIType) time.Duration {
	interval := t.interval(api)
	switch t.config.Policy {
	case PolicyAlwaysSleep:
		return interval
	case PolicyWeighted:
		if t.weight.Load() <= t.config.WeightThreshold {
			return 0
		}
	}
	if t.last.IsZero() {
		return 0
	}
	return interval - t.now().Sub(t.last)
}

// Observe reads the used weight from a response header, if configured.
func (t *Throttle) Observe(header http.Header) {
	if t.config.WeightHeader == "" || header == nil {
		return
	}
	raw := header.Get(t.config.WeightHeader)
	if raw == "" {
		return
	}
	w, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	t.weight.Store(w)
	metrics.SetUsedWeight(t.name, w)
}

// UsedWeight returns the last observed weight.
func (t *Throttle) UsedWeight() int64 {
	return t.weight.Load()
}

// Metrics returns a snapshot of the current throttle statistics.
func (t *Throttle) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:     t.metrics.totalRequests.Load(),
		ThrottledRequests: t.metrics.throttledRequests.Load(),
		AbandonedRequests: t.metrics.abandonedRequests.Load(),
		TotalWait:         time.Duration(t.metrics.totalWait.Load()),
		UsedWeight:        t.weight.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of throttle statistics.
type MetricsSnapshot struct {
	// TotalRequests is the number of admissions requested.
	TotalRequests int64
	// ThrottledRequests is the number of admissions that had to wait.
	ThrottledRequests int64
	// AbandonedRequests is the number of callers whose context ended.
	AbandonedRequests int64
	// TotalWait is the cumulative time spent waiting.
	TotalWait time.Duration
	// UsedWeight is the last venue reported weight.
	UsedWeight int64
}
