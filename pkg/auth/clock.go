package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultResyncInterval is how often a SkewClock asks the venue for its time.
const DefaultResyncInterval = 1024 * time.Second

// ServerTimeFunc fetches the venue's current time.
type ServerTimeFunc func(ctx context.Context) (time.Time, error)

// SkewClock corrects the local clock by the offset to a venue's server time.
// The offset is refreshed on the first Now call and then at most once per
// resync interval. A failed refresh keeps the previous offset.
type SkewClock struct {
	fetch     ServerTimeFunc
	now       func() time.Time
	sometimes *rate.Sometimes
	logger    zerolog.Logger

	mu     sync.RWMutex
	offset time.Duration
}

// SkewClockOption configures a SkewClock.
type SkewClockOption func(*SkewClock)

// WithResyncInterval overrides DefaultResyncInterval.
func WithResyncInterval(d time.Duration) SkewClockOption {
	return func(c *SkewClock) {
		c.sometimes = &rate.Sometimes{Interval: d}
	}
}

// WithLocalClock replaces time.Now, for tests.
func WithLocalClock(now func() time.Time) SkewClockOption {
	return func(c *SkewClock) {
		c.now = now
	}
}

// WithClockLogger sets the logger used for resync failures.
func WithClockLogger(logger zerolog.Logger) SkewClockOption {
	return func(c *SkewClock) {
		c.logger = logger
	}
}

func NewSkewClock(fetch ServerTimeFunc, opts ...SkewClockOption) *SkewClock {
	c := &SkewClock{
		fetch:     fetch,
		now:       time.Now,
		sometimes: &rate.Sometimes{Interval: DefaultResyncInterval},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the local time shifted by the last known server offset.
func (c *SkewClock) Now(ctx context.Context) time.Time {
	c.sometimes.Do(func() {
		if err := c.Resync(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("server time resync failed")
		}
	})
	return c.now().Add(c.Offset())
}

// Resync fetches the server time and stores the new offset. The local
// reference is the midpoint of the round trip.
func (c *SkewClock) Resync(ctx context.Context) error {
	before := c.now()
	server, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	after := c.now()
	local := before.Add(after.Sub(before) / 2)

	c.mu.Lock()
	c.offset = server.Sub(local)
	c.mu.Unlock()

	c.logger.Debug().Dur("offset", server.Sub(local)).Msg("server time offset updated")
	return nil
}

// Offset returns the current server minus local offset.
func (c *SkewClock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}
