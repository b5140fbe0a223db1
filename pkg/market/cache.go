// Package market caches a venue's market list and indexes it by canonical
// symbol and venue id.
package market

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"tukar/internal/metrics"
	"tukar/pkg/core"
)

// Loader fetches the full market list from the venue.
type Loader func(ctx context.Context) ([]*core.Market, error)

// Cache holds the markets of one venue client. Concurrent callers that find
// the cache empty or expired share a single Loader call. Once stored, the
// markets are read-only; callers must not modify them.
type Cache struct {
	name   string
	ttl    time.Duration
	load   Loader
	now    func() time.Time
	logger zerolog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	markets  []*core.Market
	bySymbol map[string]*core.Market
	byID     map[string]*core.Market
	loadedAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for refresh failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a Cache for the named venue. A zero ttl keeps the first
// successful load for the lifetime of the cache.
func New(name string, ttl time.Duration, load Loader, opts ...Option) *Cache {
	c := &Cache{
		name:   name,
		ttl:    ttl,
		load:   load,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) fresh() bool {
	if c.markets == nil {
		return false
	}
	return c.ttl == 0 || c.now().Sub(c.loadedAt) < c.ttl
}

// Markets returns the cached markets, loading them when the cache is empty
// or expired. When a refresh fails but earlier markets exist, the earlier
// markets are returned and the failure is logged.
func (c *Cache) Markets(ctx context.Context) ([]*core.Market, error) {
	c.mu.RLock()
	if c.fresh() {
		markets := c.markets
		c.mu.RUnlock()
		return markets, nil
	}
	c.mu.RUnlock()
	return c.reload(ctx, false)
}

// Reload fetches the markets even when the cache is fresh.
func (c *Cache) Reload(ctx context.Context) ([]*core.Market, error) {
	return c.reload(ctx, true)
}

func (c *Cache) reload(ctx context.Context, force bool) ([]*core.Market, error) {
	v, err, _ := c.group.Do("markets", func() (any, error) {
		if !force {
			c.mu.RLock()
			if c.fresh() {
				markets := c.markets
				c.mu.RUnlock()
				return markets, nil
			}
			c.mu.RUnlock()
		}

		metrics.IncMarketsFetch(c.name)
		markets, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		c.store(markets)
		return markets, nil
	})
	if err != nil {
		c.mu.RLock()
		stale := c.markets
		c.mu.RUnlock()
		if stale != nil {
			c.logger.Warn().Err(err).Str("exchange", c.name).Msg("market refresh failed, serving cached markets")
			return stale, nil
		}
		return nil, err
	}
	return v.([]*core.Market), nil
}

func (c *Cache) store(markets []*core.Market) {
	if markets == nil {
		markets = []*core.Market{}
	}
	bySymbol := make(map[string]*core.Market, len(markets))
	byID := make(map[string]*core.Market, len(markets))
	for _, m := range markets {
		if _, dup := bySymbol[m.Symbol()]; !dup {
			bySymbol[m.Symbol()] = m
		}
		byID[m.ID] = m
	}

	c.mu.Lock()
	c.markets = markets
	c.bySymbol = bySymbol
	c.byID = byID
	c.loadedAt = c.now()
	c.mu.Unlock()
}

// Market returns the market for a canonical symbol. Unknown symbols yield a
// BadRequest error wrapping core.ErrUnknownSymbol.
func (c *Cache) Market(ctx context.Context, symbol string) (*core.Market, error) {
	if _, err := c.Markets(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	m, ok := c.bySymbol[symbol]
	c.mu.RUnlock()
	if !ok {
		return nil, core.NewExchangeError(c.name, core.ErrorTypeBadRequest, 0, "unknown symbol "+symbol).
			WithCode(core.ErrCodeInvalidSymbol).
			WithCause(core.ErrUnknownSymbol)
	}
	return m, nil
}

// ByID returns the market with the given venue id. ok is false for pairs
// the venue reports but the cache does not know, which callers skip.
func (c *Cache) ByID(ctx context.Context, id string) (m *core.Market, ok bool, err error) {
	if _, err := c.Markets(ctx); err != nil {
		return nil, false, err
	}
	c.mu.RLock()
	m, ok = c.byID[id]
	c.mu.RUnlock()
	return m, ok, nil
}

// Symbols returns the canonical symbols of all cached markets in load order.
func (c *Cache) Symbols(ctx context.Context) ([]string, error) {
	markets, err := c.Markets(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(markets))
	for _, m := range markets {
		symbols = append(symbols, m.Symbol())
	}
	return symbols, nil
}

// Invalidate drops the cached markets so the next call reloads them.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets = nil
	c.bySymbol = nil
	c.byID = nil
	c.loadedAt = time.Time{}
}

// LoadedAt returns when the markets were last stored.
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}
