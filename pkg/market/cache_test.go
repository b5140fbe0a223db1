package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tukar/pkg/core"
)

func testMarkets() []*core.Market {
	return []*core.Market{
		core.NewMarket("BTC_USD", "BTC", "USD", "BTC", "USD"),
		core.NewMarket("XDGXBT", "XDG", "XBT", "DOGE", "BTC"),
	}
}

func TestCache_LoadsOnce(t *testing.T) {
	var calls atomic.Int32
	c := New("test", 0, func(ctx context.Context) ([]*core.Market, error) {
		calls.Add(1)
		return testMarkets(), nil
	})

	for range 3 {
		markets, err := c.Markets(context.Background())
		require.NoError(t, err)
		assert.Len(t, markets, 2)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_ConcurrentCallersShareLoad(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := New("test", 0, func(ctx context.Context) ([]*core.Market, error) {
		calls.Add(1)
		<-release
		return testMarkets(), nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := c.Market(context.Background(), "BTC/USD")
			assert.NoError(t, err)
			assert.Equal(t, "BTC_USD", m.ID)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_TTL(t *testing.T) {
	now := time.Unix(0, 0)
	var calls atomic.Int32
	c := New("test", time.Minute, func(ctx context.Context) ([]*core.Market, error) {
		calls.Add(1)
		return testMarkets(), nil
	}, WithClock(func() time.Time { return now }))

	_, err := c.Markets(context.Background())
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = c.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(time.Minute)
	_, err = c.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, now, c.LoadedAt())
}

func TestCache_Lookups(t *testing.T) {
	c := New("test", 0, func(ctx context.Context) ([]*core.Market, error) {
		return testMarkets(), nil
	})
	ctx := context.Background()

	m, err := c.Market(ctx, "DOGE/BTC")
	require.NoError(t, err)
	assert.Equal(t, "XDGXBT", m.ID)

	_, err = c.Market(ctx, "ETH/BTC")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownSymbol)
	assert.True(t, core.IsErrorType(err, core.ErrorTypeBadRequest))

	m, ok, err := c.ByID(ctx, "BTC_USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTC/USD", m.Symbol())

	_, ok, err = c.ByID(ctx, "ETHBTC.d")
	require.NoError(t, err)
	assert.False(t, ok)

	symbols, err := c.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USD", "DOGE/BTC"}, symbols)
}

func TestCache_LoadError(t *testing.T) {
	fail := errors.New("venue down")
	var calls atomic.Int32
	c := New("test", 0, func(ctx context.Context) ([]*core.Market, error) {
		if calls.Add(1) == 1 {
			return nil, fail
		}
		return testMarkets(), nil
	})

	_, err := c.Markets(context.Background())
	assert.ErrorIs(t, err, fail)

	markets, err := c.Markets(context.Background())
	require.NoError(t, err)
	assert.Len(t, markets, 2)
}

func TestCache_StaleOnRefreshFailure(t *testing.T) {
	var calls atomic.Int32
	c := New("test", 0, func(ctx context.Context) ([]*core.Market, error) {
		if calls.Add(1) > 1 {
			return nil, errors.New("venue down")
		}
		return testMarkets(), nil
	})

	_, err := c.Markets(context.Background())
	require.NoError(t, err)

	markets, err := c.Reload(context.Background())
	require.NoError(t, err)
	assert.Len(t, markets, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_Invalidate(t *testing.T) {
	var calls atomic.Int32
	c := New("test", 0, func(ctx context.Context) ([]*core.Market, error) {
		calls.Add(1)
		return testMarkets(), nil
	})

	_, err := c.Markets(context.Background())
	require.NoError(t, err)
	c.Invalidate()
	_, err = c.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
