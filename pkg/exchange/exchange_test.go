package exchange

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tukar/pkg/core"
)

type tickerOnly struct {
	calls atomic.Int32
	fail  map[string]error
}

func (t *tickerOnly) Name() string { return "mock" }

func (t *tickerOnly) FetchTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	t.calls.Add(1)
	if err, ok := t.fail[symbol]; ok {
		return nil, err
	}
	return &core.Ticker{Symbol: symbol, Last: core.MustDecimal("1")}, nil
}

func TestCapabilities(t *testing.T) {
	ex := &tickerOnly{}
	assert.Equal(t, []core.Operation{core.OpFetchTicker}, Capabilities(ex))
	assert.True(t, Has(ex, core.OpFetchTicker))
	assert.False(t, Has(ex, core.OpCreateOrder))
	assert.Empty(t, Capabilities(bareExchange{}))
}

func TestOrderRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  OrderRequest
		want core.ErrorType
	}{
		{
			name: "valid limit",
			req:  OrderRequest{Symbol: "BTC/USDT", Type: core.TypeLimit, Amount: core.MustDecimal("0.1"), Price: core.MustDecimal("100")},
		},
		{
			name: "valid market",
			req:  OrderRequest{Symbol: "BTC/USDT", Type: core.TypeMarket, Side: core.SideSell, Amount: core.MustDecimal("0.1")},
		},
		{
			name: "missing symbol",
			req:  OrderRequest{Type: core.TypeMarket, Amount: core.MustDecimal("1")},
			want: core.ErrorTypeBadRequest,
		},
		{
			name: "other type",
			req:  OrderRequest{Symbol: "BTC/USDT", Type: core.TypeOther, Amount: core.MustDecimal("1")},
			want: core.ErrorTypeBadRequest,
		},
		{
			name: "zero amount",
			req:  OrderRequest{Symbol: "BTC/USDT", Type: core.TypeMarket},
			want: core.ErrorTypeInvalidOrder,
		},
		{
			name: "limit without price",
			req:  OrderRequest{Symbol: "BTC/USDT", Type: core.TypeLimit, Amount: core.MustDecimal("1")},
			want: core.ErrorTypeArgumentsRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate("test")
			if tt.want == core.ErrorTypeUnknown {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.want, core.TypeOf(err))
		})
	}
}

func TestNewClientOrderID(t *testing.T) {
	a, b := NewClientOrderID(), NewClientOrderID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestOptions(t *testing.T) {
	since := time.UnixMilli(1_700_000_000_000)
	o := ApplyOptions(WithSince(since), WithSymbols("BTC/USDT"), WithSymbols("ETH/USDT"), WithLimit(2))

	assert.Equal(t, int64(1_700_000_000_000), o.SinceMillis())
	assert.True(t, o.Includes("ETH/USDT"))
	assert.False(t, o.Includes("LTC/USDT"))
	assert.True(t, o.After(1_700_000_000_000))
	assert.False(t, o.After(1_699_999_999_999))
	assert.Equal(t, []int{1, 2}, Truncate([]int{1, 2, 3}, o.Limit))

	empty := ApplyOptions()
	assert.Zero(t, empty.SinceMillis())
	assert.True(t, empty.Includes("anything"))
	assert.True(t, empty.After(0))
	assert.Equal(t, []int{1, 2, 3}, Truncate([]int{1, 2, 3}, empty.Limit))
}

func TestFetchTickersConcurrently(t *testing.T) {
	unknown := core.NewExchangeError("mock", core.ErrorTypeBadRequest, 0, "unknown symbol").WithCause(core.ErrUnknownSymbol)
	ex := &tickerOnly{fail: map[string]error{"NOPE/USD": unknown}}

	got, err := FetchTickersConcurrently(context.Background(), ex, []string{"BTC/USD", "ETH/USD", "NOPE/USD"}, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "ETH/USD", got["ETH/USD"].Symbol)
	assert.Equal(t, int32(3), ex.calls.Load())
}

func TestFetchTickersConcurrently_Error(t *testing.T) {
	down := core.NewExchangeError("mock", core.ErrorTypeNotAvailable, 503, "down")
	ex := &tickerOnly{fail: map[string]error{"BTC/USD": down}}

	_, err := FetchTickersConcurrently(context.Background(), ex, []string{"BTC/USD"}, 0)
	require.Error(t, err)
	assert.True(t, core.IsNotAvailableError(err))
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	t.Run("retries retryable errors", func(t *testing.T) {
		var calls int
		v, err := RetryValue(context.Background(), cfg, func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", core.NewExchangeError("mock", core.ErrorTypeRateLimit, 429, "slow down")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		var calls int
		authErr := core.NewExchangeError("mock", core.ErrorTypeAuthentication, 401, "bad key")
		err := Retry(context.Background(), cfg, func(ctx context.Context) error {
			calls++
			return authErr
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, authErr))
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls int
		err := Retry(context.Background(), cfg, func(ctx context.Context) error {
			calls++
			return core.NewExchangeError("mock", core.ErrorTypeNetwork, 0, "reset")
		})
		require.Error(t, err)
		assert.True(t, core.IsNetworkError(err))
		assert.Equal(t, 4, calls)
	})
}
