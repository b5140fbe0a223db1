package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tukar/pkg/core"
	"tukar/pkg/exchange"
)

type mockVenue struct {
	name    string
	ticker  *core.Ticker
	err     error
	calls   atomic.Int32
	symbols atomic.Value
}

func (m *mockVenue) Name() string {
	return m.name
}

func (m *mockVenue) FetchTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	m.calls.Add(1)
	m.symbols.Store(symbol)
	if m.err != nil {
		return nil, m.err
	}
	return m.ticker, nil
}

// walletVenue serves balances only.
type walletVenue struct {
	name     string
	balances core.Balances
	err      error
}

func (w *walletVenue) Name() string {
	return w.name
}

func (w *walletVenue) FetchBalance(ctx context.Context) (core.Balances, error) {
	return w.balances, w.err
}

func newContainer(venues ...exchange.Exchange) *exchange.Container {
	c := exchange.NewContainer()
	for _, v := range venues {
		c.Register(v.Name(), v)
	}
	return c
}

func TestTickers(t *testing.T) {
	a := &mockVenue{name: "alpha", ticker: &core.Ticker{Symbol: "BTC/USDT", Bid: core.MustDecimal("100")}}
	b := &mockVenue{name: "beta", err: core.ErrUnknownSymbol}
	w := &walletVenue{name: "gamma"}

	agg := New(newContainer(b, w, a))
	results := agg.Tickers(context.Background(), "BTC/USDT")

	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].Exchange)
	assert.NoError(t, results[0].Error)
	assert.Equal(t, "100", results[0].Ticker.Bid.String())

	assert.Equal(t, "beta", results[1].Exchange)
	assert.ErrorIs(t, results[1].Error, core.ErrUnknownSymbol)
	assert.Nil(t, results[1].Ticker)

	assert.EqualValues(t, 1, a.calls.Load())
	assert.Equal(t, "BTC/USDT", a.symbols.Load())
}

func TestTickers_CancelledContext(t *testing.T) {
	a := &mockVenue{name: "alpha", ticker: &core.Ticker{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := New(newContainer(a)).Tickers(ctx, "BTC/USDT")
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Error, context.Canceled)
	assert.Zero(t, a.calls.Load())
}

func TestTickers_Empty(t *testing.T) {
	assert.Empty(t, New(exchange.NewContainer()).Tickers(context.Background(), "BTC/USDT"))
}

func TestBalances(t *testing.T) {
	funded := &walletVenue{name: "funded", balances: core.Balances{
		"BTC": core.NewBalanceAccount(core.MustDecimal("1"), core.MustDecimal("0.5")),
	}}
	locked := &walletVenue{name: "locked", err: errors.New("no key")}

	results := New(newContainer(locked, funded, &mockVenue{name: "ticker-only"})).Balances(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "funded", results[0].Exchange)
	fundedBTC := results[0].Balances["BTC"]
	assert.Equal(t, "1.5", fundedBTC.Total.String())
	assert.Equal(t, "locked", results[1].Exchange)
	assert.Error(t, results[1].Error)
}

func TestCapabilities(t *testing.T) {
	caps := New(newContainer(&mockVenue{name: "alpha"}, &walletVenue{name: "beta"})).Capabilities()
	assert.Equal(t, []core.Operation{core.OpFetchTicker}, caps["alpha"])
	assert.Equal(t, []core.Operation{core.OpFetchBalance}, caps["beta"])
}
