package exmo

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tukar/internal/throttle"
	"tukar/internal/venuetest"
	"tukar/pkg/core"
	"tukar/pkg/exchange"
)

const pairSettingsJSON = `{
"BTC_USD":{"min_quantity":"0.001","max_quantity":"100","min_price":"1","max_price":"30000","max_amount":"500000","min_amount":"1","price_precision":2,"commission_taker_percent":"0.3","commission_maker_percent":"0.2"},
"ETH_BTC":{"min_quantity":"0.01","max_quantity":"0","min_price":"0.0001","max_price":"10","max_amount":"0","min_amount":"0.0001"},
"broken":{"min_quantity":"1"}
}`

const tickerJSON = `{
"BTC_USD":{"buy_price":"29000.1","sell_price":"29001.5","last_trade":"29000.9","high":"29500","low":"28000","avg":"28750.2","vol":"12.5","vol_curr":"362511.25","updated":1700000000},
"DOGE_USD":{"buy_price":"0.1","sell_price":"0.2","last_trade":"0.1","high":"0.2","low":"0.1","avg":"0.15","vol":"1","vol_curr":"0.1","updated":1700000000}
}`

func assertDecimal(t *testing.T, want string, got apd.Decimal) {
	t.Helper()
	expected := core.MustDecimal(want)
	assert.Zero(t, expected.Cmp(&got), "want %s, got %s", want, got.String())
}

func newVenue(t *testing.T) *venuetest.Venue {
	v := venuetest.New(t)
	v.JSON(pathPairSettings, pairSettingsJSON)
	return v
}

func newTestExchange(t *testing.T, venue *venuetest.Venue) *Exchange {
	t.Helper()
	cfg := core.DefaultConfig(Name).
		WithBaseURL(venue.URL()).
		WithCredentials(&core.Credentials{APIKey: "K-test", SecretKey: "S-test"})
	ex, err := New(cfg,
		WithLogger(zerolog.Nop()),
		WithThrottleOptions(throttle.WithClock(time.Now, func(time.Duration) {})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })
	return ex
}

func TestNew(t *testing.T) {
	ex, err := New(core.DefaultConfig(Name))
	require.NoError(t, err)
	defer ex.Close()

	assert.Equal(t, "exmo", ex.Name())
	assert.ElementsMatch(t, []core.Operation{
		core.OpFetchMarkets, core.OpFetchTicker, core.OpFetchTickers, core.OpFetchBalance,
		core.OpFetchOpenOrders, core.OpFetchMyTrades,
	}, exchange.Capabilities(ex))
	assert.Equal(t, throttle.PolicyFixed, ex.Session().Throttle().Config().Policy)
	assert.Equal(t, 333*time.Millisecond, ex.Session().Throttle().Config().Interval)
}

func TestFetchMarkets(t *testing.T) {
	ex := newTestExchange(t, newVenue(t))

	markets, err := ex.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 2)

	btc := markets[0]
	assert.Equal(t, "BTC_USD", btc.ID)
	assert.Equal(t, "BTC/USD", btc.Symbol())
	assert.Equal(t, "0.001", btc.AmountMin.String())
	assert.Equal(t, "100", btc.AmountMax.String())
	assert.Equal(t, "1", btc.CostMin.String())
	assert.Equal(t, 2, btc.PricePrecision)
	assert.Equal(t, 8, btc.AmountPrecision)
	assertDecimal(t, "0.002", btc.FeeMaker)
	assertDecimal(t, "0.003", btc.FeeTaker)
	assert.Equal(t, "https://exmo.com/en/trade/BTC_USD", btc.URL)

	eth := markets[1]
	assert.Equal(t, "ETH/BTC", eth.Symbol())
	assert.True(t, core.IsUnbounded(eth.AmountMax))
	assert.True(t, core.IsUnbounded(eth.CostMax))
	assert.Equal(t, 8, eth.PricePrecision)
	assertDecimal(t, "0.004", eth.FeeTaker)
}

func TestFetchTicker(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathTicker, tickerJSON)
	ex := newTestExchange(t, venue)

	tk, err := ex.FetchTicker(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", tk.Symbol)
	assert.Equal(t, int64(1700000000000), tk.Timestamp)
	assert.Equal(t, "29000.1", tk.Bid.String())
	assert.Equal(t, "29001.5", tk.Ask.String())
	assert.Equal(t, "29000.9", tk.Last.String())
	assert.Equal(t, "28750.2", tk.Average.String())
	assert.Equal(t, "362511.25", tk.QuoteVolume.String())

	_, err = ex.FetchTicker(context.Background(), "XYZ/USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownSymbol)
}

func TestFetchTickers_SkipsUnknownPairs(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathTicker, tickerJSON)
	ex := newTestExchange(t, venue)

	tickers, err := ex.FetchTickers(context.Background())
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.Equal(t, "BTC/USD", tickers[0].Symbol)
}

func TestFetchBalance(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathUserInfo, `{"uid":1,"server_date":1700000000,
		"balances":{"BTC":"0.5","USD":"100"},"reserved":{"BTC":"0.25","USD":"0"}}`)
	ex := newTestExchange(t, venue)

	balances, err := ex.FetchBalance(context.Background())
	require.NoError(t, err)
	btc, usd := balances["BTC"], balances["USD"]
	btcUsed := btc.Used()
	assert.Equal(t, "0.75", btc.Total.String())
	assert.Equal(t, "0.25", btcUsed.String())
	assert.Equal(t, "100", usd.Free.String())

	req, ok := venue.Last(pathUserInfo)
	require.True(t, ok)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "K-test", req.Header.Get("Key"))
	assert.Len(t, req.Header.Get("Sign"), 128)
	assert.Contains(t, req.Body, "nonce=")
	assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
}

func TestFetchBalance_ErrorEnvelope(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathUserInfo, `{"result":false,"error":"Error 40017: Wrong api key"}`)
	ex := newTestExchange(t, venue)

	_, err := ex.FetchBalance(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsAuthenticationError(err))

	var exErr *core.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "40017", exErr.Code)
}

func TestFetchBalance_NoCredentials(t *testing.T) {
	venue := newVenue(t)
	ex, err := New(core.DefaultConfig(Name).WithBaseURL(venue.URL()))
	require.NoError(t, err)
	defer ex.Close()

	_, err = ex.FetchBalance(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsAuthenticationError(err))
	assert.Zero(t, venue.Count(pathUserInfo))
}

func TestFetchOpenOrders(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathUserOpenOrders, `{
		"BTC_USD":[{"order_id":"14","created":"1700000000","type":"buy","pair":"BTC_USD","quantity":"0.5","price":"20000","amount":"10000"}],
		"ETH_BTC":[{"order_id":"15","created":"1700000100","type":"sell","pair":"ETH_BTC","quantity":"1","price":"0.05","amount":"0.05"}]}`)
	ex := newTestExchange(t, venue)

	orders, err := ex.FetchOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	o := orders[0]
	assert.Equal(t, "14", o.ID)
	assert.Equal(t, "BTC/USD", o.Symbol)
	assert.Equal(t, core.SideBuy, o.Side)
	assert.Equal(t, core.StatusOpen, o.Status)
	assert.Equal(t, core.TypeLimit, o.Type)
	assert.Equal(t, int64(1700000000000), o.Timestamp)
	assert.Equal(t, "10000", o.Cost.String())
	assert.True(t, o.Consistent())

	filtered, err := ex.FetchOpenOrders(context.Background(), exchange.WithSymbols("ETH/BTC"))
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, core.SideSell, filtered[0].Side)
}

func TestFetchMyTrades(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathUserTrades, `{"BTC_USD":[
		{"trade_id":3,"date":1700000000,"type":"buy","pair":"BTC_USD","order_id":7,"quantity":"0.1","price":"20000","amount":"2000",
		 "exec_type":"maker","commission_amount":"8","commission_currency":"","commission_percent":"0.4"},
		{"trade_id":4,"date":1600000000,"type":"sell","pair":"BTC_USD","order_id":8,"quantity":"0.1","price":"20000","amount":"2000",
		 "exec_type":"taker","commission_amount":"8","commission_currency":"USD","commission_percent":"0.4"}]}`)
	ex := newTestExchange(t, venue)

	trades, err := ex.FetchMyTrades(context.Background(),
		exchange.WithSymbols("BTC/USD"),
		exchange.WithSince(time.Unix(1650000000, 0)),
		exchange.WithLimit(50),
	)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, "3", tr.ID)
	assert.Equal(t, "7", tr.OrderID)
	assert.Equal(t, core.Maker, tr.TakerOrMaker)
	assert.Equal(t, "USD", tr.FeeCurrency)
	assertDecimal(t, "0.004", tr.FeeRate)
	assertDecimal(t, "2000", tr.Cost())

	req, ok := venue.Last(pathUserTrades)
	require.True(t, ok)
	assert.Contains(t, req.Body, "pair=BTC_USD")
	assert.Contains(t, req.Body, "limit=50")
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want core.ErrorType
		isNil bool
	}{
		{"data", `{"BTC_USD":{"min_quantity":"1"}}`, 0, true},
		{"result true", `{"result":true,"error":""}`, 0, true},
		{"array", `[]`, 0, true},
		{"nonce", `{"result":false,"error":"Error 40016: Wrong nonce"}`, core.ErrorTypeAuthentication, false},
		{"funds", `{"result":false,"error":"Error 50052: Insufficient funds"}`, core.ErrorTypeInsufficientFunds, false},
		{"funds by message", `{"result":false,"error":"insufficient balance"}`, core.ErrorTypeInsufficientFunds, false},
		{"other", `{"result":false,"error":"Error 99999: Something"}`, core.ErrorTypeExchange, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(&core.Response{StatusCode: 200, Text: tt.body})
			if tt.isNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Type)
		})
	}
}
