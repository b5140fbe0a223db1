package cex

import (
	"context"
	"net/url"
	"regexp"
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

const profileJSON = `{"e":"currency_profile","ok":"ok","data":{
"symbols":[
 {"code":"BTC","contract":true,"commodity":false,"fiat":false,"precision":8,"scale":0,"minimumCurrencyAmount":"0.00000001"},
 {"code":"ETH","precision":6,"scale":0},
 {"code":"USD","precision":2,"scale":0,"fiat":true},
 {"code":"XRP","precision":6,"scale":2}],
"pairs":[{"symbol1":"BTC","symbol2":"USD","pricePrecision":1,"priceScale":"/100000","minLotSize":0.002,"minLotSizeS2":20}]}}`

const limitsJSON = `{"e":"currency_limits","ok":"ok","data":{"pairs":[
 {"symbol1":"BTC","symbol2":"USD","minLotSize":0.002,"minLotSizeS2":20,"maxLotSize":30,"minPrice":"1500","maxPrice":"35000"},
 {"symbol1":"XRP","symbol2":"USD","minLotSize":10,"minLotSizeS2":20,"maxLotSize":null,"minPrice":"0.1","maxPrice":"5"},
 {"symbol1":"ETH","symbol2":"BTC","minLotSize":0.1,"minLotSizeS2":0.001,"maxLotSize":1000,"minPrice":"0.01","maxPrice":"0.5"},
 {"symbol1":"DOGE","symbol2":"USD","minLotSize":1,"minLotSizeS2":1,"maxLotSize":null,"minPrice":"0.001","maxPrice":"1"}]}}`

const archivedJSON = `[
{"id":"5001","type":"buy","time":"2023-11-14T22:13:20.000Z","status":"d","symbol1":"BTC","symbol2":"USD",
 "amount":"0.01000000","price":"30000","remains":"0.00000000","ta:USD":"200.00","tta:USD":"100.00","fa:USD":"0.32","tfa:USD":"0.25"},
{"id":"5002","type":"sell","time":"2023-11-14T22:15:00.000Z","status":"cd","symbol1":"BTC","symbol2":"USD",
 "amount":"0.02000000","price":"31000","remains":"0.01000000","ta:USD":"310.00","fa:USD":"0.496"},
{"id":"5003","type":"buy","time":"2023-11-14T22:16:00.000Z","status":"c","symbol1":"BTC","symbol2":"USD",
 "amount":"0.01000000","price":"25000","remains":"0.01000000"},
{"id":"5004","type":"buy","time":"2023-11-14T22:17:00.000Z","status":"d","symbol1":"LTC","symbol2":"USD",
 "amount":"1","price":"70","remains":"0","ta:USD":"70"}]`

var upperHex = regexp.MustCompile(`^[0-9A-F]{64}$`)

func assertDecimal(t *testing.T, want string, got apd.Decimal) {
	t.Helper()
	expected := core.MustDecimal(want)
	assert.Zero(t, expected.Cmp(&got), "want %s, got %s", want, got.String())
}

func newVenue(t *testing.T) *venuetest.Venue {
	v := venuetest.New(t)
	v.JSON(pathCurrencyProfile, profileJSON)
	v.JSON(pathCurrencyLimits, limitsJSON)
	return v
}

func newTestExchange(t *testing.T, venue *venuetest.Venue) *Exchange {
	t.Helper()
	cfg := core.DefaultConfig(Name).
		WithBaseURL(venue.URL()).
		WithCredentials(&core.Credentials{APIKey: "cex-key", SecretKey: "cex-secret", UserID: "up123456"})
	ex, err := New(cfg,
		WithLogger(zerolog.Nop()),
		WithThrottleOptions(throttle.WithClock(time.Now, func(time.Duration) {})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })
	return ex
}

func form(t *testing.T, body string) url.Values {
	t.Helper()
	values, err := url.ParseQuery(body)
	require.NoError(t, err)
	return values
}

func TestNew(t *testing.T) {
	ex, err := New(core.DefaultConfig(Name))
	require.NoError(t, err)
	defer ex.Close()

	assert.Equal(t, "cex", ex.Name())
	assert.ElementsMatch(t, []core.Operation{
		core.OpFetchMarkets, core.OpFetchTicker, core.OpFetchTickers, core.OpFetchBalance,
		core.OpFetchOpenOrders, core.OpFetchOrders, core.OpFetchMyTrades,
	}, exchange.Capabilities(ex))
	assert.Equal(t, time.Second, ex.Session().Throttle().Config().Interval)
}

func TestFetchMarkets(t *testing.T) {
	ex := newTestExchange(t, newVenue(t))

	markets, err := ex.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 3)

	btc := markets[0]
	assert.Equal(t, "BTC/USD", btc.ID)
	assert.Equal(t, "BTC/USD", btc.Symbol())
	assert.Equal(t, 8, btc.AmountPrecision)
	assert.Equal(t, 1, btc.PricePrecision)
	assertDecimal(t, "0.002", btc.AmountMin)
	assertDecimal(t, "30", btc.AmountMax)
	assertDecimal(t, "1500", btc.PriceMin)
	assertDecimal(t, "35000", btc.PriceMax)
	assertDecimal(t, "20", btc.CostMin)
	assertDecimal(t, "0.0016", btc.FeeMaker)
	assertDecimal(t, "0.0025", btc.FeeTaker)
	assert.Equal(t, "https://cex.io/trade/BTC-USD", btc.URL)

	xrp := markets[1]
	assert.Equal(t, 4, xrp.AmountPrecision)
	assert.Equal(t, 2, xrp.PricePrecision, "falls back to the quote precision")
	assert.True(t, core.IsUnbounded(xrp.AmountMax))

	assert.Equal(t, "ETH/BTC", markets[2].Symbol())
}

func TestFetchTickers(t *testing.T) {
	venue := newVenue(t)
	tickersJSON := `{"e":"tickers","ok":"ok","data":[
		{"timestamp":"1583924608","pair":"BTC:USD","low":"7745.3","high":"8167.9","last":"7854.1","volume":"214.93431824","bid":7833.9,"ask":7853.8},
		{"timestamp":"1583924608","pair":"XRP:USD","low":"0.2","high":"0.3","last":"0.25","volume":"1000","bid":0.24,"ask":0.26},
		{"timestamp":"1583924608","pair":"LTC:USD","low":"1","high":"1","last":"1","volume":"1","bid":1,"ask":1}]}`
	venue.JSON(pathTickers+"BTC/USD", tickersJSON)
	venue.JSON(pathTickers+"USD", tickersJSON)
	ex := newTestExchange(t, venue)

	all, err := ex.FetchTickers(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, venue.Count(pathTickers+"BTC/USD"))

	tk, err := ex.FetchTicker(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, 1, venue.Count(pathTickers+"USD"))
	assert.Equal(t, "BTC/USD", tk.Symbol)
	assert.Equal(t, int64(1583924608000), tk.Timestamp)
	assertDecimal(t, "7833.9", tk.Bid)
	assertDecimal(t, "7853.8", tk.Ask)
	assertDecimal(t, "7854.1", tk.Close)
	assertDecimal(t, "214.93431824", tk.BaseVolume)

	_, err = ex.FetchTicker(context.Background(), "DOGE/USD")
	assert.ErrorIs(t, err, core.ErrUnknownSymbol)
}

func TestFetchBalance(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathBalance, `{"timestamp":"1513177918","username":"up123456",
		"BTC":{"available":"1.38000000","orders":"0.12000000"},
		"USD":{"available":"100.50","orders":"0.00"}}`)
	ex := newTestExchange(t, venue)

	balances, err := ex.FetchBalance(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assertDecimal(t, "1.38", balances["BTC"].Free)
	assertDecimal(t, "1.5", balances["BTC"].Total)
	assertDecimal(t, "0.12", balances["BTC"].Used())

	req, ok := venue.Last(pathBalance)
	require.True(t, ok)
	values := form(t, req.Body)
	assert.Equal(t, "cex-key", values.Get("key"))
	assert.NotEmpty(t, values.Get("nonce"))
	assert.Regexp(t, upperHex, values.Get("signature"))
	assert.Contains(t, req.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

func TestFetchBalance_RequiresUserID(t *testing.T) {
	venue := newVenue(t)
	cfg := core.DefaultConfig(Name).
		WithBaseURL(venue.URL()).
		WithCredentials(&core.Credentials{APIKey: "cex-key", SecretKey: "cex-secret"})
	ex, err := New(cfg, WithThrottleOptions(throttle.WithClock(time.Now, func(time.Duration) {})))
	require.NoError(t, err)
	defer ex.Close()

	_, err = ex.FetchBalance(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsAuthenticationError(err))
	assert.Zero(t, venue.Count(pathBalance))
}

func TestFetchBalance_ErrorEnvelope(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathBalance, `{"error":"API key is not activated"}`)
	ex := newTestExchange(t, venue)

	_, err := ex.FetchBalance(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsAuthenticationError(err))
}

func TestFetchOpenOrders(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathOpenOrders, `[
		{"id":"13837040","time":"1460020144872","type":"sell","price":"411.626","amount":"1.00000000","pending":"0.40000000","symbol1":"BTC","symbol2":"USD"},
		{"id":"13837041","time":"1460020100000","type":"buy","price":"0.02","amount":"2","pending":"2","symbol1":"ETH","symbol2":"BTC"},
		{"id":"13837042","time":"1460020100000","type":"buy","price":"1","amount":"2","pending":"2","symbol1":"LTC","symbol2":"USD"}]`)
	ex := newTestExchange(t, venue)

	orders, err := ex.FetchOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "13837041", orders[0].ID, "sorted by time")

	o := orders[1]
	assert.Equal(t, "BTC/USD", o.Symbol)
	assert.Equal(t, core.SideSell, o.Side)
	assert.Equal(t, core.TypeLimit, o.Type)
	assert.Equal(t, core.StatusOpen, o.Status)
	assert.Equal(t, int64(1460020144872), o.Timestamp)
	assertDecimal(t, "0.6", o.Filled)
	assertDecimal(t, "0.4", o.Remaining)
	assertDecimal(t, "246.9756", o.Cost)
	assert.True(t, o.Consistent())

	narrowed, err := ex.FetchOpenOrders(context.Background(), exchange.WithSymbols("ETH/BTC"))
	require.NoError(t, err)
	require.Len(t, narrowed, 1)
	assert.Equal(t, "ETH/BTC", narrowed[0].Symbol)
}

func TestFetchOrders(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathArchivedOrders, archivedJSON)
	ex := newTestExchange(t, venue)

	orders, err := ex.FetchOrders(context.Background(),
		exchange.WithSince(time.Date(2023, 11, 14, 22, 14, 0, 0, time.UTC)),
		exchange.WithLimit(50),
	)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	partial := orders[0]
	assert.Equal(t, "5002", partial.ID)
	assert.Equal(t, core.StatusCanceled, partial.Status)
	assert.Equal(t, core.SideSell, partial.Side)
	assertDecimal(t, "0.01", partial.Filled)
	assertDecimal(t, "310", partial.Cost)
	assertDecimal(t, "31000", partial.Average)
	assertDecimal(t, "0.496", partial.FeeCost)
	assert.Equal(t, "USD", partial.FeeCurrency)

	assert.Equal(t, core.StatusCanceled, orders[1].Status)
	assert.True(t, orders[1].Filled.IsZero())

	req, ok := venue.Last(pathArchivedOrders)
	require.True(t, ok)
	values := form(t, req.Body)
	assert.Equal(t, "1700000040", values.Get("dateFrom"))
	assert.Equal(t, "50", values.Get("limit"))
}

func TestFetchOrders_PerSymbol(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathArchivedOrders+"BTC/USD", archivedJSON)
	ex := newTestExchange(t, venue)

	orders, err := ex.FetchOrders(context.Background(), exchange.WithSymbols("BTC/USD"))
	require.NoError(t, err)
	assert.Len(t, orders, 3)
	assert.Equal(t, 1, venue.Count(pathArchivedOrders+"BTC/USD"))
	assert.Zero(t, venue.Count(pathArchivedOrders))
}

func TestFetchMyTrades(t *testing.T) {
	venue := newVenue(t)
	venue.JSON(pathArchivedOrders, archivedJSON)
	ex := newTestExchange(t, venue)

	trades, err := ex.FetchMyTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 2)

	mixed := trades[0]
	assert.Equal(t, "5001", mixed.ID)
	assert.Equal(t, "5001", mixed.OrderID)
	assert.Equal(t, int64(1700000000000), mixed.Timestamp)
	assert.Equal(t, core.SideBuy, mixed.Side)
	assert.Empty(t, mixed.TakerOrMaker)
	assertDecimal(t, "0.01", mixed.Amount)
	assertDecimal(t, "30000", mixed.Price)
	assertDecimal(t, "0.57", mixed.FeeCost)
	assertDecimal(t, "0.0019", mixed.FeeRate)

	maker := trades[1]
	assert.Equal(t, core.Maker, maker.TakerOrMaker)
	assertDecimal(t, "0.0016", maker.FeeRate)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  core.ErrorType
		isNil bool
	}{
		{"array", `[]`, 0, true},
		{"balance", `{"BTC":{"available":"1","orders":"0"}}`, 0, true},
		{"empty error", `{"error":""}`, 0, true},
		{"nonce", `{"error":"Nonce must be incremented"}`, core.ErrorTypeAuthentication, false},
		{"permission", `{"error":"Permission denied"}`, core.ErrorTypeAuthentication, false},
		{"rate limit", `{"error":"Rate limit exceeded"}`, core.ErrorTypeRateLimit, false},
		{"funds", `{"error":"Error: Place order error: Insufficient funds."}`, core.ErrorTypeInsufficientFunds, false},
		{"pair", `{"error":"Invalid Symbols Pair"}`, core.ErrorTypeBadRequest, false},
		{"other", `{"error":"Something went wrong"}`, core.ErrorTypeExchange, false},
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

func TestParseOrderStatus(t *testing.T) {
	tests := map[string]core.OrderStatus{
		"d":  core.StatusClosed,
		"c":  core.StatusCanceled,
		"cd": core.StatusCanceled,
		"a":  core.StatusOpen,
		"":   core.StatusOpen,
	}
	for status, want := range tests {
		t.Run(status, func(t *testing.T) {
			assert.Equal(t, want, parseOrderStatus(status))
		})
	}
}
