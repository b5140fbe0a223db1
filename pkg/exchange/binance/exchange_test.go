package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tukar/internal/keyring"
	"tukar/pkg/core"
	"tukar/pkg/exchange"
)

const exchangeInfoJSON = `{"timezone":"UTC","symbols":[
{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","baseAssetPrecision":8,"quotePrecision":8,"isMarginTradingAllowed":true,
 "filters":[
  {"filterType":"PRICE_FILTER","minPrice":"0.01000000","maxPrice":"1000000.00000000","tickSize":"0.01000000"},
  {"filterType":"LOT_SIZE","minQty":"0.00001000","maxQty":"9000.00000000","stepSize":"0.00001000"},
  {"filterType":"NOTIONAL","minNotional":"5.00000000","applyMinToMarket":true,"maxNotional":"0"}]},
{"symbol":"YOYOBTC","status":"BREAK","baseAsset":"YOYO","quoteAsset":"BTC","baseAssetPrecision":8,"quotePrecision":8,"isMarginTradingAllowed":false,"filters":[]}
]}`

const tickerJSON = `{"symbol":"BTCUSDT","priceChange":"-94.99999800","priceChangePercent":"-95.960","weightedAvgPrice":"0.29628482",
"prevClosePrice":"0.10002000","lastPrice":"4.00000200","lastQty":"200.00000000","bidPrice":"4.00000000","bidQty":"100.00000000",
"askPrice":"4.00000200","askQty":"100.00000000","openPrice":"99.00000000","highPrice":"100.00000000","lowPrice":"0.10000000",
"volume":"8913.30000000","quoteVolume":"15.30000000","openTime":1499783499040,"closeTime":1499869899040,"count":76}`

type mockVenue struct {
	mu       sync.Mutex
	hits     map[string]int
	requests []*http.Request
	handlers map[string]http.HandlerFunc
}

func newMockVenue() *mockVenue {
	v := &mockVenue{hits: map[string]int{}, handlers: map[string]http.HandlerFunc{}}
	v.handle(pathExchangeInfo, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(exchangeInfoJSON))
	})
	v.handle(pathTime, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"serverTime":1700000000000}`))
	})
	return v
}

func (v *mockVenue) handle(path string, h http.HandlerFunc) {
	v.handlers[path] = h
}

func (v *mockVenue) count(path string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hits[path]
}

func (v *mockVenue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	v.hits[r.URL.Path]++
	v.requests = append(v.requests, r)
	h, ok := v.handlers[r.URL.Path]
	v.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h(w, r)
}

func assertDecimal(t *testing.T, want string, got apd.Decimal) {
	t.Helper()
	expected := core.MustDecimal(want)
	assert.Zero(t, expected.Cmp(&got), "want %s, got %s", want, got.String())
}

func newTestExchange(t *testing.T, venue *mockVenue, opts ...Option) *Exchange {
	t.Helper()
	srv := httptest.NewServer(venue)
	t.Cleanup(srv.Close)

	cfg := core.DefaultConfig(Name).
		WithBaseURL(srv.URL).
		WithCredentials(&core.Credentials{APIKey: "test-key", SecretKey: "test-secret"})
	ex, err := New(cfg, append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })
	return ex
}

func TestNew(t *testing.T) {
	ex, err := New(core.DefaultConfig(Name))
	require.NoError(t, err)
	defer ex.Close()

	assert.Equal(t, "binance", ex.Name())
	assert.ElementsMatch(t, []core.Operation{
		core.OpFetchMarkets, core.OpFetchTicker, core.OpFetchTickers, core.OpFetchBalance,
		core.OpFetchOpenOrders, core.OpFetchOrders, core.OpFetchMyTrades, core.OpCreateOrder,
		core.OpWatchTicker,
	}, exchange.Capabilities(ex))

	_, err = New(nil)
	assert.Error(t, err)
}

func TestWithKeyRing(t *testing.T) {
	kr := keyring.New([]*keyring.Key{
		{ID: "a", Credentials: core.Credentials{APIKey: "key-a", SecretKey: "secret-a"}},
	}, keyring.RotationOnRateLimit, zerolog.Nop())

	venue := newMockVenue()
	venue.handle(pathAccount, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-a", r.Header.Get("X-MBX-APIKEY"))
		_, _ = w.Write([]byte(`{"balances":[]}`))
	})
	ex := newTestExchange(t, venue, WithKeyRing(kr))

	_, err := ex.FetchBalance(context.Background())
	require.NoError(t, err)
}

func TestFetchMarkets(t *testing.T) {
	ex := newTestExchange(t, newMockVenue())

	markets, err := ex.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 2)

	btc := markets[0]
	assert.Equal(t, "BTC/USDT", btc.Symbol())
	assert.True(t, btc.Active)
	assert.True(t, btc.Margin)
	assert.Equal(t, 2, btc.PricePrecision)
	assert.Equal(t, 5, btc.AmountPrecision)
	assert.Equal(t, "0.00001000", btc.AmountMin.String())
	assert.Equal(t, "9000.00000000", btc.AmountMax.String())
	assert.Equal(t, "5.00000000", btc.CostMin.String())
	assert.True(t, core.IsUnbounded(btc.CostMax))
	assert.Equal(t, "https://www.binance.com/en/trade/BTC_USDT", btc.URL)

	yoyo := markets[1]
	assert.Equal(t, "YOYOW/BTC", yoyo.Symbol())
	assert.Equal(t, "YOYO", yoyo.BaseID)
	assert.False(t, yoyo.Active)
	assert.True(t, core.IsUnbounded(yoyo.PriceMax))
}

func TestFetchTicker_ConcurrentCallersLoadMarketsOnce(t *testing.T) {
	venue := newMockVenue()
	venue.handle(pathTicker24h, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(tickerJSON))
	})
	ex := newTestExchange(t, venue)

	var wg sync.WaitGroup
	tickers := make([]*core.Ticker, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Go(func() {
			tickers[i], errs[i] = ex.FetchTicker(context.Background(), "BTC/USDT")
		})
	}
	wg.Wait()

	for i := range 2 {
		require.NoError(t, errs[i])
		assert.Equal(t, "BTC/USDT", tickers[i].Symbol)
	}
	assert.Equal(t, 1, venue.count(pathExchangeInfo))
	assert.Equal(t, 2, venue.count(pathTicker24h))

	tk := tickers[0]
	assert.Equal(t, int64(1499869899040), tk.Timestamp)
	assert.Equal(t, "4.00000200", tk.Last.String())
	assert.Equal(t, "15.30000000", tk.QuoteVolume.String())
	assert.Equal(t, "0.10002000", tk.PreviousClose.String())
}

func TestFetchTicker_UnknownSymbol(t *testing.T) {
	venue := newMockVenue()
	ex := newTestExchange(t, venue)

	_, err := ex.FetchTicker(context.Background(), "DOGE/EUR")
	require.Error(t, err)
	assert.True(t, core.IsErrorType(err, core.ErrorTypeBadRequest))
	assert.ErrorIs(t, err, core.ErrUnknownSymbol)
	assert.Zero(t, venue.count(pathTicker24h))
}

func TestFetchTickers(t *testing.T) {
	venue := newMockVenue()
	venue.handle(pathTicker24h, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("symbol"))
		other := strings.Replace(tickerJSON, `"BTCUSDT"`, `"ZZZUSDT"`, 1)
		_, _ = w.Write([]byte("[" + tickerJSON + "," + other + "]"))
	})
	ex := newTestExchange(t, venue)

	tickers, err := ex.FetchTickers(context.Background())
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.Equal(t, "BTC/USDT", tickers[0].Symbol)

	tickers, err = ex.FetchTickers(context.Background(), "YOYOW/BTC")
	require.NoError(t, err)
	assert.Empty(t, tickers)
}

func TestFetchBalance(t *testing.T) {
	venue := newMockVenue()
	venue.handle(pathAccount, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		assert.NotEmpty(t, q.Get("signature"))
		assert.Equal(t, "5000", q.Get("recvWindow"))
		assert.NotEmpty(t, q.Get("timestamp"))
		_, _ = w.Write([]byte(`{"balances":[
			{"asset":"BTC","free":"0.50000000","locked":"0.25000000"},
			{"asset":"YOYO","free":"10.00000000","locked":"0.00000000"}]}`))
	})
	ex := newTestExchange(t, venue)

	balances, err := ex.FetchBalance(context.Background())
	require.NoError(t, err)
	btc := balances["BTC"]
	btcUsed := btc.Used()
	assert.Equal(t, "0.75000000", btc.Total.String())
	assert.Equal(t, "0.25000000", btcUsed.String())
	assert.Contains(t, balances, "YOYOW")
	assert.Equal(t, 1, venue.count(pathTime))
}

func TestFetchBalance_NoCredentials(t *testing.T) {
	venue := newMockVenue()
	srv := httptest.NewServer(venue)
	defer srv.Close()

	ex, err := New(core.DefaultConfig(Name).WithBaseURL(srv.URL))
	require.NoError(t, err)
	defer ex.Close()

	_, err = ex.FetchBalance(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsAuthenticationError(err))
	assert.Zero(t, venue.count(pathAccount))
}

const ordersJSON = `[
{"symbol":"BTCUSDT","orderId":28,"clientOrderId":"abc","price":"100.00","origQty":"2.00","executedQty":"0.50",
 "cummulativeQuoteQty":"50.00","status":"PARTIALLY_FILLED","type":"LIMIT","side":"BUY","time":1700000000000,"updateTime":1700000001000},
{"symbol":"ZZZUSDT","orderId":29,"clientOrderId":"def","price":"1","origQty":"1","executedQty":"0",
 "cummulativeQuoteQty":"0","status":"NEW","type":"LIMIT","side":"SELL","time":1700000000000,"updateTime":1700000000000}
]`

func TestFetchOpenOrders(t *testing.T) {
	venue := newMockVenue()
	venue.handle(pathOpenOrders, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ordersJSON))
	})
	ex := newTestExchange(t, venue)

	orders, err := ex.FetchOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, "28", o.ID)
	assert.Equal(t, "abc", o.ClientID)
	assert.Equal(t, core.StatusOpen, o.Status)
	assert.Equal(t, core.TypeLimit, o.Type)
	assert.Equal(t, core.SideBuy, o.Side)
	assert.Equal(t, "1.50", o.Remaining.String())
	assertDecimal(t, "100", o.Average)
	assert.Equal(t, int64(1700000001000), o.LastTradeTimestamp)
	assert.True(t, o.Consistent())
}

func TestFetchOrders_RequiresSymbol(t *testing.T) {
	ex := newTestExchange(t, newMockVenue())

	_, err := ex.FetchOrders(context.Background())
	assert.True(t, core.IsErrorType(err, core.ErrorTypeArgumentsRequired))
	_, err = ex.FetchMyTrades(context.Background())
	assert.True(t, core.IsErrorType(err, core.ErrorTypeArgumentsRequired))
}

func TestFetchOrders(t *testing.T) {
	venue := newMockVenue()
	venue.handle(pathAllOrders, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "1700000000000", q.Get("startTime"))
		assert.Equal(t, "10", q.Get("limit"))
		_, _ = w.Write([]byte(ordersJSON))
	})
	ex := newTestExchange(t, venue)

	orders, err := ex.FetchOrders(context.Background(),
		exchange.WithSymbols("BTC/USDT"),
		exchange.WithSince(time.UnixMilli(1700000000000)),
		exchange.WithLimit(10))
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestFetchMyTrades(t *testing.T) {
	venue := newMockVenue()
	venue.handle(pathMyTrades, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
		{"symbol":"BTCUSDT","id":1,"orderId":28,"price":"100","qty":"0.5","quoteQty":"50","commission":"0.05",
		 "commissionAsset":"USDT","time":1700000000500,"isBuyer":true,"isMaker":false},
		{"symbol":"BTCUSDT","id":2,"orderId":30,"price":"100","qty":"2","quoteQty":"200","commission":"0.002",
		 "commissionAsset":"BTC","time":1700000000600,"isBuyer":false,"isMaker":true}]`))
	})
	ex := newTestExchange(t, venue)

	trades, err := ex.FetchMyTrades(context.Background(), exchange.WithSymbols("BTC/USDT"))
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, core.SideBuy, trades[0].Side)
	assert.Equal(t, core.Taker, trades[0].TakerOrMaker)
	assert.Equal(t, "USDT", trades[0].FeeCurrency)
	assertDecimal(t, "0.001", trades[0].FeeRate)

	assert.Equal(t, core.SideSell, trades[1].Side)
	assert.Equal(t, core.Maker, trades[1].TakerOrMaker)
	assertDecimal(t, "0.001", trades[1].FeeRate)
}

func TestCreateOrder(t *testing.T) {
	venue := newMockVenue()
	venue.handle(pathOrder, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		q := r.URL.Query()
		if err := r.ParseForm(); err == nil && len(r.PostForm) > 0 {
			q = r.PostForm
		}
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "GTC", q.Get("timeInForce"))
		assert.Equal(t, "0.001", q.Get("quantity"))
		assert.Equal(t, "30000", q.Get("price"))
		assert.Len(t, q.Get("newClientOrderId"), 36)
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":12345,"clientOrderId":"x"}`))
	})
	ex := newTestExchange(t, venue)

	id, err := ex.CreateOrder(context.Background(), &exchange.OrderRequest{
		Symbol: "BTC/USDT",
		Side:   core.SideBuy,
		Type:   core.TypeLimit,
		Amount: core.MustDecimal("0.001"),
		Price:  core.MustDecimal("30000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "12345", id)
}

func TestCreateOrder_Errors(t *testing.T) {
	venue := newMockVenue()
	venue.handle(pathOrder, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	})
	ex := newTestExchange(t, venue)

	tests := []struct {
		name string
		req  *exchange.OrderRequest
		want core.ErrorType
	}{
		{
			name: "below lot size",
			req:  &exchange.OrderRequest{Symbol: "BTC/USDT", Type: core.TypeMarket, Amount: core.MustDecimal("0.000001")},
			want: core.ErrorTypeInvalidOrder,
		},
		{
			name: "below notional",
			req:  &exchange.OrderRequest{Symbol: "BTC/USDT", Type: core.TypeLimit, Amount: core.MustDecimal("0.001"), Price: core.MustDecimal("1")},
			want: core.ErrorTypeInvalidOrder,
		},
		{
			name: "venue rejects",
			req:  &exchange.OrderRequest{Symbol: "BTC/USDT", Type: core.TypeMarket, Amount: core.MustDecimal("1")},
			want: core.ErrorTypeInsufficientFunds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ex.CreateOrder(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, core.TypeOf(err))
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   core.ErrorType
		isNil  bool
	}{
		{"success ignored", 200, `{"code":-2010,"msg":"x"}`, core.ErrorTypeUnknown, true},
		{"insufficient funds", 400, `{"code":-2010,"msg":"x"}`, core.ErrorTypeInsufficientFunds, false},
		{"unknown order", 400, `{"code":-2013,"msg":"Order does not exist."}`, core.ErrorTypeOrderNotFound, false},
		{"timestamp", 400, `{"code":-1021,"msg":"Timestamp outside recvWindow"}`, core.ErrorTypeAuthentication, false},
		{"too many orders", 429, `{"code":-1015,"msg":"Too many new orders"}`, core.ErrorTypeRateLimit, false},
		{"bad symbol", 400, `{"code":-1121,"msg":"Invalid symbol."}`, core.ErrorTypeBadRequest, false},
		{"unmapped code", 400, `{"code":-9999,"msg":"?"}`, core.ErrorTypeUnknown, true},
		{"not json", 502, `<html>bad gateway</html>`, core.ErrorTypeUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(&core.Response{StatusCode: tt.status, Text: tt.body})
			if tt.isNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, Name, got.Exchange)
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	tests := map[string]core.OrderStatus{
		"NEW":              core.StatusOpen,
		"PARTIALLY_FILLED": core.StatusOpen,
		"PENDING_CANCEL":   core.StatusOpen,
		"FILLED":           core.StatusClosed,
		"CANCELED":         core.StatusCanceled,
		"REJECTED":         core.StatusCanceled,
		"EXPIRED":          core.StatusCanceled,
		"SOMETHING_NEW":    core.StatusOpen,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, parseOrderStatus(in))
		})
	}
}

func TestParseOrderType(t *testing.T) {
	assert.Equal(t, core.TypeLimit, parseOrderType("LIMIT"))
	assert.Equal(t, core.TypeLimit, parseOrderType("LIMIT_MAKER"))
	assert.Equal(t, core.TypeMarket, parseOrderType("MARKET"))
	assert.Equal(t, core.TypeOther, parseOrderType("STOP_LOSS"))
}

type tickerPusher struct {
	gws.BuiltinEventHandler
	frames []string
}

func (p *tickerPusher) OnOpen(socket *gws.Conn) {
	for _, f := range p.frames {
		_ = socket.WriteString(f)
	}
}

func TestWatchTicker(t *testing.T) {
	var path atomic.Value
	upgrader := gws.NewUpgrader(&tickerPusher{frames: []string{
		`not json`,
		`{"e":"24hrTicker","E":1700000000100,"s":"BTCUSDT","p":"1.0","P":"0.1","w":"100","x":"99","c":"100.5","Q":"1",
		  "b":"100.4","B":"2","a":"100.6","A":"3","o":"99.5","h":"101","l":"98","v":"1000","q":"100000","O":0,"C":1700000000000}`,
	}}, &gws.ServerOption{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		socket, err := upgrader.Upgrade(w, r)
		if err != nil {
			return
		}
		go socket.ReadLoop()
	}))
	defer srv.Close()

	ex := newTestExchange(t, newMockVenue(), WithStreamURL("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws"))

	ctx, cancel := context.WithCancel(context.Background())
	tickers, errs := ex.WatchTicker(ctx, "BTC/USDT")

	select {
	case tk := <-tickers:
		require.NotNil(t, tk)
		assert.Equal(t, "BTC/USDT", tk.Symbol)
		assert.Equal(t, "100.5", tk.Last.String())
		assert.Equal(t, "100.4", tk.Bid.String())
		assert.Equal(t, int64(1700000000000), tk.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("no ticker received")
	}
	assert.Equal(t, "/ws/btcusdt@ticker", path.Load())

	err := <-errs
	assert.True(t, core.IsErrorType(err, core.ErrorTypeBadResponse))

	cancel()
	for range tickers {
	}
}

func TestWatchTicker_UnknownSymbol(t *testing.T) {
	ex := newTestExchange(t, newMockVenue())

	tickers, errs := ex.WatchTicker(context.Background(), "NOPE/USDT")
	_, open := <-tickers
	assert.False(t, open)
	assert.ErrorIs(t, <-errs, core.ErrUnknownSymbol)
}
