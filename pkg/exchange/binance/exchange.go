package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"tukar/internal/keyring"
	"tukar/internal/throttle"
	"tukar/pkg/auth"
	"tukar/pkg/core"
	"tukar/pkg/exchange"
	"tukar/pkg/market"
	"tukar/pkg/session"
)

const (
	// Name is the venue identifier used in configs and errors.
	Name = "binance"
	// BaseURL is the production REST host.
	BaseURL = "https://api.binance.com"
	// StreamURL is the production websocket host for raw streams.
	StreamURL = "wss://stream.binance.com:9443/ws"

	usedWeightHeader = "X-MBX-USED-WEIGHT"
	weightThreshold  = 1000
	recvWindow       = 5000
)

var (
	_ exchange.MarketFetcher     = (*Exchange)(nil)
	_ exchange.TickerFetcher     = (*Exchange)(nil)
	_ exchange.TickersFetcher    = (*Exchange)(nil)
	_ exchange.BalanceFetcher    = (*Exchange)(nil)
	_ exchange.OpenOrdersFetcher = (*Exchange)(nil)
	_ exchange.OrdersFetcher     = (*Exchange)(nil)
	_ exchange.MyTradesFetcher   = (*Exchange)(nil)
	_ exchange.OrderCreator      = (*Exchange)(nil)
	_ exchange.TickerStreamer    = (*Exchange)(nil)
	_ exchange.Closer            = (*Exchange)(nil)
)

// Exchange is a Binance spot client. It owns its throttle, market cache and
// server clock; create one per set of credentials.
type Exchange struct {
	session    *session.Session
	markets    *market.Cache
	clock      *auth.SkewClock
	normalizer *Normalizer
	streamURL  string
	logger     zerolog.Logger
}

// Option is a functional option for configuring the Exchange.
type Option func(*Options)

// Options holds configuration options for the Exchange.
type Options struct {
	KeyRing      *keyring.KeyRing
	Logger       zerolog.Logger
	StreamURL    string
	ThrottleOpts []throttle.Option
}

// WithKeyRing returns an option that sets the API key ring for key rotation.
func WithKeyRing(kr *keyring.KeyRing) Option {
	return func(o *Options) {
		o.KeyRing = kr
	}
}

// WithLogger returns an option that sets the logger for the exchange.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithStreamURL points the ticker stream at another websocket host.
func WithStreamURL(url string) Option {
	return func(o *Options) {
		o.StreamURL = url
	}
}

// WithThrottleOptions passes options to the request throttle, for tests.
func WithThrottleOptions(opts ...throttle.Option) Option {
	return func(o *Options) {
		o.ThrottleOpts = opts
	}
}

// New creates a Binance client from config.
func New(config *core.Config, opts ...Option) (*Exchange, error) {
	options := &Options{
		Logger:    zerolog.Nop(),
		StreamURL: StreamURL,
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.Logger.With().Str("exchange", Name).Logger()

	sessOpts := []session.Option{
		session.WithBaseURL(BaseURL),
		session.WithSigner(auth.QuerySigner{KeyHeader: "X-MBX-APIKEY", RecvWindow: recvWindow}),
		session.WithThrottle(throttle.Config{
			Policy:          throttle.PolicyWeighted,
			Interval:        time.Second,
			WeightHeader:    usedWeightHeader,
			WeightThreshold: weightThreshold,
		}, options.ThrottleOpts...),
		session.WithClassifier(classifyError),
		session.WithLogger(logger),
	}
	if options.KeyRing != nil {
		sessOpts = append(sessOpts, session.WithKeyRing(options.KeyRing))
	}
	sess, err := session.New(config, sessOpts...)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	e := &Exchange{
		session:    sess,
		normalizer: NewNormalizer(),
		streamURL:  options.StreamURL,
		logger:     logger,
	}
	e.markets = market.New(Name, config.MarketsTTL, e.loadMarkets, market.WithLogger(logger))
	e.clock = auth.NewSkewClock(e.FetchTime, auth.WithClockLogger(logger))
	sess.SetClock(e.clock.Now)
	return e, nil
}

// Name returns the exchange identifier "binance".
func (e *Exchange) Name() string {
	return Name
}

// Close releases the HTTP client.
func (e *Exchange) Close() error {
	return e.session.Close()
}

// Session exposes the request pipeline, e.g. for throttle inspection.
func (e *Exchange) Session() *session.Session {
	return e.session
}

// FetchTime returns the venue's server time.
func (e *Exchange) FetchTime(ctx context.Context) (time.Time, error) {
	var resp serverTime
	if _, err := e.session.ExecuteJSON(ctx, buildTimeRequest(), &resp); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(resp.ServerTime), nil
}

func (e *Exchange) loadMarkets(ctx context.Context) ([]*core.Market, error) {
	var info exchangeInfo
	if _, err := e.session.ExecuteJSON(ctx, buildExchangeInfoRequest(), &info); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeMarkets(&info), nil
}

// FetchMarkets returns every spot pair, cached per the config's MarketsTTL.
func (e *Exchange) FetchMarkets(ctx context.Context) ([]*core.Market, error) {
	return e.markets.Markets(ctx)
}

// FetchTicker retrieves 24h statistics for one symbol.
func (e *Exchange) FetchTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	m, err := e.markets.Market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var data ticker24h
	if _, err := e.session.ExecuteJSON(ctx, buildTickerRequest(m.ID), &data); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeTicker(&data, m), nil
}

// FetchTickers retrieves all 24h tickers and keeps those for symbols, or
// every known market when symbols is empty.
func (e *Exchange) FetchTickers(ctx context.Context, symbols ...string) ([]*core.Ticker, error) {
	if _, err := e.markets.Markets(ctx); err != nil {
		return nil, err
	}
	var data []ticker24h
	if _, err := e.session.ExecuteJSON(ctx, buildTickerRequest(""), &data); err != nil {
		return nil, err
	}

	filter := exchange.ApplyOptions(exchange.WithSymbols(symbols...))
	tickers := make([]*core.Ticker, 0, len(data))
	for i := range data {
		m, ok, err := e.markets.ByID(ctx, data[i].Symbol)
		if err != nil {
			return nil, err
		}
		if !ok || !filter.Includes(m.Symbol()) {
			continue
		}
		tickers = append(tickers, e.normalizer.NormalizeTicker(&data[i], m))
	}
	return tickers, nil
}

// FetchBalance retrieves free and locked amounts for every asset.
func (e *Exchange) FetchBalance(ctx context.Context) (core.Balances, error) {
	var account accountInfo
	if _, err := e.session.ExecuteJSON(ctx, buildAccountRequest(), &account); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeBalances(&account), nil
}

// FetchOpenOrders retrieves open orders, across all symbols unless
// WithSymbols narrows them.
func (e *Exchange) FetchOpenOrders(ctx context.Context, opts ...exchange.Option) ([]*core.Order, error) {
	options := exchange.ApplyOptions(opts...)
	ids := []string{""}
	if len(options.Symbols) > 0 {
		var err error
		if ids, err = e.marketIDs(ctx, options.Symbols); err != nil {
			return nil, err
		}
	}

	var orders []*core.Order
	for _, id := range ids {
		var data []order
		if _, err := e.session.ExecuteJSON(ctx, buildOpenOrdersRequest(id), &data); err != nil {
			return nil, err
		}
		normalized, err := e.normalizeOrders(ctx, data)
		if err != nil {
			return nil, err
		}
		orders = append(orders, normalized...)
	}
	return orders, nil
}

// FetchOrders retrieves order history. Binance requires WithSymbols.
func (e *Exchange) FetchOrders(ctx context.Context, opts ...exchange.Option) ([]*core.Order, error) {
	options := exchange.ApplyOptions(opts...)
	if len(options.Symbols) == 0 {
		return nil, core.NewArgumentsRequired(Name, "fetchOrders requires at least one symbol")
	}
	ids, err := e.marketIDs(ctx, options.Symbols)
	if err != nil {
		return nil, err
	}

	var orders []*core.Order
	for _, id := range ids {
		var data []order
		if _, err := e.session.ExecuteJSON(ctx, buildHistoryRequest(pathAllOrders, id, options), &data); err != nil {
			return nil, err
		}
		normalized, err := e.normalizeOrders(ctx, data)
		if err != nil {
			return nil, err
		}
		orders = append(orders, normalized...)
	}
	return orders, nil
}

// FetchMyTrades retrieves the account's fills. Binance requires WithSymbols.
func (e *Exchange) FetchMyTrades(ctx context.Context, opts ...exchange.Option) ([]*core.MyTrade, error) {
	options := exchange.ApplyOptions(opts...)
	if len(options.Symbols) == 0 {
		return nil, core.NewArgumentsRequired(Name, "fetchMyTrades requires at least one symbol")
	}

	var trades []*core.MyTrade
	for _, symbol := range options.Symbols {
		m, err := e.markets.Market(ctx, symbol)
		if err != nil {
			return nil, err
		}
		var data []myTrade
		if _, err := e.session.ExecuteJSON(ctx, buildHistoryRequest(pathMyTrades, m.ID, options), &data); err != nil {
			return nil, err
		}
		for i := range data {
			trades = append(trades, e.normalizer.NormalizeMyTrade(&data[i], m))
		}
	}
	return trades, nil
}

// CreateOrder places a limit or market order and returns its id. Amount
// and price are checked against the market limits first.
func (e *Exchange) CreateOrder(ctx context.Context, req *exchange.OrderRequest) (string, error) {
	if err := req.Validate(Name); err != nil {
		return "", err
	}
	m, err := e.markets.Market(ctx, req.Symbol)
	if err != nil {
		return "", err
	}
	if err := m.CheckOrder(req.Amount, req.Price); err != nil {
		return "", core.NewExchangeError(Name, core.ErrorTypeInvalidOrder, 0, err.Error())
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = exchange.NewClientOrderID()
	}

	var ack orderAck
	if _, err := e.session.ExecuteJSON(ctx, buildCreateOrderRequest(m, req), &ack); err != nil {
		return "", err
	}
	return strconv.FormatInt(ack.OrderID, 10), nil
}

func (e *Exchange) marketIDs(ctx context.Context, symbols []string) ([]string, error) {
	ids := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		m, err := e.markets.Market(ctx, symbol)
		if err != nil {
			return nil, err
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// normalizeOrders drops orders on pairs missing from the market list.
func (e *Exchange) normalizeOrders(ctx context.Context, data []order) ([]*core.Order, error) {
	orders := make([]*core.Order, 0, len(data))
	for i := range data {
		m, ok, err := e.markets.ByID(ctx, data[i].Symbol)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		orders = append(orders, e.normalizer.NormalizeOrder(&data[i], m))
	}
	return orders, nil
}
