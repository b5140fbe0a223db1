package bitfinex

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"tukar/internal/keyring"
	"tukar/internal/throttle"
	"tukar/pkg/core"
	"tukar/pkg/exchange"
	"tukar/pkg/market"
	"tukar/pkg/session"
)

const (
	// Name is the venue identifier used in configs and errors.
	Name = "bitfinex"
	// BaseURL serves both API generations.
	BaseURL = "https://api.bitfinex.com"

	requestInterval = time.Second
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
	_ exchange.Closer            = (*Exchange)(nil)
)

// Exchange is a Bitfinex spot client.
type Exchange struct {
	session    *session.Session
	markets    *market.Cache
	normalizer *Normalizer
	now        func() time.Time
	logger     zerolog.Logger
}

type Option func(*Options)

type Options struct {
	KeyRing      *keyring.KeyRing
	Logger       zerolog.Logger
	ThrottleOpts []throttle.Option
	Now          func() time.Time
}

func WithKeyRing(kr *keyring.KeyRing) Option {
	return func(o *Options) {
		o.KeyRing = kr
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func WithThrottleOptions(opts ...throttle.Option) Option {
	return func(o *Options) {
		o.ThrottleOpts = opts
	}
}

// WithClock replaces the clock used for client order ids.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

// New creates a Bitfinex client from config.
func New(config *core.Config, opts ...Option) (*Exchange, error) {
	options := &Options{Logger: zerolog.Nop(), Now: time.Now}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.Logger.With().Str("exchange", Name).Logger()

	sessOpts := []session.Option{
		session.WithBaseURL(BaseURL),
		session.WithSigner(signer),
		session.WithThrottle(throttle.Config{
			Policy:   throttle.PolicyFixed,
			Interval: requestInterval,
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
		now:        options.Now,
		logger:     logger,
	}
	e.markets = market.New(Name, config.MarketsTTL, e.loadMarkets, market.WithLogger(logger))
	return e, nil
}

func (e *Exchange) Name() string {
	return Name
}

func (e *Exchange) Close() error {
	return e.session.Close()
}

func (e *Exchange) Session() *session.Session {
	return e.session
}

func (e *Exchange) loadMarkets(ctx context.Context) ([]*core.Market, error) {
	var listed []string
	if _, err := e.session.ExecuteJSON(ctx, buildSymbolsRequest(), &listed); err != nil {
		return nil, err
	}
	var details []symbolDetails
	if _, err := e.session.ExecuteJSON(ctx, buildSymbolsDetailsRequest(), &details); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeMarkets(listed, details), nil
}

func (e *Exchange) FetchMarkets(ctx context.Context) ([]*core.Market, error) {
	return e.markets.Markets(ctx)
}

func (e *Exchange) FetchTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	tickers, err := e.FetchTickers(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, core.NewExchangeError(Name, core.ErrorTypeBadResponse, 0, "no ticker for "+symbol)
	}
	return tickers[0], nil
}

// FetchTickers asks for symbols only, or for every pair when symbols is
// empty.
func (e *Exchange) FetchTickers(ctx context.Context, symbols ...string) ([]*core.Ticker, error) {
	ids := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		m, err := e.markets.Market(ctx, symbol)
		if err != nil {
			return nil, err
		}
		ids = append(ids, m.ID)
	}

	resp, err := e.session.Execute(ctx, buildTickersRequest(ids))
	if err != nil {
		return nil, err
	}
	var data []ticker
	if err := resp.Unmarshal(&data); err != nil {
		return nil, core.NewBadResponse(Name, resp.Text, err)
	}

	filter := exchange.ApplyOptions(exchange.WithSymbols(symbols...))
	tickers := make([]*core.Ticker, 0, len(data))
	for i := range data {
		m, ok, err := e.markets.ByID(ctx, data[i].Pair)
		if err != nil {
			return nil, err
		}
		if !ok || !filter.Includes(m.Symbol()) {
			continue
		}
		t, err := e.normalizer.NormalizeTicker(&data[i], m)
		if err != nil {
			return nil, core.NewBadResponse(Name, resp.Text, err)
		}
		tickers = append(tickers, t)
	}
	return tickers, nil
}

// FetchBalance retrieves exchange wallet balances through v1.
func (e *Exchange) FetchBalance(ctx context.Context) (core.Balances, error) {
	var wallets []wallet
	if _, err := e.session.ExecuteJSON(ctx, buildBalancesRequest(), &wallets); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeBalances(wallets), nil
}

// rows executes req and decodes a v2 array of positional rows.
func (e *Exchange) rows(ctx context.Context, req *core.Request) ([][]any, string, error) {
	resp, err := e.session.Execute(ctx, req)
	if err != nil {
		return nil, "", err
	}
	var rows [][]any
	if err := core.LooseJSON.UnmarshalFromString(resp.Text, &rows); err != nil {
		return nil, resp.Text, core.NewBadResponse(Name, resp.Text, err)
	}
	return rows, resp.Text, nil
}

func symbolAt(values []any, i int) string {
	if i >= len(values) {
		return ""
	}
	s, _ := values[i].(string)
	return s
}

func (e *Exchange) fetchOrders(ctx context.Context, req *core.Request, options *exchange.Options, openOnly bool) ([]*core.Order, error) {
	rows, body, err := e.rows(ctx, req)
	if err != nil {
		return nil, err
	}
	orders := make([]*core.Order, 0, len(rows))
	for _, values := range rows {
		m, ok, err := e.markets.ByID(ctx, pairID(symbolAt(values, 3)))
		if err != nil {
			return nil, err
		}
		if !ok || !options.Includes(m.Symbol()) {
			continue
		}
		o, err := e.normalizer.NormalizeOrder(values, m)
		if err != nil {
			return nil, core.NewBadResponse(Name, body, err)
		}
		if openOnly && o.Status != core.StatusOpen {
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// FetchOpenOrders lists active orders, narrowed by WithSymbols.
func (e *Exchange) FetchOpenOrders(ctx context.Context, opts ...exchange.Option) ([]*core.Order, error) {
	options := exchange.ApplyOptions(opts...)
	orders, err := e.fetchOrders(ctx, buildOrdersRequest(), options, true)
	if err != nil {
		return nil, err
	}
	return exchange.Truncate(orders, options.Limit), nil
}

// FetchOrders lists closed and cancelled orders from the history endpoint.
func (e *Exchange) FetchOrders(ctx context.Context, opts ...exchange.Option) ([]*core.Order, error) {
	options := exchange.ApplyOptions(opts...)
	return e.fetchOrders(ctx, buildHistoryRequest(pathOrdersHist, options), options, false)
}

// FetchMyTrades lists fills across all pairs, narrowed by WithSymbols.
// WithLimit is capped at 2500 by the venue.
func (e *Exchange) FetchMyTrades(ctx context.Context, opts ...exchange.Option) ([]*core.MyTrade, error) {
	options := exchange.ApplyOptions(opts...)
	rows, body, err := e.rows(ctx, buildHistoryRequest(pathTradesHist, options))
	if err != nil {
		return nil, err
	}
	trades := make([]*core.MyTrade, 0, len(rows))
	for _, values := range rows {
		m, ok, err := e.markets.ByID(ctx, pairID(symbolAt(values, 1)))
		if err != nil {
			return nil, err
		}
		if !ok || !options.Includes(m.Symbol()) {
			continue
		}
		t, err := e.normalizer.NormalizeMyTrade(values, m)
		if err != nil {
			return nil, core.NewBadResponse(Name, body, err)
		}
		trades = append(trades, t)
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Timestamp < trades[j].Timestamp })
	return trades, nil
}

// CreateOrder submits an exchange (non-margin) order. Bitfinex client ids
// are integers; without one the current time in milliseconds is used.
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

	cid := e.now().UnixMilli()
	if req.ClientOrderID != "" {
		if cid, err = strconv.ParseInt(req.ClientOrderID, 10, 64); err != nil {
			return "", core.NewExchangeError(Name, core.ErrorTypeBadRequest, 0, "client order id must be an integer").WithCause(err)
		}
	}
	req.ClientOrderID = strconv.FormatInt(cid, 10)

	resp, err := e.session.Execute(ctx, buildSubmitRequest(m, req, cid))
	if err != nil {
		return "", err
	}
	return parseSubmitResponse(resp.Text)
}

// parseSubmitResponse reads the order id from a notification:
// [MTS, TYPE, MESSAGE_ID, null, [[ID, ...]], CODE, STATUS, TEXT].
func parseSubmitResponse(text string) (string, error) {
	var notification []any
	if err := core.LooseJSON.UnmarshalFromString(text, &notification); err != nil {
		return "", core.NewBadResponse(Name, text, err)
	}
	if len(notification) > 7 {
		if status, _ := notification[6].(string); status == "ERROR" || status == "FAILURE" {
			msg, _ := notification[7].(string)
			return "", core.NewExchangeError(Name, mapError(0, msg), 0, msg).WithBody(text)
		}
	}
	if len(notification) > 4 {
		if orders, ok := notification[4].([]any); ok && len(orders) > 0 {
			if first, ok := orders[0].([]any); ok && len(first) > 0 {
				id, err := core.Int64Of(first[0])
				if err == nil && id != 0 {
					return strconv.FormatInt(id, 10), nil
				}
			}
		}
	}
	return "", core.NewBadResponse(Name, text, fmt.Errorf("no order in submit notification"))
}
