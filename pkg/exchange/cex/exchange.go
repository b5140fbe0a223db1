package cex

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
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
	Name = "cex"
	// BaseURL is the production REST host; every path lives under /api.
	BaseURL = "https://cex.io"

	// 600 requests per 10 minutes
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
	_ exchange.Closer            = (*Exchange)(nil)
)

// Exchange is a CEX.IO spot client.
type Exchange struct {
	session    *session.Session
	markets    *market.Cache
	normalizer *Normalizer
	logger     zerolog.Logger
}

type Option func(*Options)

type Options struct {
	KeyRing      *keyring.KeyRing
	Logger       zerolog.Logger
	ThrottleOpts []throttle.Option
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

// New creates a CEX.IO client from config. Private calls also need
// Credentials.UserID.
func New(config *core.Config, opts ...Option) (*Exchange, error) {
	options := &Options{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.Logger.With().Str("exchange", Name).Logger()

	sessOpts := []session.Option{
		session.WithBaseURL(BaseURL),
		session.WithSigner(auth.FormSigner{}),
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
	var profile currencyProfile
	if _, err := e.session.ExecuteJSON(ctx, buildCurrencyProfileRequest(), &profile); err != nil {
		return nil, err
	}
	var limits currencyLimits
	if _, err := e.session.ExecuteJSON(ctx, buildCurrencyLimitsRequest(), &limits); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeMarkets(&profile, &limits), nil
}

// FetchMarkets joins currency_limits with currency_profile.
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

// FetchTickers asks for every pair quoted in the requested markets' quote
// currencies, or in every quote currency when symbols is empty.
func (e *Exchange) FetchTickers(ctx context.Context, symbols ...string) ([]*core.Ticker, error) {
	var markets []*core.Market
	if len(symbols) == 0 {
		all, err := e.markets.Markets(ctx)
		if err != nil {
			return nil, err
		}
		markets = all
	}
	for _, symbol := range symbols {
		m, err := e.markets.Market(ctx, symbol)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	quotes := make([]string, 0, len(markets))
	for _, m := range markets {
		quotes = append(quotes, m.QuoteID)
	}
	slices.Sort(quotes)
	quotes = slices.Compact(quotes)

	resp, err := e.session.Execute(ctx, buildTickersRequest(quotes))
	if err != nil {
		return nil, err
	}
	var data tickers
	if err := resp.Unmarshal(&data); err != nil {
		return nil, core.NewBadResponse(Name, resp.Text, err)
	}

	filter := exchange.ApplyOptions(exchange.WithSymbols(symbols...))
	out := make([]*core.Ticker, 0, len(data.Data))
	for i := range data.Data {
		m, ok, err := e.markets.ByID(ctx, strings.Replace(data.Data[i].Pair, ":", "/", 1))
		if err != nil {
			return nil, err
		}
		if !ok || !filter.Includes(m.Symbol()) {
			continue
		}
		t, err := e.normalizer.NormalizeTicker(&data.Data[i], m)
		if err != nil {
			return nil, core.NewBadResponse(Name, resp.Text, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// FetchBalance retrieves available and in-order amounts per currency.
func (e *Exchange) FetchBalance(ctx context.Context) (core.Balances, error) {
	resp, err := e.session.Execute(ctx, buildBalanceRequest())
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := core.LooseJSON.UnmarshalFromString(resp.Text, &raw); err != nil {
		return nil, core.NewBadResponse(Name, resp.Text, err)
	}
	balances, err := e.normalizer.NormalizeBalances(raw)
	if err != nil {
		return nil, core.NewBadResponse(Name, resp.Text, err)
	}
	return balances, nil
}

// FetchOpenOrders lists resting orders across all pairs, narrowed by
// WithSymbols.
func (e *Exchange) FetchOpenOrders(ctx context.Context, opts ...exchange.Option) ([]*core.Order, error) {
	options := exchange.ApplyOptions(opts...)
	resp, err := e.session.Execute(ctx, buildOpenOrdersRequest())
	if err != nil {
		return nil, err
	}
	var data []openOrder
	if err := resp.Unmarshal(&data); err != nil {
		return nil, core.NewBadResponse(Name, resp.Text, err)
	}

	orders := make([]*core.Order, 0, len(data))
	for i := range data {
		m, ok, err := e.markets.ByID(ctx, marketID(data[i].Symbol1, data[i].Symbol2))
		if err != nil {
			return nil, err
		}
		if !ok || !options.Includes(m.Symbol()) {
			continue
		}
		o, err := e.normalizer.NormalizeOpenOrder(&data[i], m)
		if err != nil {
			return nil, core.NewBadResponse(Name, resp.Text, err)
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Timestamp < orders[j].Timestamp })
	return exchange.Truncate(orders, options.Limit), nil
}

// archivedEntry is an archived order with the market it belongs to.
type archivedEntry struct {
	order  archivedOrder
	market *core.Market
	body   string
}

// fetchArchived reads archived orders, one request per market when
// WithSymbols is set and a single all-pairs request otherwise.
func (e *Exchange) fetchArchived(ctx context.Context, options *exchange.Options) ([]archivedEntry, error) {
	targets := []*core.Market{nil}
	if len(options.Symbols) > 0 {
		targets = targets[:0]
		for _, symbol := range options.Symbols {
			m, err := e.markets.Market(ctx, symbol)
			if err != nil {
				return nil, err
			}
			targets = append(targets, m)
		}
	}

	var entries []archivedEntry
	for _, target := range targets {
		resp, err := e.session.Execute(ctx, buildArchivedOrdersRequest(target, options))
		if err != nil {
			return nil, err
		}
		var data []archivedOrder
		if err := core.LooseJSON.UnmarshalFromString(resp.Text, &data); err != nil {
			return nil, core.NewBadResponse(Name, resp.Text, err)
		}
		for _, a := range data {
			m, ok, err := e.markets.ByID(ctx, marketID(a.text("symbol1"), a.text("symbol2")))
			if err != nil {
				return nil, err
			}
			if !ok || !options.Includes(m.Symbol()) {
				continue
			}
			entries = append(entries, archivedEntry{order: a, market: m, body: resp.Text})
		}
	}
	return entries, nil
}

// FetchOrders lists archived (done or cancelled) orders.
func (e *Exchange) FetchOrders(ctx context.Context, opts ...exchange.Option) ([]*core.Order, error) {
	options := exchange.ApplyOptions(opts...)
	entries, err := e.fetchArchived(ctx, options)
	if err != nil {
		return nil, err
	}
	orders := make([]*core.Order, 0, len(entries))
	for _, entry := range entries {
		o, err := e.normalizer.NormalizeArchivedOrder(entry.order, entry.market)
		if err != nil {
			return nil, core.NewBadResponse(Name, entry.body, err)
		}
		if options.After(o.Timestamp) {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Timestamp < orders[j].Timestamp })
	return exchange.Truncate(orders, options.Limit), nil
}

// FetchMyTrades derives one trade per archived order that filled.
// Orders cancelled without fills ("c") are skipped.
func (e *Exchange) FetchMyTrades(ctx context.Context, opts ...exchange.Option) ([]*core.MyTrade, error) {
	options := exchange.ApplyOptions(opts...)
	entries, err := e.fetchArchived(ctx, options)
	if err != nil {
		return nil, err
	}
	trades := make([]*core.MyTrade, 0, len(entries))
	for _, entry := range entries {
		if entry.order.text("status") == "c" {
			continue
		}
		t, err := e.normalizer.NormalizeArchivedTrade(entry.order, entry.market)
		if err != nil {
			return nil, core.NewBadResponse(Name, entry.body, err)
		}
		if t.Amount.IsZero() || !options.After(t.Timestamp) {
			continue
		}
		trades = append(trades, t)
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Timestamp < trades[j].Timestamp })
	return exchange.Truncate(trades, options.Limit), nil
}
