// Package kucoin implements the KuCoin spot REST API: symbols, tickers,
// trade account balances and active orders.
//
// Responses are wrapped in {"code":"200000","data":...}; any other code is
// classified as an error. Private calls are signed with auth.HeaderSigner
// and need the API passphrase.
package kucoin

import (
	"context"
	"fmt"
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
	Name = "kucoin"
	// BaseURL is the production REST host.
	BaseURL = "https://api.kucoin.com"
	// UserAgent is sent unless the config overrides it; KuCoin rejects
	// requests without one.
	UserAgent = "tukar/1.0"

	requestInterval = 334 * time.Millisecond
)

var (
	_ exchange.MarketFetcher     = (*Exchange)(nil)
	_ exchange.TickerFetcher     = (*Exchange)(nil)
	_ exchange.TickersFetcher    = (*Exchange)(nil)
	_ exchange.BalanceFetcher    = (*Exchange)(nil)
	_ exchange.OpenOrdersFetcher = (*Exchange)(nil)
	_ exchange.Closer            = (*Exchange)(nil)
)

// Exchange is a KuCoin spot client.
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

// New creates a KuCoin client from config. Credentials need a Passphrase
// for private calls.
func New(config *core.Config, opts ...Option) (*Exchange, error) {
	options := &Options{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.Logger.With().Str("exchange", Name).Logger()

	sessOpts := []session.Option{
		session.WithBaseURL(BaseURL),
		session.WithSigner(auth.HeaderSigner{}),
		session.WithThrottle(throttle.Config{
			Policy:   throttle.PolicyFixed,
			Interval: requestInterval,
		}, options.ThrottleOpts...),
		session.WithClassifier(classifyError),
		session.WithUserAgent(UserAgent),
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
	var resp envelope[[]symbol]
	if _, err := e.session.ExecuteJSON(ctx, buildSymbolsRequest(), &resp); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeMarkets(resp.Data), nil
}

func (e *Exchange) FetchMarkets(ctx context.Context) ([]*core.Market, error) {
	return e.markets.Markets(ctx)
}

// FetchTicker retrieves 24h statistics for one symbol from market/stats.
func (e *Exchange) FetchTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	m, err := e.markets.Market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var resp envelope[ticker]
	if _, err := e.session.ExecuteJSON(ctx, buildStatsRequest(m.ID), &resp); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeTicker(&resp.Data, m, resp.Data.Time), nil
}

// FetchTickers retrieves allTickers and keeps symbols, or every known
// market when symbols is empty.
func (e *Exchange) FetchTickers(ctx context.Context, symbols ...string) ([]*core.Ticker, error) {
	for _, symbol := range symbols {
		if _, err := e.markets.Market(ctx, symbol); err != nil {
			return nil, err
		}
	}
	var resp envelope[allTickers]
	if _, err := e.session.ExecuteJSON(ctx, buildAllTickersRequest(), &resp); err != nil {
		return nil, err
	}

	filter := exchange.ApplyOptions(exchange.WithSymbols(symbols...))
	tickers := make([]*core.Ticker, 0, len(resp.Data.Ticker))
	for i := range resp.Data.Ticker {
		m, ok, err := e.markets.ByID(ctx, resp.Data.Ticker[i].Symbol)
		if err != nil {
			return nil, err
		}
		if !ok || !filter.Includes(m.Symbol()) {
			continue
		}
		tickers = append(tickers, e.normalizer.NormalizeTicker(&resp.Data.Ticker[i], m, resp.Data.Time))
	}
	return tickers, nil
}

// FetchBalance retrieves trade account balances.
func (e *Exchange) FetchBalance(ctx context.Context) (core.Balances, error) {
	var resp envelope[[]account]
	if _, err := e.session.ExecuteJSON(ctx, buildAccountsRequest(), &resp); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeBalances(resp.Data), nil
}

// FetchOpenOrders pages through active orders. With WithSymbols it queries
// each symbol separately. WithLimit stops paging once enough are collected.
func (e *Exchange) FetchOpenOrders(ctx context.Context, opts ...exchange.Option) ([]*core.Order, error) {
	options := exchange.ApplyOptions(opts...)
	ids := []string{""}
	if len(options.Symbols) > 0 {
		ids = ids[:0]
		for _, symbol := range options.Symbols {
			m, err := e.markets.Market(ctx, symbol)
			if err != nil {
				return nil, err
			}
			ids = append(ids, m.ID)
		}
	}

	var orders []*core.Order
	for _, id := range ids {
		for page := 1; ; page++ {
			var resp envelope[orderPage]
			if _, err := e.session.ExecuteJSON(ctx, buildActiveOrdersRequest(id, page), &resp); err != nil {
				return nil, err
			}
			for i := range resp.Data.Items {
				m, ok, err := e.markets.ByID(ctx, resp.Data.Items[i].Symbol)
				if err != nil {
					return nil, err
				}
				if ok {
					orders = append(orders, e.normalizer.NormalizeOrder(&resp.Data.Items[i], m))
				}
			}
			if page >= resp.Data.TotalPage || (options.Limit > 0 && len(orders) >= options.Limit) {
				break
			}
		}
	}
	return exchange.Truncate(orders, options.Limit), nil
}
