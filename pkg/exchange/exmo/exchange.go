package exmo

import (
	"context"
	"fmt"
	"sort"
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
	Name = "exmo"
	// BaseURL is the production REST host.
	BaseURL = "https://api.exmo.com"

	requestInterval = 333 * time.Millisecond
)

var (
	_ exchange.MarketFetcher     = (*Exchange)(nil)
	_ exchange.TickerFetcher     = (*Exchange)(nil)
	_ exchange.TickersFetcher    = (*Exchange)(nil)
	_ exchange.BalanceFetcher    = (*Exchange)(nil)
	_ exchange.OpenOrdersFetcher = (*Exchange)(nil)
	_ exchange.MyTradesFetcher   = (*Exchange)(nil)
	_ exchange.Closer            = (*Exchange)(nil)
)

// Exchange is an EXMO spot client.
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

// New creates an EXMO client from config.
func New(config *core.Config, opts ...Option) (*Exchange, error) {
	options := &Options{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.Logger.With().Str("exchange", Name).Logger()

	sessOpts := []session.Option{
		session.WithBaseURL(BaseURL),
		session.WithSigner(auth.FormDigestSigner{}),
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
	var settings map[string]pairSettings
	if _, err := e.session.ExecuteJSON(ctx, buildPairSettingsRequest(), &settings); err != nil {
		return nil, err
	}
	markets := e.normalizer.NormalizeMarkets(settings)
	sort.Slice(markets, func(i, j int) bool { return markets[i].ID < markets[j].ID })
	return markets, nil
}

// FetchMarkets returns every pair from pair_settings.
func (e *Exchange) FetchMarkets(ctx context.Context) ([]*core.Market, error) {
	return e.markets.Markets(ctx)
}

// FetchTicker picks symbol out of the all-pairs ticker.
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

// FetchTickers retrieves the all-pairs ticker and keeps symbols, or every
// known market when symbols is empty.
func (e *Exchange) FetchTickers(ctx context.Context, symbols ...string) ([]*core.Ticker, error) {
	for _, symbol := range symbols {
		if _, err := e.markets.Market(ctx, symbol); err != nil {
			return nil, err
		}
	}
	var data map[string]ticker
	if _, err := e.session.ExecuteJSON(ctx, buildTickerRequest(), &data); err != nil {
		return nil, err
	}

	filter := exchange.ApplyOptions(exchange.WithSymbols(symbols...))
	tickers := make([]*core.Ticker, 0, len(data))
	for id, t := range data {
		m, ok, err := e.markets.ByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok || !filter.Includes(m.Symbol()) {
			continue
		}
		tickers = append(tickers, e.normalizer.NormalizeTicker(&t, m))
	}
	sort.Slice(tickers, func(i, j int) bool { return tickers[i].Symbol < tickers[j].Symbol })
	return tickers, nil
}

// FetchBalance retrieves wallet balances; reserved amounts count as used.
func (e *Exchange) FetchBalance(ctx context.Context) (core.Balances, error) {
	var info userInfo
	if _, err := e.session.ExecuteJSON(ctx, buildUserInfoRequest(), &info); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeBalances(&info), nil
}

// FetchOpenOrders lists resting orders across all pairs, narrowed by
// WithSymbols.
func (e *Exchange) FetchOpenOrders(ctx context.Context, opts ...exchange.Option) ([]*core.Order, error) {
	options := exchange.ApplyOptions(opts...)
	var data map[string][]openOrder
	if _, err := e.session.ExecuteJSON(ctx, buildOpenOrdersRequest(), &data); err != nil {
		return nil, err
	}

	var orders []*core.Order
	for id, items := range data {
		m, ok, err := e.markets.ByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok || !options.Includes(m.Symbol()) {
			continue
		}
		for i := range items {
			orders = append(orders, e.normalizer.NormalizeOpenOrder(&items[i], m))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Timestamp < orders[j].Timestamp })
	return orders, nil
}

// FetchMyTrades retrieves account trades for symbols, or for every market
// when none are given.
func (e *Exchange) FetchMyTrades(ctx context.Context, opts ...exchange.Option) ([]*core.MyTrade, error) {
	options := exchange.ApplyOptions(opts...)
	markets, err := e.markets.Markets(ctx)
	if err != nil {
		return nil, err
	}
	for _, symbol := range options.Symbols {
		if _, err := e.markets.Market(ctx, symbol); err != nil {
			return nil, err
		}
	}
	ids := make([]string, 0, len(markets))
	for _, m := range markets {
		if options.Includes(m.Symbol()) {
			ids = append(ids, m.ID)
		}
	}

	var data map[string][]userTrade
	if _, err := e.session.ExecuteJSON(ctx, buildUserTradesRequest(ids, options), &data); err != nil {
		return nil, err
	}

	var trades []*core.MyTrade
	for id, items := range data {
		m, ok, err := e.markets.ByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for i := range items {
			t := e.normalizer.NormalizeMyTrade(&items[i], m)
			if options.After(t.Timestamp) {
				trades = append(trades, t)
			}
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Timestamp < trades[j].Timestamp })
	return trades, nil
}
