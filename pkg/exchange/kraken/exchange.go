package kraken

import (
	"context"
	"fmt"
	"slices"
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
	Name = "kraken"
	// BaseURL is the production REST host.
	BaseURL = "https://api.kraken.com"

	publicInterval  = time.Second
	privateInterval = 2500 * time.Millisecond
)

var (
	_ exchange.MarketFetcher  = (*Exchange)(nil)
	_ exchange.TickerFetcher  = (*Exchange)(nil)
	_ exchange.TickersFetcher = (*Exchange)(nil)
	_ exchange.BalanceFetcher = (*Exchange)(nil)
	_ exchange.Closer         = (*Exchange)(nil)
)

// Exchange is a Kraken spot client.
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

// WithClock replaces the clock that stamps tickers.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

// New creates a Kraken client from config.
func New(config *core.Config, opts ...Option) (*Exchange, error) {
	options := &Options{Logger: zerolog.Nop(), Now: time.Now}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.Logger.With().Str("exchange", Name).Logger()

	sessOpts := []session.Option{
		session.WithBaseURL(BaseURL),
		session.WithSigner(auth.NonceDigestSigner{}),
		session.WithThrottle(throttle.Config{
			Policy:          throttle.PolicyAlwaysSleep,
			Interval:        publicInterval,
			PrivateInterval: privateInterval,
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
	var resp envelope[map[string]assetPair]
	if _, err := e.session.ExecuteJSON(ctx, buildAssetPairsRequest(), &resp); err != nil {
		return nil, err
	}
	markets := e.normalizer.NormalizeMarkets(resp.Result)
	sort.Slice(markets, func(i, j int) bool { return markets[i].ID < markets[j].ID })
	return markets, nil
}

// FetchMarkets returns every pair except dark pool books.
func (e *Exchange) FetchMarkets(ctx context.Context) ([]*core.Market, error) {
	return e.markets.Markets(ctx)
}

// FetchTicker retrieves the ticker for one symbol.
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

// FetchTickers retrieves tickers for symbols, or for every market when
// symbols is empty, asking for at most tickerChunk pairs per request.
func (e *Exchange) FetchTickers(ctx context.Context, symbols ...string) ([]*core.Ticker, error) {
	markets, err := e.markets.Markets(ctx)
	if err != nil {
		return nil, err
	}
	for _, symbol := range symbols {
		if _, err := e.markets.Market(ctx, symbol); err != nil {
			return nil, err
		}
	}

	filter := exchange.ApplyOptions(exchange.WithSymbols(symbols...))
	ids := make([]string, 0, len(markets))
	for _, m := range markets {
		if filter.Includes(m.Symbol()) {
			ids = append(ids, m.ID)
		}
	}

	var tickers []*core.Ticker
	for chunk := range slices.Chunk(ids, tickerChunk) {
		var resp envelope[map[string]ticker]
		if _, err := e.session.ExecuteJSON(ctx, buildTickerRequest(chunk), &resp); err != nil {
			return nil, err
		}
		received := e.now().UnixMilli()
		for id, t := range resp.Result {
			m, ok, err := e.markets.ByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			tickers = append(tickers, e.normalizer.NormalizeTicker(&t, m, received))
		}
	}
	sort.Slice(tickers, func(i, j int) bool { return tickers[i].Symbol < tickers[j].Symbol })
	return tickers, nil
}

// FetchBalance retrieves balances with amounts held by open orders.
func (e *Exchange) FetchBalance(ctx context.Context) (core.Balances, error) {
	var resp envelope[map[string]assetBalance]
	if _, err := e.session.ExecuteJSON(ctx, buildBalanceRequest(), &resp); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeBalances(resp.Result), nil
}
