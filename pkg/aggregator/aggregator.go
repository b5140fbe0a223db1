// Package aggregator runs the same canonical query against every venue in
// an exchange.Container and collects one result per venue.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"tukar/pkg/core"
	"tukar/pkg/exchange"
)

// Aggregator fans queries out to the venues of a container.
type Aggregator struct {
	container *exchange.Container
	logger    zerolog.Logger
}

type Option func(*Aggregator)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func New(container *exchange.Container, opts ...Option) *Aggregator {
	a := &Aggregator{container: container, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TickerResult is one venue's answer to Tickers.
type TickerResult struct {
	Exchange string       `json:"exchange"`
	Ticker   *core.Ticker `json:"ticker,omitempty"`
	Error    error        `json:"-"`
}

// BalanceResult is one venue's answer to Balances.
type BalanceResult struct {
	Exchange string        `json:"exchange"`
	Balances core.Balances `json:"balances,omitempty"`
	Error    error         `json:"-"`
}

// venues returns the registered venues that implement T, by name.
func venues[T any](c *exchange.Container) map[string]T {
	out := make(map[string]T)
	for _, name := range c.Names() {
		ex, err := c.Get(name)
		if err != nil {
			continue
		}
		if v, ok := ex.(T); ok {
			out[name] = v
		}
	}
	return out
}

// Tickers fetches symbol from every venue that serves tickers. Venues that
// do not list the symbol report core.ErrUnknownSymbol in their result.
// Results are sorted by venue name.
func (a *Aggregator) Tickers(ctx context.Context, symbol string) []TickerResult {
	fetchers := venues[exchange.TickerFetcher](a.container)

	resultChan := make(chan TickerResult, len(fetchers))
	var wg sync.WaitGroup
	for name, f := range fetchers {
		wg.Go(func() {
			result := TickerResult{Exchange: name}
			if err := ctx.Err(); err != nil {
				result.Error = err
				resultChan <- result
				return
			}
			ticker, err := f.FetchTicker(ctx, symbol)
			if err != nil {
				a.logger.Debug().Err(err).Str("exchange", name).Str("symbol", symbol).Msg("ticker failed")
				result.Error = fmt.Errorf("fetch ticker: %w", err)
			}
			result.Ticker = ticker
			resultChan <- result
		})
	}
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]TickerResult, 0, len(fetchers))
	for r := range resultChan {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Exchange < results[j].Exchange })
	return results
}

// Balances fetches account balances from every venue that serves them.
// Venues configured without credentials report an authentication error.
func (a *Aggregator) Balances(ctx context.Context) []BalanceResult {
	fetchers := venues[exchange.BalanceFetcher](a.container)

	resultChan := make(chan BalanceResult, len(fetchers))
	var wg sync.WaitGroup
	for name, f := range fetchers {
		wg.Go(func() {
			result := BalanceResult{Exchange: name}
			balances, err := f.FetchBalance(ctx)
			if err != nil {
				a.logger.Debug().Err(err).Str("exchange", name).Msg("balance failed")
				result.Error = fmt.Errorf("fetch balance: %w", err)
			}
			result.Balances = balances
			resultChan <- result
		})
	}
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]BalanceResult, 0, len(fetchers))
	for r := range resultChan {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Exchange < results[j].Exchange })
	return results
}

// Capabilities lists what each registered venue supports.
func (a *Aggregator) Capabilities() map[string][]core.Operation {
	out := make(map[string][]core.Operation)
	for name, ex := range venues[exchange.Exchange](a.container) {
		out[name] = exchange.Capabilities(ex)
	}
	return out
}
