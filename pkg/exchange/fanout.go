package exchange

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"tukar/pkg/core"
)

// DefaultFanOut bounds concurrent per-symbol calls. The venue throttle still
// spaces the requests; the bound only limits queued goroutines.
const DefaultFanOut = 8

// FetchTickersConcurrently calls FetchTicker for each symbol with at most
// limit calls in flight and returns the tickers keyed by symbol. Unknown
// symbols are skipped; any other error cancels the rest and is returned.
func FetchTickersConcurrently(ctx context.Context, ex TickerFetcher, symbols []string, limit int) (map[string]*core.Ticker, error) {
	if limit <= 0 {
		limit = DefaultFanOut
	}

	var mu sync.Mutex
	out := make(map[string]*core.Ticker, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, symbol := range symbols {
		g.Go(func() error {
			ticker, err := ex.FetchTicker(gctx, symbol)
			if err != nil {
				if isUnknownSymbol(err) {
					return nil
				}
				return err
			}
			mu.Lock()
			out[symbol] = ticker
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func isUnknownSymbol(err error) bool {
	return core.IsErrorType(err, core.ErrorTypeBadRequest) && errors.Is(err, core.ErrUnknownSymbol)
}

// RetryConfig bounds Retry.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig retries three times starting at 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Retry runs op with exponential backoff while it fails with a retryable
// error (network, timeout, rate limit, not available). Any other error stops
// immediately. The request pipeline never retries on its own; this is the
// caller-level layer for those who want it.
func Retry(ctx context.Context, config RetryConfig, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.InitialInterval
	b.MaxInterval = config.MaxInterval

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil || core.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, config.MaxRetries), ctx))
}

// RetryValue is Retry for operations that return a value.
func RetryValue[T any](ctx context.Context, config RetryConfig, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Retry(ctx, config, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
