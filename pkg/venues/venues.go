// Package venues builds adapter clients from configuration by venue name.
package venues

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"tukar/pkg/core"
	"tukar/pkg/exchange"
	"tukar/pkg/exchange/binance"
	"tukar/pkg/exchange/bitfinex"
	"tukar/pkg/exchange/cex"
	"tukar/pkg/exchange/exmo"
	"tukar/pkg/exchange/kraken"
	"tukar/pkg/exchange/kucoin"
)

// Constructor creates a venue client from its configuration.
type Constructor func(cfg *core.Config, logger zerolog.Logger) (exchange.Exchange, error)

// wrap adapts a concrete constructor so a failed call never yields a
// non-nil interface holding a nil pointer.
func wrap[T exchange.Exchange](build func(cfg *core.Config, logger zerolog.Logger) (T, error)) Constructor {
	return func(cfg *core.Config, logger zerolog.Logger) (exchange.Exchange, error) {
		ex, err := build(cfg, logger)
		if err != nil {
			return nil, err
		}
		return ex, nil
	}
}

var constructors = map[string]Constructor{
	binance.Name: wrap(func(cfg *core.Config, l zerolog.Logger) (*binance.Exchange, error) {
		return binance.New(cfg, binance.WithLogger(l))
	}),
	bitfinex.Name: wrap(func(cfg *core.Config, l zerolog.Logger) (*bitfinex.Exchange, error) {
		return bitfinex.New(cfg, bitfinex.WithLogger(l))
	}),
	cex.Name: wrap(func(cfg *core.Config, l zerolog.Logger) (*cex.Exchange, error) {
		return cex.New(cfg, cex.WithLogger(l))
	}),
	exmo.Name: wrap(func(cfg *core.Config, l zerolog.Logger) (*exmo.Exchange, error) {
		return exmo.New(cfg, exmo.WithLogger(l))
	}),
	kraken.Name: wrap(func(cfg *core.Config, l zerolog.Logger) (*kraken.Exchange, error) {
		return kraken.New(cfg, kraken.WithLogger(l))
	}),
	kucoin.Name: wrap(func(cfg *core.Config, l zerolog.Logger) (*kucoin.Exchange, error) {
		return kucoin.New(cfg, kucoin.WithLogger(l))
	}),
}

// Names lists the supported venues in sorted order.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New creates the client for cfg.Exchange.
func New(cfg *core.Config, logger zerolog.Logger) (exchange.Exchange, error) {
	build, ok := constructors[cfg.Exchange]
	if !ok {
		return nil, fmt.Errorf("unsupported venue %q", cfg.Exchange)
	}
	return build(cfg, logger)
}

// Load creates a client for every venue in file and registers it under its
// name. Clients already created are closed when a later one fails.
func Load(file *core.File, logger zerolog.Logger) (*exchange.Container, error) {
	container := exchange.NewContainer()
	for _, cfg := range file.Venues {
		if container.Exists(cfg.Exchange) {
			return nil, multierr.Append(
				fmt.Errorf("venue %q configured twice", cfg.Exchange),
				container.Close(),
			)
		}
		ex, err := New(cfg, logger)
		if err != nil {
			return nil, multierr.Append(
				fmt.Errorf("create %s: %w", cfg.Exchange, err),
				container.Close(),
			)
		}
		container.Register(cfg.Exchange, ex)
	}
	return container, nil
}
