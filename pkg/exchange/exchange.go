// Package exchange defines the canonical caller surface shared by every venue
// adapter. Each capability is its own interface; an adapter implements only
// the ones its venue supports and callers feature-detect with Has.
package exchange

import (
	"context"

	"github.com/cockroachdb/apd/v3"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"tukar/pkg/core"
)

// Exchange is the minimal interface every venue adapter satisfies.
type Exchange interface {
	Name() string
}

// Closer is implemented by adapters that hold network resources.
type Closer interface {
	Close() error
}

type MarketFetcher interface {
	FetchMarkets(ctx context.Context) ([]*core.Market, error)
}

type TickerFetcher interface {
	FetchTicker(ctx context.Context, symbol string) (*core.Ticker, error)
}

// TickersFetcher returns tickers for the given symbols, or for every market
// when none are given. Venue pairs missing from the market list are skipped.
type TickersFetcher interface {
	FetchTickers(ctx context.Context, symbols ...string) ([]*core.Ticker, error)
}

type BalanceFetcher interface {
	FetchBalance(ctx context.Context) (core.Balances, error)
}

type OpenOrdersFetcher interface {
	FetchOpenOrders(ctx context.Context, opts ...Option) ([]*core.Order, error)
}

type OrdersFetcher interface {
	FetchOrders(ctx context.Context, opts ...Option) ([]*core.Order, error)
}

type MyTradesFetcher interface {
	FetchMyTrades(ctx context.Context, opts ...Option) ([]*core.MyTrade, error)
}

// OrderCreator submits orders and returns the venue order id.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req *OrderRequest) (string, error)
}

// TickerStreamer pushes ticker updates until ctx ends. Both channels are
// closed when the stream stops.
type TickerStreamer interface {
	WatchTicker(ctx context.Context, symbol string) (<-chan *core.Ticker, <-chan error)
}

// Has reports whether ex implements the capability for op.
func Has(ex Exchange, op core.Operation) bool {
	switch op {
	case core.OpFetchMarkets:
		_, ok := ex.(MarketFetcher)
		return ok
	case core.OpFetchTicker:
		_, ok := ex.(TickerFetcher)
		return ok
	case core.OpFetchTickers:
		_, ok := ex.(TickersFetcher)
		return ok
	case core.OpFetchBalance:
		_, ok := ex.(BalanceFetcher)
		return ok
	case core.OpFetchOpenOrders:
		_, ok := ex.(OpenOrdersFetcher)
		return ok
	case core.OpFetchOrders:
		_, ok := ex.(OrdersFetcher)
		return ok
	case core.OpFetchMyTrades:
		_, ok := ex.(MyTradesFetcher)
		return ok
	case core.OpCreateOrder:
		_, ok := ex.(OrderCreator)
		return ok
	case core.OpWatchTicker:
		_, ok := ex.(TickerStreamer)
		return ok
	}
	return false
}

// Capabilities lists the operations ex supports, in declaration order.
func Capabilities(ex Exchange) []core.Operation {
	var ops []core.Operation
	for _, op := range core.AllOperations() {
		if Has(ex, op) {
			ops = append(ops, op)
		}
	}
	return ops
}

// OrderRequest contains the parameters required to place a new order.
type OrderRequest struct {
	Symbol        string         `validate:"required"`
	Side          core.OrderSide `validate:"oneof=0 1"`
	Type          core.OrderType `validate:"oneof=0 1"`
	Amount        apd.Decimal
	Price         apd.Decimal
	TimeInForce   core.TimeInForce
	ClientOrderID string `validate:"omitempty,max=36"`
}

var validate = validator.New()

// Validate checks the request before anything is sent. Limit orders need a
// price; every order needs a positive amount.
func (r *OrderRequest) Validate(exchange string) error {
	if err := validate.Struct(r); err != nil {
		return core.NewExchangeError(exchange, core.ErrorTypeBadRequest, 0, err.Error()).WithCause(err)
	}
	if r.Amount.Sign() <= 0 {
		return core.NewExchangeError(exchange, core.ErrorTypeInvalidOrder, 0, "amount must be positive")
	}
	if r.Type == core.TypeLimit && r.Price.Sign() <= 0 {
		return core.NewArgumentsRequired(exchange, "price is required for limit orders")
	}
	return nil
}

// NewClientOrderID returns a fresh client order id.
func NewClientOrderID() string {
	return uuid.NewString()
}
