// Package order builds validated order requests for exchange.OrderCreator.
package order

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"tukar/pkg/core"
	"tukar/pkg/exchange"
)

// Builder provides a fluent interface for constructing order requests.
// It keeps the first parse error and reports it on Build.
//
// Example:
//
//	req, err := order.NewBuilder("BTC/USDT").
//	    Buy().
//	    Limit().
//	    Price("50000").
//	    Amount("0.001").
//	    Build()
type Builder struct {
	req *exchange.OrderRequest
	err error
}

// NewBuilder starts a request for the canonical symbol.
func NewBuilder(symbol string) *Builder {
	return &Builder{req: &exchange.OrderRequest{Symbol: symbol}}
}

// Side sets the order side.
func (b *Builder) Side(side core.OrderSide) *Builder {
	if b.err != nil {
		return b
	}
	b.req.Side = side
	return b
}

func (b *Builder) Buy() *Builder {
	return b.Side(core.SideBuy)
}

func (b *Builder) Sell() *Builder {
	return b.Side(core.SideSell)
}

// Type sets the order type.
func (b *Builder) Type(orderType core.OrderType) *Builder {
	if b.err != nil {
		return b
	}
	b.req.Type = orderType
	return b
}

func (b *Builder) Market() *Builder {
	return b.Type(core.TypeMarket)
}

func (b *Builder) Limit() *Builder {
	return b.Type(core.TypeLimit)
}

// Price sets the limit price from its decimal text.
func (b *Builder) Price(price string) *Builder {
	if b.err != nil {
		return b
	}
	d, err := core.ParseDecimal(price)
	if err != nil {
		b.err = fmt.Errorf("parse price: %w", err)
		return b
	}
	b.req.Price = d
	return b
}

func (b *Builder) PriceDecimal(price apd.Decimal) *Builder {
	if b.err != nil {
		return b
	}
	b.req.Price.Set(&price)
	return b
}

// Amount sets the base amount from its decimal text.
func (b *Builder) Amount(amount string) *Builder {
	if b.err != nil {
		return b
	}
	d, err := core.ParseDecimal(amount)
	if err != nil {
		b.err = fmt.Errorf("parse amount: %w", err)
		return b
	}
	b.req.Amount = d
	return b
}

func (b *Builder) AmountDecimal(amount apd.Decimal) *Builder {
	if b.err != nil {
		return b
	}
	b.req.Amount.Set(&amount)
	return b
}

// TimeInForce sets the lifetime policy. Venues without the concept ignore it.
func (b *Builder) TimeInForce(tif core.TimeInForce) *Builder {
	if b.err != nil {
		return b
	}
	b.req.TimeInForce = tif
	return b
}

func (b *Builder) GTC() *Builder {
	return b.TimeInForce(core.GTC)
}

func (b *Builder) IOC() *Builder {
	return b.TimeInForce(core.IOC)
}

func (b *Builder) FOK() *Builder {
	return b.TimeInForce(core.FOK)
}

// ClientOrderID sets the caller's identifier. Bitfinex accepts integers only.
func (b *Builder) ClientOrderID(id string) *Builder {
	if b.err != nil {
		return b
	}
	b.req.ClientOrderID = id
	return b
}

// Build validates and returns the request. Market limits are checked later,
// by the adapter, once the venue's markets are known.
func (b *Builder) Build() (*exchange.OrderRequest, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.req.Validate(""); err != nil {
		return nil, err
	}
	return b.req, nil
}
