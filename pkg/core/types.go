package core

import (
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// OrderSide represents the direction of an order (buy or sell).
type OrderSide int

// Order side constants define the direction of a trade.
const (
	// SideBuy indicates an order to purchase an asset.
	SideBuy OrderSide = iota
	// SideSell indicates an order to sell an asset.
	SideSell
)

// String returns the string representation of the order side ("buy" or "sell").
func (s OrderSide) String() string {
	return [...]string{"buy", "sell"}[s]
}

// MarshalJSON implements json.Marshaler for OrderSide.
func (s OrderSide) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderSide.
// It accepts both uppercase and lowercase formats.
func (s *OrderSide) UnmarshalJSON(data []byte) error {
	side, _ := ParseOrderSide(strings.Trim(string(data), `"`))
	*s = side
	return nil
}

// ParseOrderSide maps a venue side string to an OrderSide.
// The boolean is false when the string is neither buy nor sell.
func ParseOrderSide(s string) (OrderSide, bool) {
	switch strings.ToLower(s) {
	case "buy", "bid":
		return SideBuy, true
	case "sell", "ask":
		return SideSell, true
	}
	return SideBuy, false
}

// OrderType represents the type of order placed on an exchange.
type OrderType int

// Order type constants define how an order is executed.
const (
	// TypeLimit executes at a specified price or better.
	TypeLimit OrderType = iota
	// TypeMarket executes immediately at the best available price.
	TypeMarket
	// TypeOther covers venue order types with no canonical equivalent.
	TypeOther
)

// String returns the string representation of the order type.
func (t OrderType) String() string {
	return [...]string{"limit", "market", "other"}[t]
}

// MarshalJSON implements json.Marshaler for OrderType.
func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderType.
func (t *OrderType) UnmarshalJSON(data []byte) error {
	*t = ParseOrderType(strings.Trim(string(data), `"`))
	return nil
}

// ParseOrderType maps a venue type string to an OrderType. Anything that is
// not plainly a limit or market order becomes TypeOther.
func ParseOrderType(s string) OrderType {
	switch strings.ToLower(s) {
	case "limit", "exchange limit":
		return TypeLimit
	case "market", "exchange market":
		return TypeMarket
	}
	return TypeOther
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus int

// Order status constants. Closed and Canceled are terminal.
const (
	// StatusOpen indicates the order is resting on the book or partially filled.
	StatusOpen OrderStatus = iota
	// StatusClosed indicates the order has been completely filled.
	StatusClosed
	// StatusCanceled indicates the order was canceled, rejected or expired.
	StatusCanceled
)

// String returns the string representation of the order status.
func (s OrderStatus) String() string {
	return [...]string{"open", "closed", "canceled"}[s]
}

// IsTerminal returns true if the order is in a terminal state (no further changes possible).
func (s OrderStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusCanceled
}

// CanTransition reports whether an order may move from s to next.
// Terminal states never change.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.IsTerminal() {
		return s == next
	}
	return true
}

// MarshalJSON implements json.Marshaler for OrderStatus.
func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderStatus.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(string(data), `"`)) {
	case "closed":
		*s = StatusClosed
	case "canceled":
		*s = StatusCanceled
	default:
		*s = StatusOpen
	}
	return nil
}

// TimeInForce defines how long an order remains active.
type TimeInForce int

// Time in force constants define order lifetime behavior.
const (
	// GTC (Good Till Canceled) keeps the order active until filled or canceled.
	GTC TimeInForce = iota
	// IOC (Immediate Or Cancel) requires immediate execution; unfilled portion is canceled.
	IOC
	// FOK (Fill Or Kill) requires complete immediate execution or cancellation.
	FOK
)

// String returns the string representation of time in force.
func (t TimeInForce) String() string {
	return [...]string{"GTC", "IOC", "FOK"}[t]
}

// Liquidity tells whether a fill added or removed liquidity.
type Liquidity string

const (
	Taker Liquidity = "taker"
	Maker Liquidity = "maker"
)

// Ticker is a 24h statistics snapshot for one market.
// Timestamp is the single source of time; DateTime derives from it.
type Ticker struct {
	// Symbol is the canonical market symbol (e.g., "BTC/USDT").
	Symbol string `json:"symbol"`
	// Timestamp is the snapshot time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
	// Bid is the highest price a buyer is willing to pay.
	Bid apd.Decimal `json:"bid"`
	// BidVolume is the size available at Bid.
	BidVolume apd.Decimal `json:"bidVolume"`
	// Ask is the lowest price a seller is willing to accept.
	Ask apd.Decimal `json:"ask"`
	// AskVolume is the size available at Ask.
	AskVolume apd.Decimal `json:"askVolume"`
	// High is the highest price in the last 24 hours.
	High apd.Decimal `json:"high"`
	// Low is the lowest price in the last 24 hours.
	Low apd.Decimal `json:"low"`
	// Open is the first price of the 24 hour window.
	Open apd.Decimal `json:"open"`
	// Close is the last price of the window.
	Close apd.Decimal `json:"close"`
	// Last is the price of the most recent trade.
	Last apd.Decimal `json:"last"`
	// PreviousClose is the close of the previous window.
	PreviousClose apd.Decimal `json:"previousClose"`
	// Change is Last minus Open.
	Change apd.Decimal `json:"change"`
	// Percentage is Change relative to Open, in percent.
	Percentage apd.Decimal `json:"percentage"`
	// Average is the average trade price.
	Average apd.Decimal `json:"average"`
	// Vwap is the volume weighted average price.
	Vwap apd.Decimal `json:"vwap"`
	// BaseVolume is traded volume in base currency.
	BaseVolume apd.Decimal `json:"baseVolume"`
	// QuoteVolume is traded volume in quote currency.
	QuoteVolume apd.Decimal `json:"quoteVolume"`
	// Info is the venue payload the ticker was built from.
	Info any `json:"info,omitempty"`
}

// DateTime returns Timestamp as a UTC time.
func (t *Ticker) DateTime() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}

// BalanceAccount is the balance of a single currency.
type BalanceAccount struct {
	// Free is the amount available for trading.
	Free apd.Decimal `json:"free"`
	// Total is free plus everything held in orders.
	Total apd.Decimal `json:"total"`
}

// Used returns Total minus Free.
func (b BalanceAccount) Used() apd.Decimal {
	return Sub(b.Total, b.Free)
}

// NewBalanceAccount builds an account from its free and used parts.
func NewBalanceAccount(free, used apd.Decimal) BalanceAccount {
	return BalanceAccount{Free: free, Total: Add(free, used)}
}

// Balances maps canonical currency codes to accounts.
type Balances map[string]BalanceAccount

// Order represents an exchange order with all its details.
type Order struct {
	// ID is the exchange-assigned order identifier.
	ID string `json:"id"`
	// ClientID is the client-assigned order identifier.
	ClientID string `json:"clientOrderId,omitempty"`
	// Timestamp is the creation time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
	// LastTradeTimestamp is the time of the latest fill in epoch milliseconds.
	LastTradeTimestamp int64 `json:"lastTradeTimestamp,omitempty"`
	// Symbol is the canonical market symbol.
	Symbol string `json:"symbol"`
	// Type defines how the order executes.
	Type OrderType `json:"type"`
	// Side indicates whether this is a buy or sell order.
	Side OrderSide `json:"side"`
	// Status is the current lifecycle state.
	Status OrderStatus `json:"status"`
	// Price is the limit price.
	Price apd.Decimal `json:"price"`
	// Average is the average fill price.
	Average apd.Decimal `json:"average"`
	// Amount is the ordered base amount.
	Amount apd.Decimal `json:"amount"`
	// Cost is the filled quote value.
	Cost apd.Decimal `json:"cost"`
	// Filled is the executed base amount.
	Filled apd.Decimal `json:"filled"`
	// Remaining is Amount minus Filled.
	Remaining apd.Decimal `json:"remaining"`
	// FeeCost is the fee charged so far.
	FeeCost apd.Decimal `json:"feeCost"`
	// FeeCurrency is the canonical currency of FeeCost.
	FeeCurrency string `json:"feeCurrency,omitempty"`
	// FeeRate is the fee as a fraction of cost.
	FeeRate apd.Decimal `json:"feeRate"`
	// Info is the venue payload the order was built from.
	Info any `json:"info,omitempty"`
}

// DateTime returns Timestamp as a UTC time.
func (o *Order) DateTime() time.Time {
	return time.UnixMilli(o.Timestamp).UTC()
}

// Consistent reports whether Filled + Remaining equals Amount.
func (o *Order) Consistent() bool {
	sum := Add(o.Filled, o.Remaining)
	return sum.Cmp(&o.Amount) == 0
}

// FillAmounts sets Filled and derives Remaining from Amount.
func (o *Order) FillAmounts(amount, filled apd.Decimal) {
	o.Amount = amount
	o.Filled = filled
	o.Remaining = Sub(amount, filled)
}

// MyTrade is one fill of the account's own order.
type MyTrade struct {
	// ID is the exchange-assigned trade identifier.
	ID string `json:"id"`
	// Timestamp is the execution time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
	// Symbol is the canonical market symbol.
	Symbol string `json:"symbol"`
	// OrderID links this trade to its parent order.
	OrderID string `json:"order,omitempty"`
	// Side indicates whether this was a buy or sell.
	Side OrderSide `json:"side"`
	// TakerOrMaker tells which side of the book the fill came from.
	TakerOrMaker Liquidity `json:"takerOrMaker,omitempty"`
	// Price is the execution price.
	Price apd.Decimal `json:"price"`
	// Amount is the executed base amount.
	Amount apd.Decimal `json:"amount"`
	// FeeCost is the trading fee charged.
	FeeCost apd.Decimal `json:"feeCost"`
	// FeeCurrency is the canonical currency of FeeCost.
	FeeCurrency string `json:"feeCurrency,omitempty"`
	// FeeRate is the fee as a fraction of cost.
	FeeRate apd.Decimal `json:"feeRate"`
	// Info is the venue payload the trade was built from.
	Info any `json:"info,omitempty"`
}

// Cost returns Price times Amount.
func (t *MyTrade) Cost() apd.Decimal {
	return Mul(t.Price, t.Amount)
}

// DateTime returns Timestamp as a UTC time.
func (t *MyTrade) DateTime() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}

// Trade is a public trade on a market.
type Trade struct {
	ID        string      `json:"id"`
	Timestamp int64       `json:"timestamp"`
	Symbol    string      `json:"symbol"`
	Side      OrderSide   `json:"side"`
	Price     apd.Decimal `json:"price"`
	Amount    apd.Decimal `json:"amount"`
	Info      any         `json:"info,omitempty"`
}

// Cost returns Price times Amount.
func (t *Trade) Cost() apd.Decimal {
	return Mul(t.Price, t.Amount)
}

// DateTime returns Timestamp as a UTC time.
func (t *Trade) DateTime() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}
