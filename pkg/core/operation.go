package core

// Operation names a capability a venue adapter may provide.
type Operation int

// Operation constants define the canonical caller surface.
const (
	// OpFetchMarkets lists the venue's tradable pairs.
	OpFetchMarkets Operation = iota
	// OpFetchTicker retrieves 24h statistics for one symbol.
	OpFetchTicker
	// OpFetchTickers retrieves 24h statistics for many symbols.
	OpFetchTickers
	// OpFetchBalance retrieves account balances.
	OpFetchBalance
	// OpFetchOpenOrders retrieves orders that are still open.
	OpFetchOpenOrders
	// OpFetchOrders retrieves order history.
	OpFetchOrders
	// OpFetchMyTrades retrieves the account's fills.
	OpFetchMyTrades
	// OpCreateOrder submits a new order.
	OpCreateOrder
	// OpWatchTicker streams ticker updates.
	OpWatchTicker
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return [...]string{
		"fetchMarkets",
		"fetchTicker",
		"fetchTickers",
		"fetchBalance",
		"fetchOpenOrders",
		"fetchOrders",
		"fetchMyTrades",
		"createOrder",
		"watchTicker",
	}[o]
}

// AllOperations lists every operation in declaration order.
func AllOperations() []Operation {
	return []Operation{
		OpFetchMarkets, OpFetchTicker, OpFetchTickers, OpFetchBalance,
		OpFetchOpenOrders, OpFetchOrders, OpFetchMyTrades, OpCreateOrder, OpWatchTicker,
	}
}
