// Package bitfinex implements the Bitfinex REST API across its two
// generations: v1 for symbols, tickers and wallet balances, v2 for orders,
// trade history and order submission.
//
// The two generations sign differently, so the session signer dispatches
// on the request path. v2 answers with positional arrays, decoded through
// core.LooseJSON to keep numbers exact.
package bitfinex
