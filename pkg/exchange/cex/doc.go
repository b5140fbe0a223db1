// Package cex implements the CEX.IO spot REST API: currency profiles and
// limits, tickers, balances, open orders and archived orders.
//
// Private calls are POSTs whose form body carries key, nonce and signature
// (auth.FormSigner), so a CEX.IO user id is required alongside the key.
// CEX.IO has no trade history endpoint; FetchMyTrades derives one fill per
// archived order from its maker and taker totals.
package cex
