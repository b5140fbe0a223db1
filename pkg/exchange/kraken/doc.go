// Package kraken implements the Kraken spot REST API: asset pairs, tickers
// and balances.
//
// Every response is an envelope {"error":[...],"result":...}; a non-empty
// error array is a failure even when the HTTP status is 200. Kraken asks
// for at most one public call per second, so the throttle sleeps before
// every request rather than spacing them.
package kraken
