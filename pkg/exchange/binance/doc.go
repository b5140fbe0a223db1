// Package binance implements the Binance spot REST API and its 24h ticker
// stream on top of the shared request pipeline.
//
// The package includes:
//   - protocol.go: request builders and venue error code classification
//   - normalizer.go: conversion from Binance payloads to canonical types
//   - exchange.go: the capability methods
//   - stream.go: the <symbol>@ticker websocket feed
//
// Private calls are signed with auth.QuerySigner using a timestamp corrected
// for server clock skew. Requests are only spaced out once the venue reports
// a used weight above 1000.
//
// Example usage:
//
//	ex, err := binance.New(core.DefaultConfig("binance"))
//	ticker, err := ex.FetchTicker(ctx, "BTC/USDT")
package binance
